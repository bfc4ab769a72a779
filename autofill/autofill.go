// Package autofill substitutes component details into the placeholder
// widgets of a hand-authored overview screen.
package autofill

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/epics-containers/techui-builder/screenmap"
)

// Placeholders recognised in template widgets.
const (
	PrefixPlaceholder = "$(prefix)"
	DescPlaceholder   = "$(desc)"
	FilePlaceholder   = "$(bob_file)"
)

// Macro is a name/value pair written into an open-display action.
type Macro struct {
	Name  string
	Value string
}

// Target carries the values substituted into the widget named Name.
type Target struct {
	Name   string
	Prefix string
	Desc   string
	File   string
	Macros []Macro
}

// Screen is a parsed template screen.
type Screen struct {
	Path   string
	Logger zerolog.Logger

	doc *etree.Document
}

// Read parses the screen at path.
func Read(path string, logger zerolog.Logger) (*Screen, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("read template %s: empty document", path)
	}
	return &Screen{Path: path, Logger: logger, doc: doc}, nil
}

// Widgets returns the symbol and action button widgets of the screen,
// including those nested in groups, in document order.
func (s *Screen) Widgets() []*etree.Element {
	return collect(s.doc.Root(), nil)
}

func collect(parent *etree.Element, out []*etree.Element) []*etree.Element {
	for _, child := range parent.SelectElements("widget") {
		switch child.SelectAttrValue("type", "") {
		case "symbol", "action_button":
			out = append(out, child)
		case "group":
			out = collect(child, out)
		}
	}
	return out
}

// Fill substitutes every target into the widget carrying its name and
// returns the number of widgets that were filled.
func (s *Screen) Fill(targets []Target) int {
	byName := make(map[string]Target, len(targets))
	for _, t := range targets {
		if _, ok := byName[t.Name]; !ok {
			byName[t.Name] = t
		}
	}

	filled := 0
	for _, widget := range s.Widgets() {
		nameEl := widget.SelectElement("name")
		if nameEl == nil {
			continue
		}
		target, ok := byName[strings.TrimSpace(nameEl.Text())]
		if !ok {
			continue
		}
		s.fillWidget(widget, target)
		filled++
	}
	return filled
}

func (s *Screen) fillWidget(widget *etree.Element, t Target) {
	substitute(widget, "pv_name", PrefixPlaceholder, t.Prefix)

	kind := widget.SelectAttrValue("type", "")
	if kind == "symbol" {
		setText(widget, "run_actions_on_mouse_click", "true")
	}

	action := screenmap.OpenDisplayAction(widget)
	if action == nil {
		s.Logger.Debug().Str("widget", t.Name).Str("type", kind).Msg("no open_display action, skipping action substitution")
		return
	}
	desc := t.Desc
	if desc == "" {
		desc = t.Name
	}
	substitute(action, "description", DescPlaceholder, desc)
	substitute(action, "file", FilePlaceholder, t.File)

	if len(t.Macros) > 0 {
		if old := action.SelectElement("macros"); old != nil {
			action.RemoveChild(old)
		}
		block := action.CreateElement("macros")
		for _, m := range t.Macros {
			block.CreateElement(m.Name).SetText(m.Value)
		}
	}
}

// substitute replaces placeholder in the text of el/tag. An empty or
// missing element is treated as holding the bare placeholder.
func substitute(el *etree.Element, tag, placeholder, value string) {
	child := el.SelectElement(tag)
	if child == nil {
		child = el.CreateElement(tag)
	}
	text := child.Text()
	if strings.TrimSpace(text) == "" {
		text = placeholder
	}
	child.SetText(strings.ReplaceAll(text, placeholder, value))
}

func setText(el *etree.Element, tag, value string) {
	child := el.SelectElement(tag)
	if child == nil {
		child = el.CreateElement(tag)
	}
	child.SetText(value)
}

// Write stores the screen pretty-printed with an XML declaration.
func (s *Screen) Write(path string) error {
	if !hasDeclaration(s.doc) {
		s.doc.InsertChildAt(0, etree.NewProcInst("xml", `version="1.0" encoding="UTF-8"`))
	}
	s.doc.Indent(2)
	if err := s.doc.WriteToFile(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func hasDeclaration(doc *etree.Document) bool {
	for _, tok := range doc.Child {
		if p, ok := tok.(*etree.ProcInst); ok && p.Target == "xml" {
			return true
		}
	}
	return false
}
