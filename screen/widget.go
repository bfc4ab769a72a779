// Package screen turns discovered entities into Phoebus .bob screens: it
// builds widgets from the type mapping table, packs them into columns and
// writes the result as a display document.
package screen

import (
	"strconv"

	"github.com/beevik/etree"
)

// Kind is the Phoebus widget type tag.
type Kind string

const (
	KindEmbedded     Kind = "embedded"
	KindActionButton Kind = "action_button"
	KindGroup        Kind = "group"
)

// Macro is a single macro binding on a widget.
type Macro struct {
	Name  string
	Value string
}

// Macros keeps bindings in insertion order so serialisation is stable.
type Macros []Macro

// Set replaces the value of name or appends a new binding.
func (m *Macros) Set(name, value string) {
	for i := range *m {
		if (*m)[i].Name == name {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Macro{Name: name, Value: value})
}

// Get returns the value bound to name.
func (m Macros) Get(name string) (string, bool) {
	for _, macro := range m {
		if macro.Name == name {
			return macro.Value, true
		}
	}
	return "", false
}

// Widget is the capability set the layout engine and the serialiser need.
type Widget interface {
	Kind() Kind
	Name() string
	Position() (x, y int)
	SetPosition(x, y int)
	Size() (width, height int)
	Macros() Macros
	Element() *etree.Element
}

type frame struct {
	name          string
	x, y          int
	width, height int
	macros        Macros
}

func (f *frame) Name() string         { return f.name }
func (f *frame) Position() (int, int) { return f.x, f.y }
func (f *frame) SetPosition(x, y int) { f.x, f.y = x, y }
func (f *frame) Size() (int, int)     { return f.width, f.height }
func (f *frame) Macros() Macros       { return append(Macros(nil), f.macros...) }
func (f *frame) addGeometry(el *etree.Element) {
	addInt(el, "x", f.x)
	addInt(el, "y", f.y)
	addInt(el, "width", f.width)
	addInt(el, "height", f.height)
}

// EmbeddedDisplay inlines another screen file at a fixed size.
type EmbeddedDisplay struct {
	frame
	File string
}

// NewEmbeddedDisplay creates an embedded display at the origin.
func NewEmbeddedDisplay(name, file string, width, height int, macros Macros) *EmbeddedDisplay {
	return &EmbeddedDisplay{
		frame: frame{name: name, width: width, height: height, macros: macros},
		File:  file,
	}
}

func (w *EmbeddedDisplay) Kind() Kind { return KindEmbedded }

func (w *EmbeddedDisplay) Element() *etree.Element {
	el := newWidgetElement(KindEmbedded, "2.0.0")
	addText(el, "name", w.name)
	addText(el, "file", w.File)
	w.addGeometry(el)
	addMacros(el, w.macros)
	return el
}

// ActionButton opens a related display when pressed.
type ActionButton struct {
	frame
	Text        string
	PVName      string
	File        string
	Target      string
	Description string
}

// NewActionButton creates an open-display action button at the origin.
func NewActionButton(name, pvName, file string, width, height int, macros Macros) *ActionButton {
	return &ActionButton{
		frame:  frame{name: name, width: width, height: height, macros: macros},
		Text:   name,
		PVName: pvName,
		File:   file,
		Target: "tab",
	}
}

func (w *ActionButton) Kind() Kind { return KindActionButton }

func (w *ActionButton) Element() *etree.Element {
	el := newWidgetElement(KindActionButton, "3.0.0")
	addText(el, "name", w.name)
	addText(el, "text", w.Text)
	addText(el, "pv_name", w.PVName)
	w.addGeometry(el)

	action := el.CreateElement("actions").CreateElement("action")
	action.CreateAttr("type", "open_display")
	addText(action, "file", w.File)
	addText(action, "target", w.Target)
	addMacros(action, w.macros)
	if w.Description != "" {
		addText(action, "description", w.Description)
	}
	return el
}

// Group is a named container around a set of widgets.
type Group struct {
	frame
	Children []Widget
}

// NewGroup wraps widgets in a group sized to their extent plus padding.
func NewGroup(name string, widgets []Widget, padding int) *Group {
	width, height := extent(widgets)
	return &Group{
		frame:    frame{name: name, width: width + padding, height: height + padding},
		Children: widgets,
	}
}

func (g *Group) Kind() Kind { return KindGroup }

func (g *Group) Element() *etree.Element {
	el := newWidgetElement(KindGroup, "2.0.0")
	addText(el, "name", g.name)
	g.addGeometry(el)
	for _, child := range g.Children {
		el.AddChild(child.Element())
	}
	return el
}

func extent(widgets []Widget) (width, height int) {
	for _, w := range widgets {
		x, y := w.Position()
		ww, wh := w.Size()
		if x+ww > width {
			width = x + ww
		}
		if y+wh > height {
			height = y + wh
		}
	}
	return width, height
}

func newWidgetElement(kind Kind, version string) *etree.Element {
	el := etree.NewElement("widget")
	el.CreateAttr("type", string(kind))
	el.CreateAttr("version", version)
	return el
}

func addText(parent *etree.Element, tag, text string) {
	parent.CreateElement(tag).SetText(text)
}

func addInt(parent *etree.Element, tag string, v int) {
	addText(parent, tag, strconv.Itoa(v))
}

func addMacros(parent *etree.Element, macros Macros) {
	if len(macros) == 0 {
		return
	}
	block := parent.CreateElement("macros")
	for _, macro := range macros {
		addText(block, macro.Name, macro.Value)
	}
}
