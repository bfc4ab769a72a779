package screen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/epics-containers/techui-builder/entity"
)

const (
	relatedWidth  = 100
	relatedHeight = 40
)

type size struct {
	width, height int
}

// Screen is the result of building one screen from its entities.
type Screen struct {
	Name    string
	Widgets []Widget
	Group   *Group
	// Macros are display level bindings inherited by every widget.
	Macros Macros
	// Skipped lists the entity types that had no mapped visual.
	Skipped []string
}

// Empty reports whether no widget could be created for the screen.
func (s *Screen) Empty() bool {
	return s == nil || len(s.Widgets) == 0
}

// Generator creates screens for groups of entities.
type Generator struct {
	Mapping    Mapping
	SupportDir string
	OutputDir  string
	Layout     LayoutOptions
	Logger     zerolog.Logger
	// Macros are added to the display of every generated screen.
	Macros Macros

	sizes map[string]size
}

// NewGenerator returns a generator using the default layout.
func NewGenerator(mapping Mapping, supportDir, outputDir string, logger zerolog.Logger) *Generator {
	return &Generator{
		Mapping:    mapping,
		SupportDir: supportDir,
		OutputDir:  outputDir,
		Layout:     DefaultLayout(),
		Logger:     logger,
	}
}

// CreateWidget builds the widget for one entity, or returns false when the
// entity type has no mapped visual.
func (g *Generator) CreateWidget(screenName string, e entity.Entity) (Widget, bool) {
	name := e.DisplayName()
	visual, ok := g.Mapping.Lookup(e.Type)
	if !ok {
		g.Logger.Info().Str("screen", screenName).Str("type", e.Type).
			Msgf("No available widget for %s in screen %s", name, screenName)
		return nil, false
	}

	primary := visual.Prefix
	if primary == "" {
		primary = "P"
	}
	var suffixLabel, suffixValue string
	switch {
	case e.M != "":
		suffixLabel, suffixValue = "M", e.M
	case e.R != "":
		suffixLabel, suffixValue = "R", e.R
	}
	if suffixLabel != "" && visual.Suffix != "" {
		suffixLabel = visual.Suffix
	}

	var macros Macros
	macros.Set(primary, e.P)
	if suffixLabel != "" {
		macros.Set(suffixLabel, suffixValue)
	}

	source := filepath.Join(g.SupportDir, "bob", visual.File)
	file := g.relativeRef(source)

	if visual.Type == VisualEmbedded {
		dims := g.screenSize(source)
		return NewEmbeddedDisplay(name, file, dims.width, dims.height, macros), true
	}

	pvName := e.P
	if suffixValue != "" {
		pvName = e.P + ":" + suffixValue
	}
	button := NewActionButton(name, pvName, file, relatedWidth, relatedHeight, macros)
	button.Description = e.Desc
	return button, true
}

// Build creates, lays out and groups the widgets of a screen.
func (g *Generator) Build(name string, entities []entity.Entity) *Screen {
	s := &Screen{Name: name, Macros: append(Macros(nil), g.Macros...)}
	widgets := make([]Widget, 0, len(entities))
	for _, e := range entities {
		w, ok := g.CreateWidget(name, e)
		if !ok {
			s.Skipped = append(s.Skipped, e.Type)
			continue
		}
		widgets = append(widgets, w)
	}
	if len(widgets) == 0 {
		return s
	}
	s.Widgets = Layout(widgets, g.Layout)
	s.Group = NewGroup(name, s.Widgets, g.Layout.GroupPadding)
	return s
}

// Document renders a built screen as a display document.
func Document(s *Screen) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	display := doc.CreateElement("display")
	display.CreateAttr("version", "2.0.0")
	addText(display, "name", s.Name)
	addMacros(display, s.Macros)
	if s.Group != nil {
		display.AddChild(s.Group.Element())
	}
	doc.Indent(2)
	return doc
}

// Generate builds the named screen and writes it to <OutputDir>/<name>.bob.
// It returns an empty path when no widget was available.
func (g *Generator) Generate(name string, entities []entity.Entity) (*Screen, string, error) {
	s := g.Build(name, entities)
	if s.Empty() {
		g.Logger.Info().Str("screen", name).
			Msgf("Could not write screen: %s as no widgets were available", name)
		return s, "", nil
	}
	path, err := g.Write(s)
	if err != nil {
		return s, "", err
	}
	return s, path, nil
}

// Write serialises s into the output directory, creating it if needed.
func (g *Generator) Write(s *Screen) (string, error) {
	path := filepath.Join(g.OutputDir, s.Name+".bob")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := Document(s).WriteToFile(path); err != nil {
		return "", fmt.Errorf("write screen %s: %w", s.Name, err)
	}
	g.Logger.Info().Str("screen", s.Name).Str("path", path).
		Msgf("%s.bob has been created successfully", s.Name)
	return path, nil
}

func (g *Generator) relativeRef(target string) string {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	absOut, err := filepath.Abs(g.OutputDir)
	if err != nil {
		return filepath.ToSlash(absTarget)
	}
	rel, err := filepath.Rel(absOut, absTarget)
	if err != nil {
		return filepath.ToSlash(absTarget)
	}
	return filepath.ToSlash(rel)
}

func (g *Generator) screenSize(path string) size {
	if s, ok := g.sizes[path]; ok {
		return s
	}
	width, height, err := ReadDimensions(path)
	if err != nil {
		g.Logger.Warn().Err(err).Str("file", path).Msg("could not obtain the size of the widget, using default")
	}
	if g.sizes == nil {
		g.sizes = make(map[string]size)
	}
	s := size{width: width, height: height}
	g.sizes[path] = s
	return s
}
