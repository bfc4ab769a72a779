// Package builder owns one generation run: it discovers entities, resolves
// components against them, writes the component screens and then fills the
// overview template and records the screen reference map.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/epics-containers/techui-builder/autofill"
	"github.com/epics-containers/techui-builder/config"
	"github.com/epics-containers/techui-builder/entity"
	"github.com/epics-containers/techui-builder/screen"
	"github.com/epics-containers/techui-builder/screenmap"
	"github.com/epics-containers/techui-builder/telemetry"
)

// ErrNoEntities is returned when no service contributed any entity.
var ErrNoEntities = errors.New("no ioc entities found")

// URLMacro carries the beamline url into every generated screen so support
// screens can refer to it as $(url).
const URLMacro = "url"

// Options locates the inputs and outputs of a run. Empty fields are
// derived from the configuration location by New.
type Options struct {
	ServicesDir string
	SupportDir  string
	OutputDir   string
	Template    string
	MappingFile string
	Layout      screen.LayoutOptions
}

// DefaultOptions derives the standard layout around a techui.yaml kept in
// <root>/synoptic. Remote configurations use the working directory as the
// synoptic directory.
func DefaultOptions(source string) Options {
	synoptic := "synoptic"
	if source != "" && !config.IsRemote(source) {
		synoptic = filepath.Dir(source)
	}
	root := filepath.Dir(synoptic)
	support := filepath.Join(root, "techui-support")
	return Options{
		ServicesDir: filepath.Join(root, "services"),
		SupportDir:  support,
		OutputDir:   filepath.Join(synoptic, "opis"),
		Template:    filepath.Join(synoptic, "src", "index.bob"),
		MappingFile: filepath.Join(support, screen.MappingFile),
		Layout:      screen.DefaultLayout(),
	}
}

func (o Options) withDefaults(source string) Options {
	def := DefaultOptions(source)
	if o.ServicesDir == "" {
		o.ServicesDir = def.ServicesDir
	}
	if o.SupportDir == "" {
		o.SupportDir = def.SupportDir
	}
	if o.OutputDir == "" {
		o.OutputDir = def.OutputDir
	}
	if o.Template == "" {
		o.Template = def.Template
	}
	if o.MappingFile == "" {
		o.MappingFile = filepath.Join(o.SupportDir, screen.MappingFile)
	}
	if o.Layout == (screen.LayoutOptions{}) {
		o.Layout = def.Layout
	}
	return o
}

// ScreenResult describes one processed component.
type ScreenResult struct {
	Component string
	Path      string
	Widgets   int
	Skipped   []string
}

// Builder is the context of a single generation run. It is not safe for
// concurrent use; create one per run.
type Builder struct {
	Config    *config.Config
	Options   Options
	Logger    zerolog.Logger
	Telemetry telemetry.Collector

	entities  *entity.Table
	services  []entity.ServiceResult
	mapping   screen.Mapping
	generator *screen.Generator
}

// New creates a run context for cfg.
func New(cfg *config.Config, opts Options, logger zerolog.Logger, collector telemetry.Collector) (*Builder, error) {
	if cfg == nil {
		return nil, errors.New("configuration must not be nil")
	}
	if collector == nil {
		collector = telemetry.Noop()
	}
	b := &Builder{
		Config:    cfg,
		Options:   opts.withDefaults(cfg.Source),
		Logger:    logger,
		Telemetry: collector,
		entities:  entity.NewTable(),
	}
	if err := b.checkIndexCollision(); err != nil {
		return nil, err
	}
	return b, nil
}

// checkIndexCollision rejects components whose screen would be replaced by
// the filled template.
func (b *Builder) checkIndexCollision() error {
	index := filepath.Clean(b.IndexPath())
	for _, comp := range b.Config.Components {
		path := filepath.Join(b.Options.OutputDir, filepath.FromSlash(ScreenName(comp))+".bob")
		if filepath.Clean(path) == index {
			return fmt.Errorf("component %s: screen %s collides with the filled template %s",
				comp.Key, path, filepath.Base(b.Options.Template))
		}
	}
	return nil
}

// Entities returns the entity table discovered by Setup.
func (b *Builder) Entities() *entity.Table {
	return b.entities
}

// Setup extracts the entities of every service and loads the type mapping.
func (b *Builder) Setup() error {
	if _, err := os.Stat(b.Options.ServicesDir); err != nil {
		return fmt.Errorf("services directory: %w", err)
	}
	table, results, err := entity.ExtractServices(b.Options.ServicesDir, b.Config.Beamline.LongDom, b.Logger)
	if err != nil {
		return err
	}
	for _, r := range results {
		switch {
		case r.Missing():
			b.Telemetry.IncServiceSkipped(telemetry.ServiceMissing)
		case r.Err != nil:
			b.Telemetry.IncServiceSkipped(telemetry.ServiceInvalid)
		default:
			b.Telemetry.AddEntities(r.Name, r.Entities)
		}
	}
	b.entities = table
	b.services = results

	mapping, err := screen.LoadMapping(b.Options.MappingFile)
	if err != nil {
		return err
	}
	b.mapping = mapping
	b.generator = screen.NewGenerator(mapping, b.Options.SupportDir, b.Options.OutputDir, b.Logger)
	b.generator.Layout = b.Options.Layout
	if url := b.Config.Beamline.URL; url != "" {
		b.generator.Macros.Set(URLMacro, url)
	}

	b.Logger.Info().Int("services", len(results)).Int("prefixes", table.Len()).Int("entities", table.Count()).
		Msg("extracted service entities")
	return nil
}

// ScreenName returns the name of the screen generated for comp.
func ScreenName(comp config.Component) string {
	file := comp.File
	if file == "" {
		file = comp.Key + ".bob"
	}
	return strings.TrimSuffix(filepath.ToSlash(file), ".bob")
}

// GenerateScreens writes one screen per configured component.
func (b *Builder) GenerateScreens(ctx context.Context) ([]ScreenResult, error) {
	if b.entities.Len() == 0 {
		b.Logger.Error().Msg("No ioc entities found, has setup() been run?")
		return nil, ErrNoEntities
	}
	if b.generator == nil {
		return nil, errors.New("type mapping not loaded, has setup() been run?")
	}

	results := make([]ScreenResult, 0, len(b.Config.Components))
	for _, comp := range b.Config.Components {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		name := ScreenName(comp)
		s, path, err := b.generator.Generate(name, b.ResolveComponent(comp))
		for _, deviceType := range s.Skipped {
			b.Telemetry.IncWidgetSkipped(deviceType)
		}
		if err != nil {
			b.Telemetry.IncScreen(telemetry.ScreenFailed)
			return results, fmt.Errorf("component %s: %w", comp.Key, err)
		}
		if path == "" {
			b.Telemetry.IncScreen(telemetry.ScreenEmpty)
		} else {
			b.Telemetry.IncScreen(telemetry.ScreenWritten)
		}
		results = append(results, ScreenResult{
			Component: comp.Key,
			Path:      path,
			Widgets:   len(s.Widgets),
			Skipped:   s.Skipped,
		})
	}
	return results, nil
}

// Targets converts the configured components into autofill targets.
func (b *Builder) Targets() []autofill.Target {
	targets := make([]autofill.Target, 0, len(b.Config.Components))
	for _, comp := range b.Config.Components {
		t := autofill.Target{
			Name:   comp.Key,
			Prefix: comp.Prefix,
			Desc:   comp.Desc,
			File:   comp.File,
		}
		for _, m := range comp.Macros {
			t.Macros = append(t.Macros, autofill.Macro{Name: m.Name, Value: m.Value})
		}
		targets = append(targets, t)
	}
	return targets
}

// IndexPath is where the filled template is written.
func (b *Builder) IndexPath() string {
	return filepath.Join(b.Options.OutputDir, filepath.Base(b.Options.Template))
}

// Autofill fills the overview template and writes it next to the generated
// screens. It returns false when the template does not exist.
func (b *Builder) Autofill() (bool, error) {
	if _, err := os.Stat(b.Options.Template); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			b.Logger.Warn().Str("template", b.Options.Template).
				Msg("template screen not found, skipping autofill and json map")
			return false, nil
		}
		return false, fmt.Errorf("template: %w", err)
	}
	s, err := autofill.Read(b.Options.Template, b.Logger)
	if err != nil {
		return false, err
	}
	filled := s.Fill(b.Targets())
	if err := os.MkdirAll(b.Options.OutputDir, 0o755); err != nil {
		return false, fmt.Errorf("create output directory: %w", err)
	}
	out := b.IndexPath()
	if err := s.Write(out); err != nil {
		return false, err
	}
	b.Logger.Info().Int("widgets", filled).Str("path", out).Msg("filled template screen")
	return true, nil
}

// WriteJSONMap records the screens reachable from the filled template.
func (b *Builder) WriteJSONMap() (string, error) {
	path, err := screenmap.Write(b.IndexPath(), b.Options.OutputDir)
	if err != nil {
		return "", err
	}
	b.Logger.Info().Str("path", path).Msg("wrote json map")
	return path, nil
}

// Run performs a complete generation.
func (b *Builder) Run(ctx context.Context) error {
	if err := b.Setup(); err != nil {
		return err
	}
	if _, err := b.GenerateScreens(ctx); err != nil {
		return err
	}
	filled, err := b.Autofill()
	if err != nil {
		return err
	}
	if !filled {
		return nil
	}
	_, err = b.WriteJSONMap()
	return err
}

// Sources lists the local files whose modification should trigger a new
// run: the configuration, the type mapping, the template and every
// service document.
func (b *Builder) Sources() []string {
	var out []string
	if b.Config.Source != "" && !config.IsRemote(b.Config.Source) {
		out = append(out, b.Config.Source)
	}
	out = append(out, b.Options.MappingFile, b.Options.Template)
	for _, r := range b.services {
		out = append(out, r.Path)
	}
	return out
}
