package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

var componentKeyPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Beamline identifies the facility a set of screens is generated for.
type Beamline struct {
	Dom      string `yaml:"dom,omitempty"`
	ShortDom string `yaml:"short_dom,omitempty"`
	LongDom  string `yaml:"long_dom,omitempty"`
	Desc     string `yaml:"desc"`
	URL      string `yaml:"url,omitempty"`
}

// Macro is a single name/value pair attached to a component.
type Macro struct {
	Name  string
	Value string
}

// Macros keeps the document order of a macro mapping.
type Macros []Macro

// UnmarshalYAML decodes a mapping of scalar values while preserving key order.
func (m *Macros) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: macros must be a mapping", value.Line)
	}
	out := make(Macros, 0, len(value.Content)/2)
	seen := make(map[string]struct{}, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: macro %q must be a scalar", val.Line, key.Value)
		}
		if _, ok := seen[key.Value]; ok {
			return fmt.Errorf("line %d: macro %q defined twice", key.Line, key.Value)
		}
		seen[key.Value] = struct{}{}
		out = append(out, Macro{Name: key.Value, Value: val.Value})
	}
	*m = out
	return nil
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

// Component is an operator-configured screen target.
type Component struct {
	Key    string   `yaml:"-"`
	Prefix string   `yaml:"prefix"`
	Desc   string   `yaml:"desc,omitempty"`
	Extras []string `yaml:"extras,omitempty"`
	File   string   `yaml:"file,omitempty"`
	Macros Macros   `yaml:"macros,omitempty"`
	Filter string   `yaml:"filter,omitempty"`

	// Derived from Prefix.
	P         string `yaml:"-"`
	R         string `yaml:"-"`
	Attribute string `yaml:"-"`

	filter *vm.Program
}

// Accept evaluates the component filter against an entity environment.
// Components without a filter accept every entity.
func (c *Component) Accept(env map[string]interface{}) (bool, error) {
	if c == nil || c.filter == nil {
		return true, nil
	}
	out, err := expr.Run(c.filter, env)
	if err != nil {
		return false, fmt.Errorf("component %s: evaluate filter: %w", c.Key, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("component %s: filter returned %T, expected bool", c.Key, out)
	}
	return ok, nil
}

func (c *Component) prepare() error {
	if !componentKeyPattern.MatchString(c.Key) {
		return fmt.Errorf("component key %q must match %s", c.Key, componentKeyPattern)
	}
	parts, err := SplitPrefix(c.Prefix)
	if err != nil {
		return fmt.Errorf("no valid PV prefix found for %s: %w", c.Key, err)
	}
	c.P, c.R, c.Attribute = parts.P, parts.R, parts.Attribute

	seen := make(map[string]struct{}, len(c.Extras))
	for _, extra := range c.Extras {
		if _, ok := seen[extra]; ok {
			return fmt.Errorf("component %s: extras must contain unique items, %q repeated", c.Key, extra)
		}
		seen[extra] = struct{}{}
	}

	if c.File == "" {
		if len(c.Macros) > 0 {
			return fmt.Errorf("component %s: macros require file to be set", c.Key)
		}
		c.File = c.Key + ".bob"
	}
	if err := checkScreenFile(c.File); err != nil {
		return fmt.Errorf("component %s: %w", c.Key, err)
	}

	if strings.TrimSpace(c.Filter) != "" {
		program, err := expr.Compile(c.Filter, expr.Env(filterEnv()), expr.AsBool())
		if err != nil {
			return fmt.Errorf("component %s: compile filter: %w", c.Key, err)
		}
		c.filter = program
	}
	return nil
}

// checkScreenFile keeps generated screens inside the output directory.
func checkScreenFile(file string) error {
	slashed := filepath.ToSlash(file)
	if filepath.IsAbs(file) || strings.HasPrefix(slashed, "/") {
		return fmt.Errorf("file %q must be relative to the output directory", file)
	}
	for _, segment := range strings.Split(slashed, "/") {
		if segment == ".." {
			return fmt.Errorf("file %q must not contain .. segments", file)
		}
	}
	return nil
}

func filterEnv() map[string]interface{} {
	return map[string]interface{}{
		"Type": "",
		"Desc": "",
		"P":    "",
		"M":    "",
		"R":    "",
	}
}

// Components keeps the document order of the components mapping.
type Components []Component

// UnmarshalYAML decodes the components mapping, rejecting duplicate keys.
func (c *Components) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: components must be a mapping", value.Line)
	}
	out := make(Components, 0, len(value.Content)/2)
	seen := make(map[string]struct{}, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, body := value.Content[i], value.Content[i+1]
		if _, ok := seen[key.Value]; ok {
			return fmt.Errorf("line %d: duplicate component key %q", key.Line, key.Value)
		}
		seen[key.Value] = struct{}{}
		var comp Component
		if err := body.Decode(&comp); err != nil {
			return fmt.Errorf("component %s: %w", key.Value, err)
		}
		comp.Key = key.Value
		out = append(out, comp)
	}
	*c = out
	return nil
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"`
	Loki   LokiConfig `yaml:"loki"`
}

// Config is the root of a techui document.
type Config struct {
	Beamline   Beamline      `yaml:"beamline"`
	Components Components    `yaml:"components"`
	Logging    LoggingConfig `yaml:"logging"`

	// Source is the absolute path or URL the document was read from.
	Source string `yaml:"-"`
}

// Component returns the component registered under key.
func (c *Config) Component(key string) (Component, bool) {
	if c == nil {
		return Component{}, false
	}
	for _, comp := range c.Components {
		if comp.Key == key {
			return comp, true
		}
	}
	return Component{}, false
}

// Load reads, validates and decodes the configuration file from disk.
// Files with a .cue extension are evaluated as CUE first.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(abs), ".cue") {
		raw, err = exportCUE(abs, raw)
		if err != nil {
			return nil, err
		}
	}
	cfg, err := Parse(raw, abs)
	if err != nil {
		return nil, err
	}
	cfg.Source = abs
	return cfg, nil
}

// Parse validates a YAML (or JSON) document against the techui schema and decodes it.
func Parse(data []byte, name string) (*Config, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", name, err)
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return nil, fmt.Errorf("config %s is empty", name)
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config %s: top-level YAML document must be a mapping", name)
	}

	var raw interface{}
	if err := root.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", name, err)
	}
	if err := validateSchema(name, raw); err != nil {
		return nil, err
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", name, err)
	}
	if err := cfg.prepare(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	cfg.Source = name
	return &cfg, nil
}

func (c *Config) prepare() error {
	if err := c.Beamline.normalize(); err != nil {
		return err
	}
	for i := range c.Components {
		if err := c.Components[i].prepare(); err != nil {
			return err
		}
	}
	return nil
}
