package screen

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MappingFile is the name of the type mapping table inside the support tree.
const MappingFile = "gui_map.yaml"

// VisualType selects how a device type is represented on a screen.
type VisualType string

const (
	VisualEmbedded VisualType = "embedded"
	VisualRelated  VisualType = "related"
)

// Visual describes the widget used for one device type.
type Visual struct {
	Type   VisualType `yaml:"type"`
	File   string     `yaml:"file"`
	Prefix string     `yaml:"prefix,omitempty"`
	Suffix string     `yaml:"suffix,omitempty"`
}

// Mapping associates device types with their visual representation.
type Mapping map[string]Visual

// Lookup returns the visual registered for a device type.
func (m Mapping) Lookup(deviceType string) (Visual, bool) {
	v, ok := m[deviceType]
	return v, ok
}

// Types returns the mapped device types in lexical order.
func (m Mapping) Types() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadMapping reads and validates a mapping table from disk.
func LoadMapping(path string) (Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	m, err := ParseMapping(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseMapping decodes and validates a mapping table.
func ParseMapping(data []byte) (Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal mapping: %w", err)
	}
	if m == nil {
		m = Mapping{}
	}
	for _, deviceType := range m.Types() {
		v := m[deviceType]
		switch v.Type {
		case VisualEmbedded, VisualRelated:
		default:
			return nil, fmt.Errorf("device type %s: unknown visual type %q", deviceType, v.Type)
		}
		if strings.TrimSpace(v.File) == "" {
			return nil, fmt.Errorf("device type %s: file must be set", deviceType)
		}
	}
	return m, nil
}
