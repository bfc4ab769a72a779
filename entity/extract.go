package entity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ServiceConfigPath is the location of the entity document inside a service.
const ServiceConfigPath = "config/ioc.yaml"

type iocDocument struct {
	Entities []iocEntity `yaml:"entities"`
}

type iocEntity struct {
	Type string `yaml:"type"`
	Desc string `yaml:"desc"`
	P    string `yaml:"P"`
	M    string `yaml:"M"`
	R    string `yaml:"R"`
}

// ServiceResult summarises the extraction of one service.
type ServiceResult struct {
	Name     string
	Path     string
	Entities int
	Err      error
}

// Missing reports whether the service had no configuration document.
func (r ServiceResult) Missing() bool {
	return errors.Is(r.Err, fs.ErrNotExist)
}

// ExtractFile parses one ioc.yaml document and appends every entity that
// carries a P field to table. It returns the number of entities added.
func ExtractFile(path string, table *Table) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	var doc iocDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	// Parse fully before touching the table so a bad document adds nothing.
	found := make([]Entity, 0, len(doc.Entities))
	for _, item := range doc.Entities {
		if item.P == "" {
			continue
		}
		found = append(found, New(item.Type, item.Desc, item.P, item.M, item.R))
	}
	for _, e := range found {
		table.Add(e)
	}
	return len(found), nil
}

// ExtractServices walks every service directory named <longDom>-*-*-* below
// servicesDir and merges their entities into a single table. Services
// without a readable or parseable document are logged and skipped.
func ExtractServices(servicesDir, longDom string, logger zerolog.Logger) (*Table, []ServiceResult, error) {
	matches, err := filepath.Glob(filepath.Join(servicesDir, longDom+"-*-*-*"))
	if err != nil {
		return nil, nil, fmt.Errorf("list services in %s: %w", servicesDir, err)
	}

	table := NewTable()
	results := make([]ServiceResult, 0, len(matches))
	for _, service := range matches {
		info, err := os.Stat(service)
		if err != nil || !info.IsDir() {
			continue
		}
		name := filepath.Base(service)
		result := ServiceResult{Name: name, Path: filepath.Join(service, ServiceConfigPath)}
		result.Entities, result.Err = ExtractFile(result.Path, table)
		switch {
		case result.Missing():
			logger.Error().Str("service", name).Msgf("No ioc.yaml file for service: %s. Does it exist?", name)
		case result.Err != nil:
			logger.Error().Err(result.Err).Str("service", name).Msg("skipping service with unreadable ioc.yaml")
		default:
			logger.Debug().Str("service", name).Int("entities", result.Entities).Msg("extracted service entities")
		}
		results = append(results, result)
	}
	return table, results, nil
}
