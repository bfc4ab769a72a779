package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector captures telemetry events emitted while building screens.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. Hooks are called inline from the build loop.
type Collector interface {
	AddEntities(service string, count int)
	IncServiceSkipped(reason string)
	IncScreen(outcome string)
	IncWidgetSkipped(deviceType string)
	IncHotReload(file string)
}

// Reasons and outcomes used as label values.
const (
	ServiceMissing = "missing"
	ServiceInvalid = "invalid"

	ScreenWritten = "written"
	ScreenEmpty   = "empty"
	ScreenFailed  = "failed"
)

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) AddEntities(string, int)  {}
func (noopCollector) IncServiceSkipped(string) {}
func (noopCollector) IncScreen(string)         {}
func (noopCollector) IncWidgetSkipped(string)  {}
func (noopCollector) IncHotReload(string)      {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	entities        *prometheus.CounterVec
	servicesSkipped *prometheus.CounterVec
	screens         *prometheus.CounterVec
	widgetsSkipped  *prometheus.CounterVec
	hotReloads      *prometheus.CounterVec
}

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Metrics already registered there are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		p   PrometheusCollector
		err error
	)
	if p.entities, err = registerCounter(reg, "techui_builder_entities_discovered_total",
		"Number of entities discovered per service.", "service"); err != nil {
		return nil, err
	}
	if p.servicesSkipped, err = registerCounter(reg, "techui_builder_services_skipped_total",
		"Number of services skipped during entity extraction.", "reason"); err != nil {
		return nil, err
	}
	if p.screens, err = registerCounter(reg, "techui_builder_screens_total",
		"Number of component screens processed by outcome.", "outcome"); err != nil {
		return nil, err
	}
	if p.widgetsSkipped, err = registerCounter(reg, "techui_builder_widgets_skipped_total",
		"Number of entities without a mapped widget per device type.", "type"); err != nil {
		return nil, err
	}
	if p.hotReloads, err = registerCounter(reg, "techui_builder_config_hot_reload_total",
		"Number of regenerations triggered per changed source file.", "file"); err != nil {
		return nil, err
	}
	return &p, nil
}

func registerCounter(reg prometheus.Registerer, name, help string, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return counter, nil
}

// AddEntities records the entities discovered for a service.
func (p *PrometheusCollector) AddEntities(service string, count int) {
	if p == nil || p.entities == nil || count <= 0 {
		return
	}
	p.entities.WithLabelValues(service).Add(float64(count))
}

// IncServiceSkipped counts a service that contributed no entities.
func (p *PrometheusCollector) IncServiceSkipped(reason string) {
	if p == nil || p.servicesSkipped == nil {
		return
	}
	p.servicesSkipped.WithLabelValues(reason).Inc()
}

// IncScreen counts a processed component screen.
func (p *PrometheusCollector) IncScreen(outcome string) {
	if p == nil || p.screens == nil {
		return
	}
	p.screens.WithLabelValues(outcome).Inc()
}

// IncWidgetSkipped counts an entity whose type has no mapped widget.
func (p *PrometheusCollector) IncWidgetSkipped(deviceType string) {
	if p == nil || p.widgetsSkipped == nil {
		return
	}
	p.widgetsSkipped.WithLabelValues(deviceType).Inc()
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// WriteTextfile gathers all metrics and writes them in the Prometheus text
// format, suitable for the node exporter textfile collector. The file is
// replaced atomically.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			tmp.Close()
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write metrics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}
