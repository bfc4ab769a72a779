// Command techui-builder generates Phoebus engineering screens for a
// beamline from its techui.yaml and the ioc.yaml of every service.
//
// Usage:
//
//	techui-builder [flags] <techui.yaml|techui.cue|https://...>
//
// Exit codes:
//
//	0  Screens generated (or watch mode interrupted)
//	1  Fatal condition: unreadable or invalid configuration, missing
//	   inputs, no entities discovered
//	2  Usage error
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/epics-containers/techui-builder/builder"
	"github.com/epics-containers/techui-builder/config"
	"github.com/epics-containers/techui-builder/internal/logging"
	"github.com/epics-containers/techui-builder/internal/reload"
	"github.com/epics-containers/techui-builder/telemetry"
)

const version = "0.1.0"

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type cliOptions struct {
	template      string
	services      string
	support       string
	output        string
	logLevel      string
	logFormat     string
	metricsFile   string
	watch         bool
	watchInterval time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.As(err, new(usageError)):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return 2
	case errors.Is(err, context.Canceled):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func newCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:           "techui-builder [flags] <techui.yaml>",
		Short:         "Generate Phoebus screens from techui.yaml and service ioc.yaml files",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError{fmt.Errorf("expected exactly one configuration file, got %d", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), args[0], opts, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	cmd.SetVersionTemplate("techui-builder {{.Version}}\n")
	bindFlags(cmd.Flags(), opts)
	return cmd
}

func bindFlags(fs *pflag.FlagSet, opts *cliOptions) {
	fs.StringVar(&opts.template, "template", "", "Template screen to autofill (default <synoptic>/src/index.bob)")
	fs.StringVar(&opts.services, "services", "", "Services directory (default <root>/services)")
	fs.StringVar(&opts.support, "support", "", "techui-support directory (default <root>/techui-support)")
	fs.StringVar(&opts.output, "output", "", "Output directory for generated screens (default <synoptic>/opis)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics to this file in Prometheus text format")
	fs.BoolVar(&opts.watch, "watch", false, "Regenerate whenever an input file changes")
	fs.DurationVar(&opts.watchInterval, "watch-interval", 2*time.Second, "Polling interval for --watch")
}

func loadConfig(ctx context.Context, source string) (*config.Config, error) {
	if config.IsRemote(source) {
		return config.Fetch(ctx, source, nil)
	}
	return config.Load(source)
}

func (o *cliOptions) builderOptions() builder.Options {
	return builder.Options{
		ServicesDir: o.services,
		SupportDir:  o.support,
		OutputDir:   o.output,
		Template:    o.template,
	}
}

func execute(ctx context.Context, source string, opts *cliOptions, stderr io.Writer) error {
	if opts.watch && opts.watchInterval <= 0 {
		return usageError{fmt.Errorf("--watch-interval must be positive")}
	}
	cfg, err := loadConfig(ctx, source)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	if opts.logLevel != "" {
		logCfg.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		logCfg.Format = opts.logFormat
	}
	logger, cleanup, err := logging.Setup(logCfg, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := prometheus.NewRegistry()
	var collector telemetry.Collector = telemetry.Noop()
	if opts.metricsFile != "" {
		prom, err := telemetry.NewPrometheusCollector(reg)
		if err != nil {
			return err
		}
		collector = prom
	}

	b, err := generate(ctx, cfg, opts, logger, collector, reg)
	if !opts.watch {
		return err
	}
	if err != nil {
		logger.Error().Err(err).Msg("generation failed, waiting for changes")
	}
	return watch(ctx, source, b, opts, logger, collector, reg)
}

func generate(ctx context.Context, cfg *config.Config, opts *cliOptions, logger zerolog.Logger, collector telemetry.Collector, reg *prometheus.Registry) (*builder.Builder, error) {
	b, err := builder.New(cfg, opts.builderOptions(), logger, collector)
	if err != nil {
		return nil, err
	}
	runErr := b.Run(ctx)
	if opts.metricsFile != "" {
		if err := telemetry.WriteTextfile(opts.metricsFile, reg); err != nil {
			logger.Error().Err(err).Str("file", opts.metricsFile).Msg("failed to write metrics")
		}
	}
	return b, runErr
}

func watch(ctx context.Context, source string, b *builder.Builder, opts *cliOptions, logger zerolog.Logger, collector telemetry.Collector, reg *prometheus.Registry) error {
	sources := func(b *builder.Builder) []string {
		if b == nil {
			return []string{source}
		}
		return append(b.Sources(), source)
	}
	watcher := reload.NewWatcher(sources(b))
	logger.Info().Strs("files", watcher.Files()).Msg("watching for changes")

	for {
		changed, err := watcher.Poll(ctx, opts.watchInterval)
		if err != nil {
			return err
		}
		for _, file := range changed {
			collector.IncHotReload(file)
		}
		logger.Info().Strs("files", changed).Msg("inputs changed, regenerating")

		cfg, err := loadConfig(ctx, source)
		if err != nil {
			logger.Error().Err(err).Msg("failed to reload configuration")
			watcher.Update(sources(b))
			continue
		}
		next, err := generate(ctx, cfg, opts, logger, collector, reg)
		if err != nil {
			logger.Error().Err(err).Msg("generation failed")
		}
		if next != nil {
			b = next
		}
		watcher.Update(sources(b))
	}
}
