// Package otel wires the OpenTelemetry log pipeline that backs the
// slog bridge. Metrics stay on the global meter provider and are not
// managed here.
package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the export targets for structured log records.
// At least one of LogWriter or Endpoint must be set when Enabled.
type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	LogWriter    io.Writer // local target, pretty-printed OTLP JSON
	Endpoint     string    // OTLP/HTTP collector address
	Insecure     bool      // plain HTTP for the collector connection
}

// Provider owns the sdk logger provider and its exporters.
type Provider struct {
	logs *sdklog.LoggerProvider
}

// New builds a provider exporting to the targets named in cfg. A
// disabled config yields an inert provider whose LoggerProvider is
// nil, so callers can wire it unconditionally.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	if cfg.LogWriter == nil && cfg.Endpoint == "" {
		return nil, fmt.Errorf("otel enabled with no log writer or endpoint")
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	if cfg.LogWriter != nil {
		proc, err := fileProcessor(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	if cfg.Endpoint != "" {
		proc, err := collectorProcessor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdklog.WithProcessor(proc))
	}

	return &Provider{logs: sdklog.NewLoggerProvider(opts...)}, nil
}

func fileProcessor(cfg Config) (sdklog.Processor, error) {
	exp, err := stdoutlog.New(
		stdoutlog.WithWriter(cfg.LogWriter),
		stdoutlog.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("file log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exp,
		sdklog.WithExportTimeout(cfg.BatchTimeout),
	), nil
}

func collectorProcessor(ctx context.Context, cfg Config) (sdklog.Processor, error) {
	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	exp, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exp,
		sdklog.WithExportTimeout(cfg.BatchTimeout),
	), nil
}

// LoggerProvider exposes the sdk provider for the otelslog bridge.
// Nil when the pipeline is disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Enabled reports whether log export is active.
func (p *Provider) Enabled() bool {
	return p.logs != nil
}

// Shutdown flushes pending records and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("log shutdown: %w", err)
	}
	return nil
}
