// Package telemetry wires OpenTelemetry for specsync. It is off unless
// SPECSYNC_OTEL_ENABLED=true, in which case spans from the sync engine and
// the GitHub gateway are exported.
//
// # Environment
//
//	SPECSYNC_OTEL_ENABLED=true          turn telemetry on
//	SPECSYNC_OTEL_STDOUT=true           pretty-print spans and metrics to stderr
//	OTEL_EXPORTER_OTLP_ENDPOINT         OTLP/HTTP collector for metrics (host:port or URL)
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT metrics-only override of the above
//	OTEL_SERVICE_NAME                   service name (default: specsync)
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/steveyegge/specsync"

const (
	stdoutMetricInterval = 15 * time.Second
	otlpMetricInterval   = 30 * time.Second
)

// exportWriter receives stdout exporter output. It is stderr so exported
// spans never mix with --json output.
var exportWriter io.Writer = os.Stderr

// settings is the telemetry environment, read once per Init.
type settings struct {
	enabled        bool
	stdout         bool
	serviceName    string
	metricEndpoint string
}

func settingsFromEnv(defaultService string) settings {
	s := settings{
		enabled:     os.Getenv("SPECSYNC_OTEL_ENABLED") == "true",
		stdout:      os.Getenv("SPECSYNC_OTEL_STDOUT") == "true",
		serviceName: firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), defaultService),
		metricEndpoint: firstNonEmpty(
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		),
	}
	return s
}

// traceToStdout reports whether spans are printed. With no collector
// configured they would otherwise go nowhere.
func (s settings) traceToStdout() bool {
	return s.stdout || s.metricEndpoint == ""
}

// providers holds what Init installed so Shutdown can flush it.
type providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

var active *providers

// Enabled reports whether SPECSYNC_OTEL_ENABLED=true.
func Enabled() bool {
	return settingsFromEnv("").enabled
}

// Init installs the global tracer and meter providers. When telemetry is
// off it installs no-op providers so instrumented code costs nothing.
func Init(ctx context.Context, serviceName, version string) error {
	s := settingsFromEnv(serviceName)
	if !s.enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(s.serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTracerProvider(s, res)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	mp, err := newMeterProvider(ctx, s, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	active = &providers{tp: tp, mp: mp}
	return nil
}

func newTracerProvider(s settings, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if s.traceToStdout() {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(exportWriter))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, s settings, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if s.stdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(exportWriter))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(stdoutMetricInterval)),
		))
	}
	if s.metricEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, s.metricEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpMetricInterval)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer for name, or for the specsync scope when empty.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for name, or for the specsync scope when empty.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics. It is safe to call when Init
// installed nothing.
func Shutdown(ctx context.Context) error {
	if active == nil {
		return nil
	}
	p := active
	active = nil
	return errors.Join(p.tp.Shutdown(ctx), p.mp.Shutdown(ctx))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
