package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitDisabled(t *testing.T) {
	t.Setenv("SPECSYNC_OTEL_ENABLED", "")
	ctx := context.Background()
	require.NoError(t, Init(ctx, "specsync", "test"))
	assert.Nil(t, active)
	assert.NoError(t, Shutdown(ctx))

	_, span := Tracer("").Start(ctx, "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	old := exportWriter
	exportWriter = &buf
	defer func() { exportWriter = old }()

	t.Setenv("SPECSYNC_OTEL_ENABLED", "true")
	t.Setenv("SPECSYNC_OTEL_STDOUT", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	ctx := context.Background()
	require.NoError(t, Init(ctx, "specsync", "test"))
	require.NotNil(t, active)

	_, span := otel.Tracer("test").Start(ctx, "specsync.test-span")
	span.End()
	require.NoError(t, Shutdown(ctx))

	assert.Nil(t, active)
	assert.Contains(t, buf.String(), "specsync.test-span")
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("SPECSYNC_OTEL_ENABLED", "true")
	t.Setenv("SPECSYNC_OTEL_STDOUT", "")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	s := settingsFromEnv("specsync")
	assert.True(t, s.enabled)
	assert.Equal(t, "specsync", s.serviceName)
	assert.Equal(t, "localhost:4318", s.metricEndpoint)
	assert.False(t, s.traceToStdout(), "a collector is configured")

	t.Setenv("OTEL_SERVICE_NAME", "ci-sync")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "https://otel.example.com/v1/metrics")
	s = settingsFromEnv("specsync")
	assert.Equal(t, "ci-sync", s.serviceName)
	assert.Equal(t, "https://otel.example.com/v1/metrics", s.metricEndpoint)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
