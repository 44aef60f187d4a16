package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/specsync/internal/github"
)

const gatewayScopeName = "github.com/steveyegge/specsync/github"

// InstrumentedGateway wraps github.Gateway with OTel tracing and metrics.
// Every GraphQL operation gets a client span and is counted in
// specsync.gateway.* metrics. Use WrapGateway to create one; it returns the
// original gateway unchanged when telemetry is disabled.
type InstrumentedGateway struct {
	inner  github.Gateway
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapGateway returns g decorated with OTel instrumentation.
// When telemetry is disabled, g is returned as-is with zero overhead.
func WrapGateway(g github.Gateway) github.Gateway {
	if !Enabled() {
		return g
	}
	return newInstrumentedGateway(g, Tracer(gatewayScopeName), Meter(gatewayScopeName))
}

func newInstrumentedGateway(g github.Gateway, tracer trace.Tracer, m metric.Meter) *InstrumentedGateway {
	ops, _ := m.Int64Counter("specsync.gateway.operations",
		metric.WithDescription("Total GraphQL operations executed"),
	)
	dur, _ := m.Float64Histogram("specsync.gateway.operation.duration",
		metric.WithDescription("GraphQL operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("specsync.gateway.errors",
		metric.WithDescription("Total GraphQL operation errors"),
	)
	return &InstrumentedGateway{inner: g, tracer: tracer, ops: ops, dur: dur, errs: errs}
}

// Execute runs the operation through the wrapped gateway.
func (g *InstrumentedGateway) Execute(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	name, mutation := github.OperationName(query)
	kind := "query"
	if mutation {
		kind = "mutation"
	}
	attrs := []attribute.KeyValue{
		attribute.String("graphql.operation.name", name),
		attribute.String("graphql.operation.type", kind),
	}

	ctx, span := g.tracer.Start(ctx, "github."+name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	g.ops.Add(ctx, 1, metric.WithAttributes(attrs...))
	start := time.Now()

	data, err := g.inner.Execute(ctx, query, variables)

	g.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return data, err
}
