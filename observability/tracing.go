package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/dsuszek/dev-task/db"
)

// TracingOptions configures the exporting tracer provider.
type TracingOptions struct {
	Endpoint    string  // OTLP gRPC collector, e.g. "localhost:4317"
	Insecure    bool    // plaintext gRPC
	SampleRate  float64 // fraction of root spans kept, 0..1
	Environment string
}

// NewSpanExporter returns an OTLP gRPC exporter for opts.Endpoint. The
// connection is established lazily, so a missing collector is not an error
// here.
func NewSpanExporter(ctx context.Context, opts TracingOptions) (sdktrace.SpanExporter, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("observability: tracing endpoint is required")
	}
	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return nil, fmt.Errorf("observability: otlp exporter: %w", err)
	}
	return exp, nil
}

// NewSampler maps a sample rate to a sampler. Child spans follow their
// parent's decision.
func NewSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// NewTracerProvider builds a provider that batches spans to the OTLP
// exporter and installs it, with the W3C propagator, as the global
// provider. Call Shutdown on exit to flush pending spans.
func NewTracerProvider(ctx context.Context, opts TracingOptions) (*sdktrace.TracerProvider, error) {
	exp, err := NewSpanExporter(ctx, opts)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.DeploymentEnvironmentName(opts.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(NewSampler(opts.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// QueryTracer records one span per SQL statement. It implements db.Tracer.
type QueryTracer struct {
	tracer trace.Tracer
	system string
}

// NewQueryTracer returns a QueryTracer using tp, or the global provider when
// tp is nil. system is the database driver name, e.g. "sqlite3".
func NewQueryTracer(tp trace.TracerProvider, system string) *QueryTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &QueryTracer{tracer: tp.Tracer(ServiceName + "/db"), system: system}
}

// RecordSpan implements db.Tracer.
func (t *QueryTracer) RecordSpan(ctx context.Context, query string, start, end time.Time, err error) {
	_, span := t.tracer.Start(ctx, "db."+statementVerb(query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("db.system", t.system),
			attribute.String("db.statement", query),
		),
	)
	if err != nil && !db.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(end))
}

var _ db.Tracer = (*QueryTracer)(nil)
