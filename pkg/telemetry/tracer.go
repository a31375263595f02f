package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// Attribute keys used in launcher spans.
const (
	AttrRunID      = attribute.Key("spinup.run_id")
	AttrProvider   = attribute.Key("spinup.provider")
	AttrInstanceIP = attribute.Key("spinup.instance_ip")
	AttrPhase      = attribute.Key("spinup.phase")
	AttrAttempt    = attribute.Key("spinup.attempt")
)

// Tracer wraps an OpenTelemetry tracer with launcher span helpers.
// A nil *Tracer is valid and produces no spans.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewTracer creates a tracer from the given configuration. When tracing
// is disabled it returns nil, which disables all span helpers.
func NewTracer(ctx context.Context, cfg TracingConfig, serviceName, serviceVersion string) (*Tracer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp", "":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.ExportTimeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{
		tracer:   tp.Tracer(serviceName),
		provider: tp,
	}, nil
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartLaunch starts a root span for a launch run.
func (t *Tracer) StartLaunch(ctx context.Context, runID, provider string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan(ctx)
	}
	return t.tracer.Start(ctx, "launch",
		trace.WithAttributes(
			AttrRunID.String(runID),
			AttrProvider.String(provider),
		),
	)
}

// StartPhase starts a child span for a launch phase such as
// "provision", "inject-env", or "run-agent".
func (t *Tracer) StartPhase(ctx context.Context, phase string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan(ctx)
	}
	return t.tracer.Start(ctx, phase,
		trace.WithAttributes(AttrPhase.String(phase)),
	)
}

// RecordError records an error on the span and marks its status.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

func noopSpan(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
