package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/hackgods/opd-token-allocation"
	metricInterval      = 15 * time.Second
)

type Config struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string // host:port
	SampleRatio  float64
}

// Setup configures the global tracer and meter providers and propagators.
// The returned func flushes spans and metrics on shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, err
	}

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := newMeterProvider(res, sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(metricInterval)))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newMeterProvider(res *resource.Resource, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
}

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// Metrics holds the allocation counters. They record nothing until Setup has
// installed a meter provider.
type Metrics struct {
	Operations  metric.Int64Counter
	Admitted    metric.Int64Counter
	Queued      metric.Int64Counter
	Preemptions metric.Int64Counter
	SinkErrors  metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	ops, err := meter.Int64Counter("opd.operations",
		metric.WithDescription("Service operations by name and outcome"))
	if err != nil {
		return nil, err
	}
	admitted, err := meter.Int64Counter("opd.tokens.admitted",
		metric.WithDescription("Tokens admitted into a slot"))
	if err != nil {
		return nil, err
	}
	queued, err := meter.Int64Counter("opd.tokens.queued",
		metric.WithDescription("Tokens placed on a waiting list"))
	if err != nil {
		return nil, err
	}
	preemptions, err := meter.Int64Counter("opd.emergency.preemptions",
		metric.WithDescription("Admitted tokens moved to the waiting list by an emergency"))
	if err != nil {
		return nil, err
	}
	sinkErrors, err := meter.Int64Counter("opd.events.sink_errors",
		metric.WithDescription("Event sink write failures"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Operations:  ops,
		Admitted:    admitted,
		Queued:      queued,
		Preemptions: preemptions,
		SinkErrors:  sinkErrors,
	}, nil
}

// Op counts one service call. A nil *Metrics records nothing.
func (m *Metrics) Op(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) TokenAdmitted(ctx context.Context, priority string) {
	if m == nil {
		return
	}
	m.Admitted.Add(ctx, 1, metric.WithAttributes(attribute.String("priority", priority)))
}

func (m *Metrics) TokenQueued(ctx context.Context, priority string) {
	if m == nil {
		return
	}
	m.Queued.Add(ctx, 1, metric.WithAttributes(attribute.String("priority", priority)))
}

func (m *Metrics) Preempted(ctx context.Context, priority string) {
	if m == nil {
		return
	}
	m.Preemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("priority", priority)))
}

func (m *Metrics) SinkError(ctx context.Context, sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
