package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/wippyai/wasi-hostbridge/runtime"

// Dispatch outcomes recorded on spans and metrics.
const (
	outcomeOK         = "ok"
	outcomeError      = "error"
	outcomeUnanswered = "unanswered"
)

type telemetry struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("hostbridge.requests",
		metric.WithDescription("Incoming requests dispatched to the handler"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("hostbridge.request.duration",
		metric.WithDescription("Time from dispatch to scheduler quiescence"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &telemetry{
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
	}, nil
}

func (t *telemetry) start(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "hostbridge.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		))
}

func (t *telemetry) finish(ctx context.Context, span trace.Span, started time.Time, outcome string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("hostbridge.outcome", outcome))
	span.End()

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	t.requests.Add(ctx, 1, attrs)
	t.duration.Record(ctx, time.Since(started).Seconds(), attrs)
}
