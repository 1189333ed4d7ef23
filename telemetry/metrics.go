package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/ammansik/conversation-assistant"

// Outcomes recorded on session and assistant counters.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Metrics groups the instruments recorded by the pipeline.
type Metrics struct {
	tracer trace.Tracer

	audioBytes   metric.Int64Counter
	droppedBytes metric.Int64Counter
	segments     metric.Int64Counter
	sessions     metric.Int64Counter
	requests     metric.Int64Counter
	latency      metric.Float64Histogram
}

// New creates instruments on the global meter and tracer providers.
func New() (*Metrics, error) {
	return NewWith(otel.Meter(instrumentationName), otel.Tracer(instrumentationName))
}

func NewWith(meter metric.Meter, tracer trace.Tracer) (*Metrics, error) {
	m := &Metrics{tracer: tracer}
	var err error

	if m.audioBytes, err = meter.Int64Counter("assistant.audio.streamed_bytes",
		metric.WithDescription("Audio bytes sent to the recognizer"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.droppedBytes, err = meter.Int64Counter("assistant.audio.dropped_bytes",
		metric.WithDescription("Audio bytes evicted from the capture buffer"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.segments, err = meter.Int64Counter("assistant.transcript.segments",
		metric.WithDescription("Final transcript segments received")); err != nil {
		return nil, err
	}
	if m.sessions, err = meter.Int64Counter("assistant.sessions",
		metric.WithDescription("Recognition sessions by outcome")); err != nil {
		return nil, err
	}
	if m.requests, err = meter.Int64Counter("assistant.requests",
		metric.WithDescription("Assistant requests by outcome")); err != nil {
		return nil, err
	}
	if m.latency, err = meter.Float64Histogram("assistant.request.duration",
		metric.WithDescription("Assistant request latency"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// Noop returns metrics that record nothing.
func Noop() *Metrics {
	m, _ := NewWith(metricnoop.NewMeterProvider().Meter(""), tracenoop.NewTracerProvider().Tracer(""))
	return m
}

func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}

func (m *Metrics) AudioStreamed(ctx context.Context, n int64) {
	if n > 0 {
		m.audioBytes.Add(ctx, n)
	}
}

func (m *Metrics) AudioDropped(ctx context.Context, n int64) {
	if n > 0 {
		m.droppedBytes.Add(ctx, n)
	}
}

func (m *Metrics) SegmentReceived(ctx context.Context) {
	m.segments.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context, outcome string) {
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) AssistantRequest(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.requests.Add(ctx, 1, attrs)
	if outcome != OutcomeRejected {
		m.latency.Record(ctx, elapsed.Seconds(), attrs)
	}
}
