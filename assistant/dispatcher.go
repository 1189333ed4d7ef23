package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ammansik/conversation-assistant/display"
	"github.com/ammansik/conversation-assistant/gpt"
	"github.com/ammansik/conversation-assistant/telemetry"
	"github.com/ammansik/conversation-assistant/transcript"
)

// ErrInFlight is returned by Dispatch while an earlier request is running.
var ErrInFlight = errors.New("assistant: request already in flight")

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("assistant: dispatcher closed")

const DefaultTimeout = 60 * time.Second

type Config struct {
	// Prompt is prepended to the transcript excerpt.
	Prompt string
	// WordLimit caps the words sent per request. Zero or less sends the
	// whole pending transcript.
	WordLimit int
	Timeout   time.Duration
}

// Dispatcher sends the transcript gathered since the previous request to the
// language model and publishes the answer. At most one request runs at a
// time.
type Dispatcher struct {
	cfg     Config
	acc     *transcript.Accumulator
	client  gpt.Client
	surface display.Surface
	logger  *slog.Logger
	metrics *telemetry.Metrics

	inflight atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(cfg Config, acc *transcript.Accumulator, client gpt.Client, surface display.Surface, logger *slog.Logger, metrics *telemetry.Metrics) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:     cfg,
		acc:     acc,
		client:  client,
		surface: surface,
		logger:  logger.With(slog.String("component", "assistant")),
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch takes the pending transcript and starts a request for it. It
// returns ErrInFlight, leaving the pending text untouched, if a request is
// still running.
func (d *Dispatcher) Dispatch() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.inflight.CompareAndSwap(false, true) {
		d.metrics.AssistantRequest(d.ctx, telemetry.OutcomeRejected, 0)
		return ErrInFlight
	}

	req := NewRequest(d.cfg.Prompt, d.acc.TakePending(d.cfg.WordLimit))
	d.logger.Info("dispatching assistant request", slog.Int("words", req.Words))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inflight.Store(false)
		d.run(req)
	}()
	return nil
}

// InFlight reports whether a request is running.
func (d *Dispatcher) InFlight() bool {
	return d.inflight.Load()
}

func (d *Dispatcher) run(req Request) {
	ctx, span := d.metrics.Tracer().Start(d.ctx, "assistant.complete",
		trace.WithAttributes(attribute.Int("words", req.Words)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	answer, err := d.client.Complete(ctx, req.Prompt)
	elapsed := time.Since(req.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.AssistantRequest(d.ctx, telemetry.OutcomeError, elapsed)
		d.logger.Error("assistant request failed", slog.String("error", err.Error()))
		d.surface.ShowError(fmt.Errorf("failed to get assistant response: %w", err))
		return
	}

	d.metrics.AssistantRequest(d.ctx, telemetry.OutcomeOK, elapsed)
	d.logger.Info("assistant responded", slog.Duration("elapsed", elapsed))
	d.surface.ShowAssistant(answer)
}

// Close cancels a running request and waits for it to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}
