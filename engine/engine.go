package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ammansik/conversation-assistant/audio"
	"github.com/ammansik/conversation-assistant/display"
	"github.com/ammansik/conversation-assistant/stt"
	"github.com/ammansik/conversation-assistant/telemetry"
	"github.com/ammansik/conversation-assistant/transcript"
)

var (
	ErrInvalidState = errors.New("engine: invalid state")
	ErrDevice       = errors.New("engine: audio device error")
	ErrRecognition  = errors.New("engine: recognition error")
)

// Status strings shown on the display surface.
const (
	StatusRecording = "recording"
	StatusPaused    = "paused"
	StatusIdle      = "idle"
)

const DefaultStopTimeout = 5 * time.Second

// EngineConfig holds the session settings
type EngineConfig struct {
	// StopTimeout bounds how long Stop waits for the service to confirm the
	// end of the transcript before cancelling the session.
	StopTimeout time.Duration
	// MaxBufferedBytes caps unsent audio; 0 keeps everything.
	MaxBufferedBytes int
}

// Engine ties one capture stream to one recognition session and feeds the
// transcript into the accumulator.
type Engine struct {
	config     EngineConfig
	capturer   audio.Capturer
	recognizer stt.Recognizer
	acc        *transcript.Accumulator
	surface    display.Surface
	logger     *slog.Logger
	metrics    *telemetry.Metrics

	mu      sync.Mutex
	state   State
	paused  bool
	current *activeSession
}

// activeSession is the capture stream and recognition session of one
// recording, released together.
type activeSession struct {
	id     string
	stream audio.Stream
	sess   stt.Session
	buf    *audio.Buffer
	span   trace.Span
	cancel context.CancelFunc
	logger *slog.Logger

	done chan struct{} // closed once Run returned and all events are applied
	err  error         // Run's result, set before done is closed
}

// NewEngine creates an idle engine
func NewEngine(
	config EngineConfig,
	capturer audio.Capturer,
	recognizer stt.Recognizer,
	acc *transcript.Accumulator,
	surface display.Surface,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) *Engine {
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Engine{
		config:     config,
		capturer:   capturer,
		recognizer: recognizer,
		acc:        acc,
		surface:    surface,
		logger:     logger.With(slog.String("component", "engine")),
		metrics:    metrics,
	}
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Paused reports whether capture is paused within a running session
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// SessionID returns the id of the running session, or "" when idle
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.id
}

// Start opens the capture device and a recognition session and begins
// streaming. ctx bounds the service handshake only.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Idle {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, state)
	}
	e.state = Starting
	e.mu.Unlock()

	as, err := e.open(ctx)
	if err != nil {
		e.setIdle()
		return err
	}

	runCtx, cancel := context.WithCancel(trace.ContextWithSpan(context.Background(), as.span))
	as.cancel = cancel
	events := make(chan stt.Event, 16)
	consumed := make(chan struct{})

	e.mu.Lock()
	e.current = as
	e.state = Running
	e.paused = false
	e.mu.Unlock()

	go func() {
		defer close(consumed)
		e.consume(runCtx, as, events)
	}()
	go func() {
		err := as.sess.Run(runCtx, as.buf, events)
		close(events)
		<-consumed
		e.finish(as, err)
	}()

	as.logger.Info("session started")
	e.surface.ShowStatus(StatusRecording)
	return nil
}

func (e *Engine) open(ctx context.Context) (*activeSession, error) {
	id := uuid.NewString()
	logger := e.logger.With(slog.String("session_id", id))
	buf := audio.NewBuffer(e.config.MaxBufferedBytes)

	stream, err := e.capturer.Open(buf.Write)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open capture stream: %w", ErrDevice, err)
	}

	format := stream.Format()
	logger.Info("capture stream opened",
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("channels", format.Channels),
		slog.String("encoding", format.Encoding.String()))

	sess, err := e.recognizer.Open(ctx, format)
	if err != nil {
		if cerr := stream.Close(); cerr != nil {
			logger.Warn("failed to close capture stream", slog.String("error", cerr.Error()))
		}
		return nil, fmt.Errorf("%w: failed to open recognition session: %w", ErrRecognition, err)
	}

	if err := stream.Start(); err != nil {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("failed to close recognition session", slog.String("error", cerr.Error()))
		}
		if cerr := stream.Close(); cerr != nil {
			logger.Warn("failed to close capture stream", slog.String("error", cerr.Error()))
		}
		return nil, fmt.Errorf("%w: failed to start capture: %w", ErrDevice, err)
	}

	_, span := e.metrics.Tracer().Start(context.Background(), "engine.session",
		trace.WithAttributes(attribute.String("session.id", id)))

	return &activeSession{
		id:     id,
		stream: stream,
		sess:   sess,
		buf:    buf,
		span:   span,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// consume applies transcript segments in delivery order.
func (e *Engine) consume(ctx context.Context, as *activeSession, events <-chan stt.Event) {
	for ev := range events {
		e.acc.Append(ev.Text)
		e.metrics.SegmentReceived(ctx)
		as.logger.Debug("transcript segment", slog.String("text", ev.Text))
		e.surface.ShowTranscript(e.acc.Full())
	}
}

// finish runs when a session's Run returns. Unless Stop is already tearing
// the session down, the session failed: release it and report the error.
func (e *Engine) finish(as *activeSession, err error) {
	e.mu.Lock()
	failed := e.current == as && e.state == Running
	if failed {
		e.state = Stopping
	}
	e.mu.Unlock()

	as.err = err
	close(as.done)
	if !failed {
		return
	}

	if err == nil {
		err = stt.ErrSessionEnded
	}
	as.logger.Error("session failed", slog.String("error", err.Error()))
	e.closeCapture(as)
	e.release(as, telemetry.OutcomeError, err)
	e.setIdle()

	e.surface.ShowStatus(StatusIdle)
	e.surface.ShowError(fmt.Errorf("%w: %w", ErrRecognition, err))
}

// Stop ends capture, lets the service flush the remaining transcript and
// closes the session.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Running {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot stop while %s", ErrInvalidState, state)
	}
	e.state = Stopping
	as := e.current
	e.mu.Unlock()

	as.logger.Info("stopping session")
	e.closeCapture(as)
	as.sess.Stop()

	timer := time.NewTimer(e.config.StopTimeout)
	defer timer.Stop()

	var stopErr error
	select {
	case <-as.done:
	case <-timer.C:
		stopErr = fmt.Errorf("%w: session did not end within %s", ErrRecognition, e.config.StopTimeout)
	case <-ctx.Done():
		stopErr = fmt.Errorf("failed to stop session: %w", ctx.Err())
	}
	if stopErr != nil {
		as.logger.Warn("cancelling session", slog.String("error", stopErr.Error()))
		as.cancel()
		<-as.done
	} else if as.err != nil {
		stopErr = fmt.Errorf("%w: %w", ErrRecognition, as.err)
	}

	outcome := telemetry.OutcomeOK
	if stopErr != nil {
		outcome = telemetry.OutcomeError
	}
	e.release(as, outcome, stopErr)
	e.setIdle()
	e.surface.ShowStatus(StatusIdle)
	as.logger.Info("session stopped")
	return stopErr
}

// Pause stops the hardware stream. The recognition session stays open.
func (e *Engine) Pause() error {
	changed, err := e.setPaused(true)
	if changed {
		e.surface.ShowStatus(StatusPaused)
	}
	return err
}

// Resume restarts a paused hardware stream.
func (e *Engine) Resume() error {
	changed, err := e.setPaused(false)
	if changed {
		e.surface.ShowStatus(StatusRecording)
	}
	return err
}

func (e *Engine) setPaused(paused bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return false, fmt.Errorf("%w: cannot change pause while %s", ErrInvalidState, e.state)
	}
	if e.paused == paused {
		return false, nil
	}
	stream := e.current.stream
	op := stream.Start
	if paused {
		op = stream.Stop
	}
	if err := op(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	e.paused = paused
	e.current.logger.Info("capture paused", slog.Bool("paused", paused))
	return true, nil
}

// closeCapture stops and closes the capture stream of as.
func (e *Engine) closeCapture(as *activeSession) {
	if err := as.stream.Stop(); err != nil {
		as.logger.Warn("failed to stop capture stream", slog.String("error", err.Error()))
	}
	if err := as.stream.Close(); err != nil {
		as.logger.Warn("failed to close capture stream", slog.String("error", err.Error()))
	}
}

// release closes the recognition session and records how it ended.
func (e *Engine) release(as *activeSession, outcome string, err error) {
	if cerr := as.sess.Close(); cerr != nil {
		as.logger.Debug("failed to close recognition session", slog.String("error", cerr.Error()))
	}
	as.cancel()

	ctx := context.Background()
	stats := as.buf.Stats()
	e.metrics.AudioStreamed(ctx, stats.Read)
	e.metrics.AudioDropped(ctx, stats.Dropped)
	e.metrics.SessionEnded(ctx, outcome)

	if err != nil {
		as.span.RecordError(err)
		as.span.SetStatus(codes.Error, err.Error())
	}
	as.span.SetAttributes(
		attribute.Int64("audio.read_bytes", stats.Read),
		attribute.Int64("audio.dropped_bytes", stats.Dropped))
	as.span.End()

	as.logger.Info("session released",
		slog.Int64("audio_bytes", stats.Read),
		slog.Int64("dropped_bytes", stats.Dropped),
		slog.String("outcome", outcome))
}

func (e *Engine) setIdle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Idle
	e.paused = false
	e.current = nil
}
