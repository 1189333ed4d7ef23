package display

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ammansik/conversation-assistant/sound"
	"github.com/ammansik/conversation-assistant/tts"
)

// Speaker reads assistant responses aloud. A new response interrupts the
// one being spoken. Other updates are ignored.
type Speaker struct {
	synth  tts.Synthesizer
	player sound.Player
	log    *slog.Logger

	queue chan string
	ctx   context.Context
	stop  context.CancelFunc
	done  chan struct{}

	mu      sync.Mutex
	current context.CancelFunc
}

var _ Surface = (*Speaker)(nil)

func NewSpeaker(synth tts.Synthesizer, player sound.Player, log *slog.Logger) *Speaker {
	ctx, stop := context.WithCancel(context.Background())
	s := &Speaker{
		synth:  synth,
		player: player,
		log:    log.With(slog.String("component", "speaker")),
		queue:  make(chan string, 1),
		ctx:    ctx,
		stop:   stop,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Speaker) ShowTranscript(string) {}
func (s *Speaker) ShowError(error)       {}
func (s *Speaker) ShowStatus(string)     {}

func (s *Speaker) ShowAssistant(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.current != nil {
		s.current()
	}
	s.mu.Unlock()

	// Only the latest response waits.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- text:
	default:
	}
}

func (s *Speaker) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.queue:
			ctx, cancel := context.WithCancel(s.ctx)
			s.mu.Lock()
			s.current = cancel
			s.mu.Unlock()

			if err := s.speak(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("failed to speak response", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

func (s *Speaker) speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []byte, 16)
	pr, pw := io.Pipe()

	synthErr := make(chan error, 1)
	go func() {
		synthErr <- s.synth.Synthesize(ctx, text, chunks)
	}()
	go func() {
		for chunk := range chunks {
			if _, err := pw.Write(chunk); err != nil {
				// Keep draining so the synthesizer can finish.
				continue
			}
		}
		pw.Close()
	}()

	playErr := s.player.PlayMP3(ctx, pr)
	pr.Close()
	cancel()
	if err := <-synthErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return playErr
}

// Close stops playback and waits for it to end.
func (s *Speaker) Close() {
	s.stop()
	<-s.done
}
