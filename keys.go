package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eiannone/keyboard"

	"github.com/ammansik/conversation-assistant/assistant"
	"github.com/ammansik/conversation-assistant/display"
	"github.com/ammansik/conversation-assistant/engine"
)

const keyHelp = "r record | s pause | h help | x end session | q quit"

// recorder is the part of *engine.Engine the shell drives.
type recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Pause() error
	Resume() error
	State() engine.State
	Paused() bool
}

type dispatcher interface {
	Dispatch() error
}

// shell maps key presses to engine and assistant actions.
type shell struct {
	rec         recorder
	assist      dispatcher
	surface     display.Surface
	logger      *slog.Logger
	stopTimeout time.Duration
}

// handle runs the action bound to a key and reports whether to quit.
func (s *shell) handle(ctx context.Context, char rune, key keyboard.Key) bool {
	var err error
	switch {
	case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC || char == 'q':
		s.shutdown()
		return true
	case char == 'r':
		err = s.record(ctx)
	case char == 's':
		err = s.rec.Pause()
	case char == 'h':
		err = s.assist.Dispatch()
		if errors.Is(err, assistant.ErrInFlight) {
			s.surface.ShowStatus("assistant is still answering")
			err = nil
		}
	case char == 'x':
		err = s.stop(ctx)
	default:
		return false
	}
	if err != nil {
		s.logger.Warn("key action failed", slog.String("key", string(char)), slog.String("error", err.Error()))
		s.surface.ShowError(err)
	}
	return false
}

// record starts a session, or resumes a paused one.
func (s *shell) record(ctx context.Context) error {
	if s.rec.State() == engine.Running {
		if s.rec.Paused() {
			return s.rec.Resume()
		}
		return nil
	}
	return s.rec.Start(ctx)
}

func (s *shell) stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.stopTimeout+time.Second)
	defer cancel()
	return s.rec.Stop(ctx)
}

// shutdown stops a running session before exit.
func (s *shell) shutdown() {
	if s.rec.State() != engine.Running {
		return
	}
	if err := s.stop(context.Background()); err != nil {
		s.logger.Warn("failed to stop session on exit", slog.String("error", err.Error()))
	}
}

// run reads keys until the user quits or ctx is done.
func (s *shell) run(ctx context.Context) error {
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return err
	}
	defer keyboard.Close()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-keys:
			if ev.Err != nil {
				s.logger.Warn("failed to read key", slog.String("error", ev.Err.Error()))
				continue
			}
			if s.handle(ctx, ev.Rune, ev.Key) {
				return nil
			}
		}
	}
}
