package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultChunkSize is the number of audio bytes sent per network message.
const DefaultChunkSize = 1024

// transport is the wire side of a session. sendAudio and sendEnd are called
// from one goroutine, recv from another; close may be called at any time and
// must unblock both.
type transport interface {
	sendAudio(chunk []byte) error
	sendEnd() error
	// recv returns the next final segment, "" for messages carrying none,
	// and io.EOF once the service has finished the transcript.
	recv() (string, error)
	close() error
}

// session pumps audio from a source into a transport and transcript
// segments from the transport into an events channel.
type session struct {
	t         transport
	chunkSize int
	logger    *slog.Logger

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*session)(nil)

func newSession(t transport, chunkSize int, logger *slog.Logger) *session {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &session{
		t:         t,
		chunkSize: chunkSize,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

func (s *session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()
		s.closeErr = s.t.close()
	})
	return s.closeErr
}

func (s *session) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *session) Run(parent context.Context, src AudioSource, events chan<- Event) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		failOnce sync.Once
		failErr  error
	)
	fail := func(err error) {
		failOnce.Do(func() { failErr = err })
		cancel()
	}

	// Cancellation closes the transport so a blocked recv or send returns.
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		err := s.receive(ctx, events)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			fail(err)
		case !s.stopped():
			fail(ErrSessionEnded)
		}
	}()

	if err := s.send(ctx, src); err != nil && ctx.Err() == nil {
		fail(err)
	}
	<-recvDone

	if err := parent.Err(); err != nil {
		return err
	}
	return failErr
}

func (s *session) receive(ctx context.Context, events chan<- Event) error {
	for {
		text, err := s.t.recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive transcript: %w", err)
		}
		if text == "" {
			continue
		}
		select {
		case events <- Event{Text: text, Received: time.Now()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *session) send(ctx context.Context, src AudioSource) error {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go func() {
		select {
		case <-s.stop:
			cancelRead()
		case <-readCtx.Done():
		}
	}()

	var sent int64
	for {
		chunk, err := src.Read(readCtx, s.chunkSize)
		if err != nil {
			if s.stopped() && ctx.Err() == nil {
				s.logger.Debug("end of audio", slog.Int64("bytes", sent))
				if err := s.t.sendEnd(); err != nil {
					return fmt.Errorf("failed to send end of stream: %w", err)
				}
				return nil
			}
			return err
		}
		if err := s.t.sendAudio(chunk); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sent += int64(len(chunk))
	}
}
