package stt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ammansik/conversation-assistant/audio"
)

type fakeMsg struct {
	text string
	err  error
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []byte
	chunks   int
	sendErr  error
	ended    bool
	incoming chan fakeMsg

	// endOnEOS makes sendEnd answer with an end of transcript, as a
	// well-behaved service does.
	endOnEOS bool

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming: make(chan fakeMsg, 16),
		closed:   make(chan struct{}),
		endOnEOS: true,
	}
}

func (f *fakeTransport) sendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, chunk...)
	f.chunks++
	return nil
}

func (f *fakeTransport) sendEnd() error {
	f.mu.Lock()
	f.ended = true
	f.mu.Unlock()
	if f.endOnEOS {
		f.incoming <- fakeMsg{err: io.EOF}
	}
	return nil
}

func (f *fakeTransport) recv() (string, error) {
	select {
	case m := <-f.incoming:
		return m.text, m.err
	case <-f.closed:
		return "", errors.New("use of closed connection")
	}
}

func (f *fakeTransport) close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) snapshot() ([]byte, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.sent...), f.chunks, f.ended
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runSession(s *session, src AudioSource, events chan Event) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), src, events) }()
	return done
}

func TestSessionGracefulStop(t *testing.T) {
	ft := newFakeTransport()
	s := newSession(ft, 4, quietLogger())
	buf := audio.NewBuffer(0)
	events := make(chan Event, 4)

	buf.Write([]byte("abcdefghijkl"))
	done := runSession(s, buf, events)

	ft.incoming <- fakeMsg{text: "hello "}
	select {
	case ev := <-events:
		if ev.Text != "hello " {
			t.Errorf("event text = %q", ev.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	waitFor(t, "three chunks", func() bool {
		_, n, _ := ft.snapshot()
		return n == 3
	})
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v; want nil after Stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}

	sent, _, ended := ft.snapshot()
	if !bytes.Equal(sent, []byte("abcdefghijkl")) {
		t.Errorf("sent %q", sent)
	}
	if !ended {
		t.Error("end of stream was not sent")
	}
}

func TestSessionServerError(t *testing.T) {
	ft := newFakeTransport()
	s := newSession(ft, 4, quietLogger())
	buf := audio.NewBuffer(0)
	done := runSession(s, buf, make(chan Event, 1))

	boom := errors.New("quota exceeded")
	ft.incoming <- fakeMsg{err: boom}

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run() = %v; want %v", err, boom)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after a receive error")
	}
	waitFor(t, "transport close", ft.isClosed)
}

func TestSessionEndedByServer(t *testing.T) {
	ft := newFakeTransport()
	s := newSession(ft, 4, quietLogger())
	done := runSession(s, audio.NewBuffer(0), make(chan Event, 1))

	ft.incoming <- fakeMsg{err: io.EOF}

	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionEnded) {
			t.Errorf("Run() = %v; want ErrSessionEnded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after the server ended the stream")
	}
}

func TestSessionSendError(t *testing.T) {
	ft := newFakeTransport()
	boom := errors.New("broken pipe")
	ft.sendErr = boom
	s := newSession(ft, 4, quietLogger())
	buf := audio.NewBuffer(0)
	buf.Write([]byte("abcd"))

	done := runSession(s, buf, make(chan Event, 1))
	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run() = %v; want %v", err, boom)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after a send error")
	}
	waitFor(t, "transport close", ft.isClosed)
}

func TestSessionContextCancel(t *testing.T) {
	ft := newFakeTransport()
	ft.endOnEOS = false
	s := newSession(ft, 4, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, audio.NewBuffer(0), make(chan Event, 1)) }()

	// A stop that the service never confirms is cut short by cancellation.
	s.Stop()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v; want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	waitFor(t, "transport close", ft.isClosed)
}

func TestSessionCloseIdempotent(t *testing.T) {
	ft := newFakeTransport()
	s := newSession(ft, 0, nil)
	if s.chunkSize != DefaultChunkSize {
		t.Errorf("chunkSize = %d; want %d", s.chunkSize, DefaultChunkSize)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.stopped() {
		t.Error("Close did not stop the session")
	}
}
