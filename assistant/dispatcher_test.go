package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ammansik/conversation-assistant/telemetry"
	"github.com/ammansik/conversation-assistant/transcript"
)

type fakeClient struct {
	mu      sync.Mutex
	prompts []string
	started chan struct{}
	release chan struct{}
	answer  string
	err     error
}

func newFakeClient(answer string, err error) *fakeClient {
	return &fakeClient{answer: answer, err: err, started: make(chan struct{}, 8)}
}

func (c *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	c.started <- struct{}{}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.answer, c.err
}

func (c *fakeClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

type fakeSurface struct {
	assistant chan string
	errs      chan error
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{assistant: make(chan string, 4), errs: make(chan error, 4)}
}

func (s *fakeSurface) ShowTranscript(string)     {}
func (s *fakeSurface) ShowStatus(string)         {}
func (s *fakeSurface) ShowAssistant(text string) { s.assistant <- text }
func (s *fakeSurface) ShowError(err error)       { s.errs <- err }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(cfg Config, acc *transcript.Accumulator, client *fakeClient, surface *fakeSurface) *Dispatcher {
	return NewDispatcher(cfg, acc, client, surface, quietLogger(), telemetry.Noop())
}

func TestDispatchPublishesAnswer(t *testing.T) {
	acc := transcript.NewAccumulator()
	acc.Append("Tell me about yourself. ")
	client := newFakeClient("- mention projects", nil)
	surface := newFakeSurface()
	d := newTestDispatcher(Config{Prompt: "Help: "}, acc, client, surface)
	defer d.Close()

	if err := d.Dispatch(); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	select {
	case got := <-surface.assistant:
		if got != "- mention projects" {
			t.Errorf("ShowAssistant(%q)", got)
		}
	case err := <-surface.errs:
		t.Fatalf("unexpected ShowError(%v)", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no answer published")
	}

	if calls := client.calls(); len(calls) != 1 || calls[0] != "Help: Tell me about yourself. " {
		t.Errorf("prompts = %q", calls)
	}
	if acc.Pending() != "" {
		t.Errorf("pending = %q; want it taken", acc.Pending())
	}
	if acc.Full() != "Tell me about yourself. " {
		t.Errorf("full = %q; want it untouched", acc.Full())
	}
}

func TestDispatchRejectsWhileInFlight(t *testing.T) {
	acc := transcript.NewAccumulator()
	acc.Append("first question ")
	client := newFakeClient("answer", nil)
	client.release = make(chan struct{})
	surface := newFakeSurface()
	d := newTestDispatcher(Config{}, acc, client, surface)
	defer d.Close()

	if err := d.Dispatch(); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	<-client.started

	acc.Append("second question ")
	if err := d.Dispatch(); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second Dispatch() = %v; want ErrInFlight", err)
	}
	if acc.Pending() != "second question " {
		t.Errorf("pending = %q; a rejected dispatch must not take it", acc.Pending())
	}
	if !d.InFlight() {
		t.Error("InFlight() = false during a call")
	}

	close(client.release)
	<-surface.assistant

	deadline := time.Now().Add(2 * time.Second)
	for d.InFlight() {
		if time.Now().After(deadline) {
			t.Fatal("in-flight flag never released")
		}
		time.Sleep(time.Millisecond)
	}
	if err := d.Dispatch(); err != nil {
		t.Fatalf("Dispatch() after completion error: %v", err)
	}
	<-surface.assistant

	calls := client.calls()
	if len(calls) != 2 || calls[1] != "second question " {
		t.Errorf("prompts = %q", calls)
	}
}

func TestDispatchFailureShowsError(t *testing.T) {
	acc := transcript.NewAccumulator()
	acc.Append("lost words ")
	backendErr := errors.New("rate limited")
	surface := newFakeSurface()
	d := newTestDispatcher(Config{}, acc, newFakeClient("", backendErr), surface)
	defer d.Close()

	if err := d.Dispatch(); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	select {
	case err := <-surface.errs:
		if !errors.Is(err, backendErr) {
			t.Errorf("ShowError(%v); want it to wrap %v", err, backendErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error published")
	}
	if acc.Pending() != "" {
		t.Errorf("pending = %q; it is consumed even when the call fails", acc.Pending())
	}
}

func TestDispatchCapsWords(t *testing.T) {
	acc := transcript.NewAccumulator()
	acc.Append(strings.Repeat("word ", 10))
	client := newFakeClient("ok", nil)
	surface := newFakeSurface()
	d := newTestDispatcher(Config{Prompt: ">", WordLimit: 3}, acc, client, surface)
	defer d.Close()

	if err := d.Dispatch(); err != nil {
		t.Fatal(err)
	}
	<-surface.assistant
	if calls := client.calls(); calls[0] != ">word word word" {
		t.Errorf("prompt = %q", calls[0])
	}
}

func TestDispatchZeroWordLimitSendsEverything(t *testing.T) {
	acc := transcript.NewAccumulator()
	acc.Append(strings.Repeat("word ", 4000))
	client := newFakeClient("ok", nil)
	surface := newFakeSurface()
	d := newTestDispatcher(Config{WordLimit: 0}, acc, client, surface)
	defer d.Close()

	if err := d.Dispatch(); err != nil {
		t.Fatal(err)
	}
	<-surface.assistant
	if words := len(strings.Fields(client.calls()[0])); words != 4000 {
		t.Errorf("sent %d words; want all 4000", words)
	}
}

func TestCloseCancelsInFlight(t *testing.T) {
	acc := transcript.NewAccumulator()
	client := newFakeClient("never", nil)
	client.release = make(chan struct{})
	surface := newFakeSurface()
	d := newTestDispatcher(Config{}, acc, client, surface)

	if err := d.Dispatch(); err != nil {
		t.Fatal(err)
	}
	<-client.started

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not cancel the running request")
	}
	if err := <-surface.errs; !errors.Is(err, context.Canceled) {
		t.Errorf("ShowError(%v); want context.Canceled", err)
	}
	if err := d.Dispatch(); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch() after Close = %v; want ErrClosed", err)
	}
}

func TestNewRequest(t *testing.T) {
	req := NewRequest("Prefix. ", "one two  three")
	if req.Prompt != "Prefix. one two  three" || req.Words != 3 || req.Text != "one two  three" {
		t.Errorf("NewRequest() = %+v", req)
	}
	if req.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}
