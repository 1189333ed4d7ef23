package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	clearScreen = "\x1b[H\x1b[2J"
	red         = "\x1b[31m"
	dim         = "\x1b[2m"
	reset       = "\x1b[0m"
)

// Terminal renders the transcript and assistant panes to a writer. With
// ANSI enabled it redraws the whole screen on every update; otherwise it
// prints one line per change.
type Terminal struct {
	mu   sync.Mutex
	w    io.Writer
	ansi bool
	// tail limits how much of the transcript is redrawn.
	tail int
	keys string

	transcript string
	assistant  string
	status     string
	lastErr    string
}

var _ Surface = (*Terminal)(nil)

func NewTerminal(w io.Writer, ansi bool) *Terminal {
	return &Terminal{w: w, ansi: ansi, tail: 2000}
}

// SetHelp sets the key legend shown under the panes.
func (t *Terminal) SetHelp(keys string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = keys
}

func (t *Terminal) ShowTranscript(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.transcript
	t.transcript = text
	if t.ansi {
		t.render()
		return
	}
	delta := text
	if strings.HasPrefix(text, prev) {
		delta = text[len(prev):]
	}
	if delta = strings.TrimSpace(delta); delta != "" {
		fmt.Fprintf(t.w, "transcript: %s\n", delta)
	}
}

func (t *Terminal) ShowAssistant(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assistant = text
	t.lastErr = ""
	if t.ansi {
		t.render()
		return
	}
	fmt.Fprintf(t.w, "assistant:\n%s\n", text)
}

func (t *Terminal) ShowError(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = err.Error()
	if t.ansi {
		t.render()
		return
	}
	fmt.Fprintf(t.w, "error: %s\n", t.lastErr)
}

func (t *Terminal) ShowStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	if t.ansi {
		t.render()
		return
	}
	fmt.Fprintf(t.w, "status: %s\n", status)
}

// render redraws both panes. Callers hold t.mu.
func (t *Terminal) render() {
	var b strings.Builder
	b.WriteString(clearScreen)

	b.WriteString("=== Transcript ===\n")
	transcript := t.transcript
	if len(transcript) > t.tail {
		cut := len(transcript) - t.tail
		for cut < len(transcript) && !utf8.RuneStart(transcript[cut]) {
			cut++
		}
		transcript = "..." + transcript[cut:]
	}
	b.WriteString(transcript)
	b.WriteString("\n\n")

	b.WriteString("=== Assistant ===\n")
	b.WriteString(red)
	b.WriteString(t.assistant)
	b.WriteString(reset)
	b.WriteString("\n\n")

	if t.lastErr != "" {
		fmt.Fprintf(&b, "%serror: %s%s\n", red, t.lastErr, reset)
	}
	if t.status != "" || t.keys != "" {
		fmt.Fprintf(&b, "%s[%s] %s%s\n", dim, t.status, t.keys, reset)
	}
	io.WriteString(t.w, b.String())
}
