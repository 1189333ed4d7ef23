package transcript

import (
	"regexp"
	"strings"
	"sync"
)

var spaceBeforePunct = regexp.MustCompile(` +([.,?!])`)

// Normalize removes the spaces recognizers leave before . , ? and !.
func Normalize(text string) string {
	return spaceBeforePunct.ReplaceAllString(text, "$1")
}

// LimitWords keeps the first limit whitespace-separated words of text. Text
// under the limit is returned unchanged; a truncated result is joined with
// single spaces. A limit of zero or less disables the cap.
func LimitWords(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ")
}

// Accumulator holds the running transcript. Full is what the user sees and
// only ever grows; Pending is the text collected since the last assistant
// request.
type Accumulator struct {
	mu      sync.Mutex
	full    string
	pending string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds a recognized segment to both texts and normalizes the full
// transcript. Segments are concatenated as delivered.
func (a *Accumulator) Append(segment string) {
	if segment == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending += segment
	a.full = Normalize(a.full + segment)
}

// TakePending returns the pending text capped at wordLimit words and clears
// it. The full transcript is left untouched.
func (a *Accumulator) TakePending(wordLimit int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := LimitWords(a.pending, wordLimit)
	a.pending = ""
	return out
}

func (a *Accumulator) Full() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.full
}

func (a *Accumulator) Pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}
