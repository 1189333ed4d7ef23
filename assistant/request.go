package assistant

import (
	"strings"
	"time"
)

// Request is one prompt sent to the language model.
type Request struct {
	// Prompt is the instruction prefix followed by the transcript excerpt.
	Prompt    string
	Text      string
	Words     int
	CreatedAt time.Time
}

func NewRequest(prefix, text string) Request {
	return Request{
		Prompt:    prefix + text,
		Text:      text,
		Words:     len(strings.Fields(text)),
		CreatedAt: time.Now(),
	}
}
