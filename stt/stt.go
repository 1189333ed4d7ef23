package stt

import (
	"context"
	"errors"
	"time"

	"github.com/ammansik/conversation-assistant/audio"
)

// ErrSessionEnded is returned by Session.Run when the service closes the
// stream without being asked to.
var ErrSessionEnded = errors.New("stt: session ended by server")

// AudioSource supplies fixed-size audio reads. *audio.Buffer implements it.
type AudioSource interface {
	Read(ctx context.Context, n int) ([]byte, error)
}

// Event is one finalized transcript segment.
type Event struct {
	Text     string
	Received time.Time
}

// Recognizer opens streaming recognition sessions.
type Recognizer interface {
	// Open connects to the service and configures a session for audio in
	// the given format. ctx bounds the connection handshake only.
	Open(ctx context.Context, format audio.StreamFormat) (Session, error)

	// Encoding reports the sample encoding the service expects.
	Encoding() audio.SampleFormat

	Close() error
}

// Session is a single recognition stream.
type Session interface {
	// Run streams audio from src and delivers final segments to events in
	// order until the session ends. It returns nil after a graceful Stop.
	Run(ctx context.Context, src AudioSource, events chan<- Event) error

	// Stop asks the session to flush and end. Run returns once the service
	// confirms the end of the transcript.
	Stop()

	// Close releases the connection. Safe to call more than once.
	Close() error
}
