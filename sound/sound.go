package sound

import (
	"context"
	"io"
)

// Player defines the interface for audio playback
type Player interface {
	// PlayMP3 decodes an MP3 stream and plays it until the stream ends or
	// ctx is done.
	PlayMP3(ctx context.Context, r io.Reader) error
}

// PlayerConfig holds playback stream settings
type PlayerConfig struct {
	FramesPerBuffer int
}
