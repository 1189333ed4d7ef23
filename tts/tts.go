package tts

import "context"

// Synthesizer defines the interface for text-to-speech synthesis
type Synthesizer interface {
	// Synthesize streams encoded audio for text into audioData and closes
	// it when done, whether or not synthesis succeeded.
	Synthesize(ctx context.Context, text string, audioData chan<- []byte) error
	Close() error
}

// SynthesisOptions represents the configuration for speech synthesis
type SynthesisOptions struct {
	Voice  string
	Speed  float64
	Volume float64
	Model  string
}
