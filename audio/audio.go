package audio

import "fmt"

// SampleFormat is the wire encoding of captured samples.
type SampleFormat int

const (
	// Float32 is little-endian IEEE-754 single precision (pcm_f32le).
	Float32 SampleFormat = iota
	// Int16 is little-endian signed 16-bit PCM (pcm_s16le).
	Int16
)

// BytesPerSample returns the encoded size of one sample.
func (f SampleFormat) BytesPerSample() int {
	if f == Int16 {
		return 2
	}
	return 4
}

func (f SampleFormat) String() string {
	switch f {
	case Float32:
		return "pcm_f32le"
	case Int16:
		return "pcm_s16le"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// StreamFormat describes the audio an opened stream delivers.
type StreamFormat struct {
	SampleRate int
	Channels   int
	Encoding   SampleFormat
}

// Callback receives captured audio as encoded bytes. It runs on the audio
// driver's thread; the slice is reused once the callback returns.
type Callback func(chunk []byte)

// Capturer defines the interface for audio capture implementations
type Capturer interface {
	// Open prepares a capture stream that delivers chunks to cb once started
	Open(cb Callback) (Stream, error)
}

// Stream is an opened capture stream
type Stream interface {
	// Format reports the sample rate, channel count and encoding of delivered chunks
	Format() StreamFormat

	// Start begins (or resumes) delivering audio to the callback
	Start() error

	// Stop pauses delivery; the stream stays open and can be started again
	Stop() error

	// Close releases the device
	Close() error
}
