package sound

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to interleaved 16-bit stereo.
const decodedChannels = 2

type PortaudioPlayer struct {
	config PlayerConfig
}

var _ Player = (*PortaudioPlayer)(nil)

func NewPortaudioPlayer(config PlayerConfig) *PortaudioPlayer {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = GetDefaultConfig().FramesPerBuffer
	}
	return &PortaudioPlayer{config: config}
}

func GetDefaultConfig() PlayerConfig {
	return PlayerConfig{
		FramesPerBuffer: 1024,
	}
}

func (p *PortaudioPlayer) PlayMP3(ctx context.Context, r io.Reader) error {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return fmt.Errorf("failed to decode mp3: %w", err)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	audioBuffer := make([]int16, p.config.FramesPerBuffer*decodedChannels)
	stream, err := portaudio.OpenDefaultStream(0, decodedChannels, float64(dec.SampleRate()), p.config.FramesPerBuffer, audioBuffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	return pump(ctx, dec, audioBuffer, stream.Write)
}

// pump fills samples from r frame by frame and calls write after each fill.
// A short final read is zero-padded.
func pump(ctx context.Context, r io.Reader, samples []int16, write func() error) error {
	raw := make([]byte, len(samples)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(r, raw)
		if n > 0 {
			fillSamples(samples, raw[:n])
			if werr := write(); werr != nil {
				return fmt.Errorf("failed to write audio: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
	}
}

// fillSamples converts little-endian bytes to int16 samples and zeroes the
// rest of the buffer.
func fillSamples(samples []int16, raw []byte) {
	n := len(raw) / 2
	for i := 0; i < n && i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	for i := n; i < len(samples); i++ {
		samples[i] = 0
	}
}
