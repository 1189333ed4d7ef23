package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type Config struct {
	// DeviceIndex selects the input device; -1 means the system default.
	DeviceIndex     int
	SampleRate      float64 // 0 uses the device's default rate
	FramesPerBuffer int
	InputChannels   int
	Encoding        SampleFormat
}

// PortAudioCapturer opens callback-driven capture streams with PortAudio.
type PortAudioCapturer struct {
	config Config
}

func NewPortAudioCapturer(config Config) *PortAudioCapturer {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = 1024
	}
	if config.InputChannels <= 0 {
		config.InputChannels = 1
	}
	return &PortAudioCapturer{config: config}
}

func GetDefaultConfig() Config {
	return Config{
		DeviceIndex:     -1,
		FramesPerBuffer: 1024,
		InputChannels:   1,
		Encoding:        Float32,
	}
}

// Open initializes PortAudio and opens a stream on the configured device.
// PortAudio initialization is reference counted, so every stream holds one
// reference until Close.
func (c *PortAudioCapturer) Open(cb Callback) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	device, err := inputDevice(c.config.DeviceIndex)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	rate := c.config.SampleRate
	if rate <= 0 {
		rate = device.DefaultSampleRate
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = c.config.InputChannels
	params.SampleRate = rate
	params.FramesPerBuffer = c.config.FramesPerBuffer

	s := &portAudioStream{
		format: StreamFormat{
			SampleRate: int(rate),
			Channels:   c.config.InputChannels,
			Encoding:   c.config.Encoding,
		},
	}

	var callback interface{}
	switch c.config.Encoding {
	case Int16:
		callback = func(in []int16) {
			s.scratch = appendInt16(s.scratch, in)
			cb(s.scratch)
		}
	default:
		callback = func(in []float32) {
			s.scratch = appendFloat32(s.scratch, in)
			cb(s.scratch)
		}
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	s.stream = stream
	return s, nil
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to find default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	for _, d := range devices {
		if d.Index == index {
			if d.MaxInputChannels < 1 {
				return nil, fmt.Errorf("device %d (%s) has no input channels", index, d.Name)
			}
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio device %d not found", index)
}

type portAudioStream struct {
	stream  *portaudio.Stream
	format  StreamFormat
	scratch []byte

	mu      sync.Mutex
	running bool
	closed  bool
}

func (s *portAudioStream) Format() StreamFormat {
	return s.format
}

func (s *portAudioStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	s.running = true
	return nil
}

func (s *portAudioStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.running {
		return nil
	}
	s.running = false
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return nil
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.running = false
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

// ListDevices writes the input devices usable for capture, skipping names
// some hosts report more than once.
func ListDevices(w io.Writer) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("failed to list audio devices: %w", err)
	}

	def, _ := portaudio.DefaultInputDevice()
	seen := make(map[string]struct{})
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		if _, ok := seen[d.Name]; ok {
			continue
		}
		seen[d.Name] = struct{}{}

		marker := " "
		if def != nil && def.Index == d.Index {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %3d  %s (%.0f Hz)\n", marker, d.Index, d.Name, d.DefaultSampleRate)
	}
	return nil
}
