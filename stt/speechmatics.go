package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ammansik/conversation-assistant/audio"
)

const SpeechmaticsURL = "wss://eu2.rt.speechmatics.com/v2"

type SpeechmaticsConfig struct {
	URL            string
	APIKey         string
	Language       string
	MaxDelay       float64 // seconds
	OperatingPoint string
	ChunkSize      int
}

// Speechmatics streams audio to the Speechmatics realtime API over a
// WebSocket.
type Speechmatics struct {
	config SpeechmaticsConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

var _ Recognizer = (*Speechmatics)(nil)

func NewSpeechmatics(config SpeechmaticsConfig, logger *slog.Logger) *Speechmatics {
	if config.URL == "" {
		config.URL = SpeechmaticsURL
	}
	if config.Language == "" {
		config.Language = "en"
	}
	if config.OperatingPoint == "" {
		config.OperatingPoint = "enhanced"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Speechmatics{
		config: config,
		dialer: websocket.DefaultDialer,
		logger: logger.With(slog.String("component", "speechmatics")),
	}
}

func (s *Speechmatics) Encoding() audio.SampleFormat {
	return audio.Float32
}

func (s *Speechmatics) Close() error {
	return nil
}

type smAudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type smTranscriptionConfig struct {
	Language       string  `json:"language"`
	EnablePartials bool    `json:"enable_partials"`
	MaxDelay       float64 `json:"max_delay,omitempty"`
	OperatingPoint string  `json:"operating_point,omitempty"`
}

type smStartRecognition struct {
	Message             string                `json:"message"`
	AudioFormat         smAudioFormat         `json:"audio_format"`
	TranscriptionConfig smTranscriptionConfig `json:"transcription_config"`
}

type smEndOfStream struct {
	Message   string `json:"message"`
	LastSeqNo int64  `json:"last_seq_no"`
}

// smMessage covers every server message the client reads.
type smMessage struct {
	Message  string `json:"message"`
	ID       string `json:"id,omitempty"`
	SeqNo    int64  `json:"seq_no,omitempty"`
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Metadata struct {
		Transcript string  `json:"transcript"`
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
	} `json:"metadata"`
}

// SpeechmaticsError is an Error message sent by the service.
type SpeechmaticsError struct {
	Type   string
	Reason string
}

func (e *SpeechmaticsError) Error() string {
	return fmt.Sprintf("speechmatics: %s: %s", e.Type, e.Reason)
}

// Open dials <url>/<language>, sends StartRecognition and waits for
// RecognitionStarted.
func (s *Speechmatics) Open(ctx context.Context, format audio.StreamFormat) (Session, error) {
	if format.Encoding != audio.Float32 {
		return nil, fmt.Errorf("speechmatics: unsupported encoding %s", format.Encoding)
	}

	url := strings.TrimRight(s.config.URL, "/") + "/" + s.config.Language
	header := http.Header{}
	if s.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	conn, _, err := s.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Speechmatics: %w", err)
	}

	start := smStartRecognition{
		Message: "StartRecognition",
		AudioFormat: smAudioFormat{
			Type:       "raw",
			Encoding:   format.Encoding.String(),
			SampleRate: format.SampleRate,
		},
		TranscriptionConfig: smTranscriptionConfig{
			Language:       s.config.Language,
			MaxDelay:       s.config.MaxDelay,
			OperatingPoint: s.config.OperatingPoint,
		},
	}
	// The handshake reads have no deadline of their own; closing conn
	// unblocks them when ctx ends first.
	stop := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	err = s.handshake(conn, start)
	close(stop)
	<-watched
	if ctxErr := ctx.Err(); ctxErr != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start recognition: %w", ctxErr)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	t := &smTransport{conn: conn, logger: s.logger}
	return newSession(t, s.config.ChunkSize, s.logger), nil
}

// handshake sends StartRecognition and waits for RecognitionStarted.
func (s *Speechmatics) handshake(conn *websocket.Conn, start smStartRecognition) error {
	if err := conn.WriteJSON(start); err != nil {
		return fmt.Errorf("failed to send StartRecognition: %w", err)
	}
	for {
		var msg smMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to start recognition: %w", err)
		}
		switch msg.Message {
		case "RecognitionStarted":
			s.logger.Info("recognition started", slog.String("id", msg.ID))
			return nil
		case "Error":
			return &SpeechmaticsError{Type: msg.Type, Reason: msg.Reason}
		}
	}
}

type smTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu    sync.Mutex // serializes writes
	seqNo int64
}

func (t *smTransport) sendAudio(chunk []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return err
	}
	t.seqNo++
	return nil
}

func (t *smTransport) sendEnd() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(smEndOfStream{Message: "EndOfStream", LastSeqNo: t.seqNo})
}

func (t *smTransport) recv() (string, error) {
	var msg smMessage
	if err := t.conn.ReadJSON(&msg); err != nil {
		return "", err
	}
	switch msg.Message {
	case "AddTranscript":
		return msg.Metadata.Transcript, nil
	case "EndOfTranscript":
		return "", io.EOF
	case "Error":
		return "", &SpeechmaticsError{Type: msg.Type, Reason: msg.Reason}
	case "Warning", "Info":
		level := slog.LevelInfo
		if msg.Message == "Warning" {
			level = slog.LevelWarn
		}
		t.logger.Log(context.Background(), level, "service message",
			slog.String("message", msg.Message),
			slog.String("type", msg.Type),
			slog.String("reason", msg.Reason))
	}
	return "", nil
}

func (t *smTransport) close() error {
	return t.conn.Close()
}
