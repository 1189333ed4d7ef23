package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/ammansik/conversation-assistant/audio"
)

type GoogleConfig struct {
	APIKey    string
	Language  string
	ChunkSize int

	// ClientOptions replace the API key option when set.
	ClientOptions []option.ClientOption
}

// Google streams audio to Cloud Speech-to-Text.
type Google struct {
	client *speech.Client
	config GoogleConfig
	logger *slog.Logger
}

var _ Recognizer = (*Google)(nil)

func NewGoogle(ctx context.Context, config GoogleConfig, logger *slog.Logger) (*Google, error) {
	if config.Language == "" {
		config.Language = "en-US"
	}
	opts := config.ClientOptions
	if len(opts) == 0 && config.APIKey != "" {
		opts = []option.ClientOption{option.WithAPIKey(config.APIKey)}
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &Google{
		client: client,
		config: config,
		logger: logger.With(slog.String("component", "google-stt")),
	}, nil
}

func (g *Google) Encoding() audio.SampleFormat {
	return audio.Int16
}

func (g *Google) Close() error {
	return g.client.Close()
}

func (g *Google) Open(ctx context.Context, format audio.StreamFormat) (Session, error) {
	if format.Encoding != audio.Int16 {
		return nil, fmt.Errorf("google stt: unsupported encoding %s", format.Encoding)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := g.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create streaming client: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(format.SampleRate),
					AudioChannelCount:          int32(format.Channels),
					LanguageCode:               g.config.Language,
					EnableAutomaticPunctuation: true,
				},
			},
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	t := &grpcTransport[*speechpb.StreamingRecognizeRequest, *speechpb.StreamingRecognizeResponse]{
		stream: stream,
		cancel: cancel,
		chunk: func(data []byte) *speechpb.StreamingRecognizeRequest {
			return &speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: data},
			}
		},
		text: googleFinalText,
	}
	return newSession(t, g.config.ChunkSize, g.logger), nil
}

func googleFinalText(resp *speechpb.StreamingRecognizeResponse) (string, error) {
	if st := resp.GetError(); st != nil && st.GetCode() != 0 {
		return "", fmt.Errorf("google stt: code %d: %s", st.GetCode(), st.GetMessage())
	}
	var b strings.Builder
	for _, result := range resp.GetResults() {
		if !result.GetIsFinal() || len(result.GetAlternatives()) == 0 {
			continue
		}
		if text := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()); text != "" {
			b.WriteString(text)
			b.WriteByte(' ')
		}
	}
	return b.String(), nil
}
