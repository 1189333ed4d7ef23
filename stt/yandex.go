package stt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	speechkit "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"

	"github.com/ammansik/conversation-assistant/audio"
)

const YandexSTTEndpoint = "stt.api.cloud.yandex.net:443"

type YandexConfig struct {
	IamToken  string
	FolderID  string
	Language  string
	ChunkSize int

	// Endpoint and DialOptions override the public endpoint and its TLS
	// credentials.
	Endpoint    string
	DialOptions []grpc.DialOption
}

// Yandex streams audio to SpeechKit v3 over gRPC.
type Yandex struct {
	client speechkit.RecognizerClient
	conn   *grpc.ClientConn
	config YandexConfig
	logger *slog.Logger
}

var _ Recognizer = (*Yandex)(nil)

func NewYandex(config YandexConfig, logger *slog.Logger) (*Yandex, error) {
	if config.Endpoint == "" {
		config.Endpoint = YandexSTTEndpoint
	}
	if config.Language == "" {
		config.Language = "en-US"
	}
	opts := config.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))}
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := grpc.NewClient(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Yandex STT: %w", err)
	}

	return &Yandex{
		client: speechkit.NewRecognizerClient(conn),
		conn:   conn,
		config: config,
		logger: logger.With(slog.String("component", "yandex-stt")),
	}, nil
}

func (y *Yandex) Encoding() audio.SampleFormat {
	return audio.Int16
}

func (y *Yandex) Close() error {
	return y.conn.Close()
}

func (y *Yandex) Open(ctx context.Context, format audio.StreamFormat) (Session, error) {
	if format.Encoding != audio.Int16 {
		return nil, fmt.Errorf("yandex stt: unsupported encoding %s", format.Encoding)
	}

	md := metadata.Pairs(
		"authorization", "Bearer "+y.config.IamToken,
		"x-folder-id", y.config.FolderID,
	)
	// The stream outlives the handshake context.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	streamCtx = metadata.NewOutgoingContext(streamCtx, md)

	stream, err := y.client.RecognizeStreaming(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create streaming client: %w", err)
	}

	sessionOptions := &speechkit.StreamingRequest{
		Event: &speechkit.StreamingRequest_SessionOptions{
			SessionOptions: &speechkit.StreamingOptions{
				RecognitionModel: &speechkit.RecognitionModelOptions{
					AudioFormat: &speechkit.AudioFormatOptions{
						AudioFormat: &speechkit.AudioFormatOptions_RawAudio{
							RawAudio: &speechkit.RawAudio{
								AudioEncoding:     speechkit.RawAudio_LINEAR16_PCM,
								SampleRateHertz:   int64(format.SampleRate),
								AudioChannelCount: int64(format.Channels),
							},
						},
					},
					TextNormalization: &speechkit.TextNormalizationOptions{
						TextNormalization: speechkit.TextNormalizationOptions_TEXT_NORMALIZATION_ENABLED,
					},
					LanguageRestriction: &speechkit.LanguageRestrictionOptions{
						RestrictionType: speechkit.LanguageRestrictionOptions_WHITELIST,
						LanguageCode:    []string{y.config.Language},
					},
					AudioProcessingType: speechkit.RecognitionModelOptions_REAL_TIME,
				},
			},
		},
	}
	if err := stream.Send(sessionOptions); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to send session options: %w", err)
	}

	t := &grpcTransport[*speechkit.StreamingRequest, *speechkit.StreamingResponse]{
		stream: stream,
		cancel: cancel,
		chunk: func(data []byte) *speechkit.StreamingRequest {
			return &speechkit.StreamingRequest{
				Event: &speechkit.StreamingRequest_Chunk{
					Chunk: &speechkit.AudioChunk{Data: data},
				},
			}
		},
		text: yandexFinalText,
	}
	return newSession(t, y.config.ChunkSize, y.logger), nil
}

// yandexFinalText returns the top alternative of a final update with a
// trailing separator, since segments are concatenated as delivered.
func yandexFinalText(resp *speechkit.StreamingResponse) (string, error) {
	final := resp.GetFinal()
	if final == nil {
		return "", nil
	}
	for _, alternative := range final.GetAlternatives() {
		if text := strings.TrimSpace(alternative.GetText()); text != "" {
			return text + " ", nil
		}
	}
	return "", nil
}
