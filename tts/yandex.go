package tts

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	tts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
)

const (
	YandexTTSEndpoint = "tts.api.cloud.yandex.net:443"
)

type YandexConfig struct {
	// APIKey takes precedence over IamToken when both are set.
	APIKey   string
	IamToken string
	FolderID string
	Options  SynthesisOptions

	Endpoint    string
	DialOptions []grpc.DialOption
}

// YandexTTSClient synthesizes MP3 speech with SpeechKit v3.
type YandexTTSClient struct {
	client  tts.SynthesizerClient
	conn    *grpc.ClientConn
	auth    string
	folder  string
	options SynthesisOptions
}

// Ensure YandexTTSClient implements Synthesizer interface
var _ Synthesizer = (*YandexTTSClient)(nil)

func GetDefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		Voice:  "marina",
		Speed:  1.0,
		Volume: 0.0,
		Model:  "general",
	}
}

func NewYandexTTSClient(config YandexConfig) (*YandexTTSClient, error) {
	if config.Endpoint == "" {
		config.Endpoint = YandexTTSEndpoint
	}
	opts := config.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))}
	}

	defaults := GetDefaultSynthesisOptions()
	if config.Options.Voice == "" {
		config.Options.Voice = defaults.Voice
	}
	if config.Options.Speed == 0 {
		config.Options.Speed = defaults.Speed
	}
	if config.Options.Model == "" {
		config.Options.Model = defaults.Model
	}

	auth := "Bearer " + config.IamToken
	if config.APIKey != "" {
		auth = "Api-Key " + config.APIKey
	}

	conn, err := grpc.NewClient(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS service: %w", err)
	}

	return &YandexTTSClient{
		client:  tts.NewSynthesizerClient(conn),
		conn:    conn,
		auth:    auth,
		folder:  config.FolderID,
		options: config.Options,
	}, nil
}

func (c *YandexTTSClient) Synthesize(ctx context.Context, text string, audioData chan<- []byte) error {
	defer close(audioData)

	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", c.auth, "x-folder-id", c.folder)

	stream, err := c.client.UtteranceSynthesis(ctx, c.buildRequest(text))
	if err != nil {
		return fmt.Errorf("failed to start synthesis: %w", err)
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive audio data: %w", err)
		}

		if audioChunk := resp.GetAudioChunk(); audioChunk != nil {
			select {
			case audioData <- audioChunk.GetData():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *YandexTTSClient) buildRequest(text string) *tts.UtteranceSynthesisRequest {
	req := &tts.UtteranceSynthesisRequest{}
	req.SetModel(c.options.Model)
	req.SetText(text)

	voiceHint := &tts.Hints{}
	voiceHint.SetVoice(c.options.Voice)
	speedHint := &tts.Hints{}
	speedHint.SetSpeed(c.options.Speed)
	hints := []*tts.Hints{voiceHint, speedHint}
	if c.options.Volume != 0 {
		volumeHint := &tts.Hints{}
		volumeHint.SetVolume(c.options.Volume)
		hints = append(hints, volumeHint)
	}
	req.SetHints(hints)

	containerAudio := &tts.ContainerAudio{}
	containerAudio.SetContainerAudioType(tts.ContainerAudio_MP3)
	audioSpec := &tts.AudioFormatOptions{}
	audioSpec.SetContainerAudio(containerAudio)
	req.SetOutputAudioSpec(audioSpec)

	req.SetLoudnessNormalizationType(tts.UtteranceSynthesisRequest_LUFS)
	return req
}

func (c *YandexTTSClient) Close() error {
	return c.conn.Close()
}
