package tts

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	tts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
)

type fakeSynthesizer struct {
	tts.UnimplementedSynthesizerServer

	requests chan *tts.UtteranceSynthesisRequest
	auth     chan string
	fail     bool
}

func (f *fakeSynthesizer) UtteranceSynthesis(req *tts.UtteranceSynthesisRequest, stream tts.Synthesizer_UtteranceSynthesisServer) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	f.auth <- md.Get("authorization")[0]
	f.requests <- req
	if f.fail {
		return status.Error(codes.InvalidArgument, "text too long")
	}
	for _, chunk := range []string{"ID3", "frame1", "frame2"} {
		if err := stream.Send(&tts.UtteranceSynthesisResponse{AudioChunk: &tts.AudioChunk{Data: []byte(chunk)}}); err != nil {
			return err
		}
	}
	return nil
}

func newTestClient(t *testing.T, fake *fakeSynthesizer, config YandexConfig) *YandexTTSClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	tts.RegisterSynthesizerServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	config.Endpoint = "passthrough:///bufnet"
	config.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	client, err := NewYandexTTSClient(config)
	if err != nil {
		t.Fatalf("NewYandexTTSClient() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newFake() *fakeSynthesizer {
	return &fakeSynthesizer{
		requests: make(chan *tts.UtteranceSynthesisRequest, 1),
		auth:     make(chan string, 1),
	}
}

func TestSynthesize(t *testing.T) {
	fake := newFake()
	client := newTestClient(t, fake, YandexConfig{IamToken: "iam", FolderID: "f"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chunks := make(chan []byte, 8)
	if err := client.Synthesize(ctx, "- say yes", chunks); err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	var got bytes.Buffer
	for c := range chunks {
		got.Write(c)
	}
	if got.String() != "ID3frame1frame2" {
		t.Errorf("audio = %q", got.String())
	}

	if auth := <-fake.auth; auth != "Bearer iam" {
		t.Errorf("authorization = %q", auth)
	}
	req := <-fake.requests
	if req.GetText() != "- say yes" || req.GetModel() != "general" {
		t.Errorf("request text/model = %q/%q", req.GetText(), req.GetModel())
	}
	if typ := req.GetOutputAudioSpec().GetContainerAudio().GetContainerAudioType(); typ != tts.ContainerAudio_MP3 {
		t.Errorf("container = %v; want MP3", typ)
	}
	if hints := req.GetHints(); len(hints) < 1 || hints[0].GetVoice() != "marina" {
		t.Errorf("hints = %v", hints)
	}
}

func TestSynthesizeAPIKeyAndFailure(t *testing.T) {
	fake := newFake()
	fake.fail = true
	client := newTestClient(t, fake, YandexConfig{APIKey: "key", IamToken: "iam"})

	chunks := make(chan []byte, 1)
	err := client.Synthesize(context.Background(), "hello", chunks)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Synthesize() = %v; want InvalidArgument", err)
	}
	if _, open := <-chunks; open {
		t.Error("audio channel left open after failure")
	}
	if auth := <-fake.auth; auth != "Api-Key key" {
		t.Errorf("authorization = %q", auth)
	}
}
