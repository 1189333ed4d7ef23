package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ammansik/conversation-assistant/assistant"
	"github.com/ammansik/conversation-assistant/audio"
	"github.com/ammansik/conversation-assistant/config"
	"github.com/ammansik/conversation-assistant/display"
	"github.com/ammansik/conversation-assistant/engine"
	"github.com/ammansik/conversation-assistant/gpt"
	"github.com/ammansik/conversation-assistant/sound"
	"github.com/ammansik/conversation-assistant/stt"
	"github.com/ammansik/conversation-assistant/telemetry"
	"github.com/ammansik/conversation-assistant/transcript"
	"github.com/ammansik/conversation-assistant/tts"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		listDevices bool
		language    string
		maxDelay    float64
		device      int
		wordLimit   int
		prompt      string
		recognizer  string
		assistantP  string
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&listDevices, "list-devices", false, "List audio input devices and exit")
	flag.StringVar(&language, "lang", "", "Transcription language")
	flag.Float64Var(&maxDelay, "max-delay", 0, "Seconds the recognizer may wait before finalizing a segment")
	flag.IntVar(&device, "device", -1, "Input device index (-1 for the system default)")
	flag.IntVar(&wordLimit, "word-limit", 0, "Maximum words sent to the assistant per request (0 for no cap)")
	flag.StringVar(&prompt, "prompt", "", "Instruction prepended to the transcript")
	flag.StringVar(&recognizer, "recognizer", "", "Speech recognizer: speechmatics, yandex or google")
	flag.StringVar(&assistantP, "assistant", "", "Assistant backend: openai or yandex")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}
	if listDevices {
		if err := audio.ListDevices(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lang":
			cfg.Language = language
		case "max-delay":
			cfg.MaxDelay = maxDelay
		case "device":
			cfg.Audio.DeviceIndex = device
		case "word-limit":
			cfg.Assistant.WordLimit = wordLimit
		case "prompt":
			cfg.Assistant.Prompt = prompt
		case "recognizer":
			cfg.Recognizer.Provider = recognizer
		case "assistant":
			cfg.Assistant.Provider = assistantP
		}
	})

	logger := newLogger(os.Stderr, cfg.Telemetry)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("assistant exited with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "conversation-assistant",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		TraceStdout:    cfg.Telemetry.TraceStdout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.New()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	if bind := cfg.Telemetry.MetricsBind; bind != "" {
		go func() {
			if err := telemetry.Serve(ctx, bind, telemetry.NewMux(metricsHandler), logger); err != nil {
				logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	rec, err := newRecognizer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rec.Close()

	capturer := audio.NewPortAudioCapturer(audio.Config{
		DeviceIndex:     cfg.Audio.DeviceIndex,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		InputChannels:   1,
		Encoding:        rec.Encoding(),
	})

	term := display.NewTerminal(os.Stdout, cfg.Display.ANSI)
	term.SetHelp(keyHelp)
	surfaces := display.Multi{term}

	var publisher *display.NATS
	natsURL := cfg.Display.NATSURL
	if cfg.Display.NATSEmbedded {
		srv, err := display.StartEmbeddedNATS("127.0.0.1", cfg.Display.NATSPort, logger)
		if err != nil {
			return err
		}
		defer srv.Shutdown()
		natsURL = srv.ClientURL()
	}
	if natsURL != "" {
		publisher, err = display.ConnectNATS(display.NATSConfig{URL: natsURL, Subject: cfg.Display.NATSSubject}, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		surfaces = append(surfaces, publisher)
	}

	if cfg.Assistant.Speak {
		speaker, closeSpeaker, err := newSpeaker(cfg, logger)
		if err != nil {
			return err
		}
		defer closeSpeaker()
		surfaces = append(surfaces, speaker)
	}

	acc := transcript.NewAccumulator()
	eng := engine.NewEngine(engine.EngineConfig{
		StopTimeout:      cfg.StopTimeout(),
		MaxBufferedBytes: cfg.Audio.MaxBufferedBytes,
	}, capturer, rec, acc, surfaces, logger, metrics)
	if publisher != nil {
		publisher.SessionID = eng.SessionID
	}

	dispatcher := assistant.NewDispatcher(assistant.Config{
		Prompt:    cfg.Assistant.Prompt,
		WordLimit: cfg.Assistant.WordLimit,
		Timeout:   cfg.AssistantTimeout(),
	}, acc, newAssistant(cfg), surfaces, logger, metrics)
	defer dispatcher.Close()

	logger.Info("assistant ready",
		slog.String("recognizer", cfg.Recognizer.Provider),
		slog.String("assistant", cfg.Assistant.Provider),
		slog.String("language", cfg.Language))
	surfaces.ShowStatus(engine.StatusIdle)

	sh := &shell{
		rec:         eng,
		assist:      dispatcher,
		surface:     surfaces,
		logger:      logger,
		stopTimeout: cfg.StopTimeout(),
	}
	return sh.run(ctx)
}

func newRecognizer(ctx context.Context, cfg config.Config, logger *slog.Logger) (stt.Recognizer, error) {
	switch cfg.Recognizer.Provider {
	case config.RecognizerYandex:
		return stt.NewYandex(stt.YandexConfig{
			IamToken:  cfg.Secrets.IAMToken,
			FolderID:  cfg.Secrets.FolderID,
			Language:  cfg.Locale(),
			ChunkSize: cfg.Audio.ChunkSize,
		}, logger)
	case config.RecognizerGoogle:
		return stt.NewGoogle(ctx, stt.GoogleConfig{
			APIKey:    cfg.Secrets.GoogleAPIKey,
			Language:  cfg.Locale(),
			ChunkSize: cfg.Audio.ChunkSize,
		}, logger)
	default:
		return stt.NewSpeechmatics(stt.SpeechmaticsConfig{
			URL:            cfg.Recognizer.URL,
			APIKey:         cfg.Secrets.SpeechmaticsAPIKey,
			Language:       cfg.Language,
			MaxDelay:       cfg.MaxDelay,
			OperatingPoint: cfg.Recognizer.OperatingPoint,
			ChunkSize:      cfg.Audio.ChunkSize,
		}, logger), nil
	}
}

func newAssistant(cfg config.Config) gpt.Client {
	if cfg.Assistant.Provider == config.AssistantYandex {
		return gpt.NewYandexGPT(gpt.YandexConfig{
			FolderID:    cfg.Secrets.FolderID,
			IAMToken:    cfg.Secrets.IAMToken,
			Model:       cfg.Assistant.Model,
			MaxTokens:   cfg.Assistant.MaxTokens,
			Temperature: cfg.Assistant.Temperature,
			Timeout:     cfg.AssistantTimeout(),
		})
	}
	return gpt.NewOpenAI(gpt.OpenAIConfig{
		APIKey:  cfg.Secrets.OpenAIAPIKey,
		Model:   cfg.Assistant.Model,
		BaseURL: cfg.Assistant.BaseURL,
	})
}

func newSpeaker(cfg config.Config, logger *slog.Logger) (*display.Speaker, func(), error) {
	options := tts.GetDefaultSynthesisOptions()
	if cfg.Assistant.Voice != "" {
		options.Voice = cfg.Assistant.Voice
	}
	synth, err := tts.NewYandexTTSClient(tts.YandexConfig{
		APIKey:   cfg.Secrets.YandexAPIKey,
		IamToken: cfg.Secrets.IAMToken,
		FolderID: cfg.Secrets.FolderID,
		Options:  options,
	})
	if err != nil {
		return nil, nil, err
	}
	speaker := display.NewSpeaker(synth, sound.NewPortaudioPlayer(sound.GetDefaultConfig()), logger)
	return speaker, func() {
		speaker.Close()
		synth.Close()
	}, nil
}

func newLogger(w io.Writer, cfg config.TelemetryConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
