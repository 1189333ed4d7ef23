package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned by Validate when a selected provider has
// no key in the environment.
var ErrMissingCredential = errors.New("missing credential")

// DefaultPrompt is prepended to the transcript excerpt sent to the assistant.
const DefaultPrompt = "I'm in a job interview. Please help me out with some questions I'm struggling on. " +
	"Always present the answers as short bullet points (max three) for easier readability. " +
	"Also keep the language as natural sounding as possible so it's easy to recite.\n\n"

const (
	RecognizerSpeechmatics = "speechmatics"
	RecognizerYandex       = "yandex"
	RecognizerGoogle       = "google"

	AssistantOpenAI = "openai"
	AssistantYandex = "yandex"
)

type AudioConfig struct {
	DeviceIndex      int `yaml:"device_index"`
	FramesPerBuffer  int `yaml:"frames_per_buffer"`
	ChunkSize        int `yaml:"chunk_size"`
	MaxBufferedBytes int `yaml:"max_buffered_bytes"`
	// SampleRate of 0 uses the device default.
	SampleRate float64 `yaml:"sample_rate"`
}

type RecognizerConfig struct {
	Provider       string `yaml:"provider"`
	URL            string `yaml:"url"`
	OperatingPoint string `yaml:"operating_point"`
	// Locale is the BCP-47 tag for Yandex and Google; empty derives it from
	// the language.
	Locale        string `yaml:"locale"`
	StopTimeoutMS int    `yaml:"stop_timeout_ms"`
}

type AssistantConfig struct {
	Provider string `yaml:"provider"`
	// Model empty selects the backend default (gpt-3.5-turbo, yandexgpt-lite).
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	// WordLimit 0 sends the whole pending transcript.
	WordLimit   int     `yaml:"word_limit"`
	Prompt      string  `yaml:"prompt"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Speak       bool    `yaml:"speak"`
	Voice       string  `yaml:"voice"`
}

type DisplayConfig struct {
	ANSI         bool   `yaml:"ansi"`
	NATSURL      string `yaml:"nats_url"`
	NATSSubject  string `yaml:"nats_subject"`
	NATSEmbedded bool   `yaml:"nats_embedded"`
	// NATSPort is the embedded server's port; -1 picks a free one.
	NATSPort int `yaml:"nats_port"`
}

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	MetricsBind  string `yaml:"metrics_bind"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStdout  bool   `yaml:"trace_stdout"`
}

// Secrets are read from the environment only.
type Secrets struct {
	SpeechmaticsAPIKey string
	OpenAIAPIKey       string
	IAMToken           string
	FolderID           string
	YandexAPIKey       string
	GoogleAPIKey       string
}

type Config struct {
	Language string `yaml:"language"`
	// MaxDelay is how long, in seconds, the recognizer may wait before
	// finalizing a segment.
	MaxDelay   float64          `yaml:"max_delay"`
	Audio      AudioConfig      `yaml:"audio"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Display    DisplayConfig    `yaml:"display"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Secrets    Secrets          `yaml:"-"`
}

func Default() Config {
	return Config{
		Language: "en",
		MaxDelay: 2.5,
		Audio: AudioConfig{
			DeviceIndex:     -1,
			FramesPerBuffer: 1024,
			ChunkSize:       1024,
		},
		Recognizer: RecognizerConfig{
			Provider:       RecognizerSpeechmatics,
			URL:            "wss://eu2.rt.speechmatics.com/v2",
			OperatingPoint: "enhanced",
			StopTimeoutMS:  5000,
		},
		Assistant: AssistantConfig{
			Provider:    AssistantOpenAI,
			WordLimit:   3000,
			Prompt:      DefaultPrompt,
			TimeoutMS:   60000,
			Temperature: 0.6,
			Voice:       "marina",
		},
		Display: DisplayConfig{
			ANSI:        true,
			NATSSubject: "conversation",
			NATSPort:    -1,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "text",
			OTLPInsecure: true,
		},
	}
}

// Load reads defaults, then the YAML file at path (if any), then a .env
// file in the working directory (if present), then ASSIST_* environment
// overrides and secrets. Call Validate once flags are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.Secrets = loadSecrets()
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Language, "ASSIST_LANGUAGE")
	overrideFloat(&cfg.MaxDelay, "ASSIST_MAX_DELAY")

	overrideInt(&cfg.Audio.DeviceIndex, "ASSIST_AUDIO_DEVICE_INDEX")
	overrideInt(&cfg.Audio.FramesPerBuffer, "ASSIST_AUDIO_FRAMES_PER_BUFFER")
	overrideInt(&cfg.Audio.ChunkSize, "ASSIST_AUDIO_CHUNK_SIZE")
	overrideInt(&cfg.Audio.MaxBufferedBytes, "ASSIST_AUDIO_MAX_BUFFERED_BYTES")
	overrideFloat(&cfg.Audio.SampleRate, "ASSIST_AUDIO_SAMPLE_RATE")

	overrideString(&cfg.Recognizer.Provider, "ASSIST_RECOGNIZER_PROVIDER")
	overrideString(&cfg.Recognizer.URL, "ASSIST_RECOGNIZER_URL")
	overrideString(&cfg.Recognizer.OperatingPoint, "ASSIST_RECOGNIZER_OPERATING_POINT")
	overrideString(&cfg.Recognizer.Locale, "ASSIST_RECOGNIZER_LOCALE")
	overrideInt(&cfg.Recognizer.StopTimeoutMS, "ASSIST_RECOGNIZER_STOP_TIMEOUT_MS")

	overrideString(&cfg.Assistant.Provider, "ASSIST_ASSISTANT_PROVIDER")
	overrideString(&cfg.Assistant.Model, "ASSIST_ASSISTANT_MODEL")
	overrideString(&cfg.Assistant.BaseURL, "ASSIST_ASSISTANT_BASE_URL")
	overrideInt(&cfg.Assistant.WordLimit, "ASSIST_ASSISTANT_WORD_LIMIT")
	overrideString(&cfg.Assistant.Prompt, "ASSIST_ASSISTANT_PROMPT")
	overrideInt(&cfg.Assistant.TimeoutMS, "ASSIST_ASSISTANT_TIMEOUT_MS")
	overrideInt(&cfg.Assistant.MaxTokens, "ASSIST_ASSISTANT_MAX_TOKENS")
	overrideFloat(&cfg.Assistant.Temperature, "ASSIST_ASSISTANT_TEMPERATURE")
	overrideBool(&cfg.Assistant.Speak, "ASSIST_ASSISTANT_SPEAK")
	overrideString(&cfg.Assistant.Voice, "ASSIST_ASSISTANT_VOICE")

	overrideBool(&cfg.Display.ANSI, "ASSIST_DISPLAY_ANSI")
	overrideString(&cfg.Display.NATSURL, "ASSIST_DISPLAY_NATS_URL")
	overrideString(&cfg.Display.NATSSubject, "ASSIST_DISPLAY_NATS_SUBJECT")
	overrideBool(&cfg.Display.NATSEmbedded, "ASSIST_DISPLAY_NATS_EMBEDDED")
	overrideInt(&cfg.Display.NATSPort, "ASSIST_DISPLAY_NATS_PORT")

	overrideString(&cfg.Telemetry.LogLevel, "ASSIST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "ASSIST_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.MetricsBind, "ASSIST_TELEMETRY_METRICS_BIND")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ASSIST_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ASSIST_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "ASSIST_TELEMETRY_TRACE_STDOUT")
}

func loadSecrets() Secrets {
	s := Secrets{
		SpeechmaticsAPIKey: os.Getenv("SPEECHMATICS_API_KEY"),
		OpenAIAPIKey:       os.Getenv("CHATGPT_API_KEY"),
		IAMToken:           os.Getenv("IAM_TOKEN"),
		FolderID:           os.Getenv("FOLDER_ID"),
		YandexAPIKey:       os.Getenv("YANDEX_API_KEY"),
		GoogleAPIKey:       os.Getenv("GOOGLE_API_KEY"),
	}
	if s.OpenAIAPIKey == "" {
		s.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	return s
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// Validate checks values and that the selected providers have credentials.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return errors.New("language must not be empty")
	}
	if c.MaxDelay <= 0 {
		return errors.New("max_delay must be positive")
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return errors.New("audio.frames_per_buffer must be positive")
	}
	if c.Audio.ChunkSize <= 0 {
		return errors.New("audio.chunk_size must be positive")
	}
	if c.Audio.MaxBufferedBytes < 0 {
		return errors.New("audio.max_buffered_bytes must not be negative")
	}
	if c.Audio.MaxBufferedBytes > 0 && c.Audio.MaxBufferedBytes < c.Audio.ChunkSize {
		return errors.New("audio.max_buffered_bytes must be at least audio.chunk_size")
	}
	if c.Recognizer.StopTimeoutMS <= 0 {
		return errors.New("recognizer.stop_timeout_ms must be positive")
	}
	if c.Assistant.WordLimit < 0 {
		return errors.New("assistant.word_limit must not be negative")
	}
	if c.Assistant.TimeoutMS <= 0 {
		return errors.New("assistant.timeout_ms must be positive")
	}
	switch strings.ToLower(c.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.log_level %q must be one of debug, info, warn, error", c.Telemetry.LogLevel)
	}
	switch c.Telemetry.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("telemetry.log_format %q must be text or json", c.Telemetry.LogFormat)
	}
	if c.Display.NATSEmbedded && c.Display.NATSURL != "" {
		return errors.New("display.nats_url and display.nats_embedded are mutually exclusive")
	}

	s := c.Secrets
	switch c.Recognizer.Provider {
	case RecognizerSpeechmatics:
		if s.SpeechmaticsAPIKey == "" {
			return fmt.Errorf("%w: SPEECHMATICS_API_KEY is required for the speechmatics recognizer", ErrMissingCredential)
		}
	case RecognizerYandex:
		if s.IAMToken == "" || s.FolderID == "" {
			return fmt.Errorf("%w: IAM_TOKEN and FOLDER_ID are required for the yandex recognizer", ErrMissingCredential)
		}
	case RecognizerGoogle:
		if s.GoogleAPIKey == "" {
			return fmt.Errorf("%w: GOOGLE_API_KEY is required for the google recognizer", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("recognizer.provider %q must be one of speechmatics, yandex, google", c.Recognizer.Provider)
	}

	switch c.Assistant.Provider {
	case AssistantOpenAI:
		if s.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: CHATGPT_API_KEY or OPENAI_API_KEY is required for the openai assistant", ErrMissingCredential)
		}
	case AssistantYandex:
		if s.IAMToken == "" || s.FolderID == "" {
			return fmt.Errorf("%w: IAM_TOKEN and FOLDER_ID are required for the yandex assistant", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("assistant.provider %q must be openai or yandex", c.Assistant.Provider)
	}

	if c.Assistant.Speak && s.YandexAPIKey == "" && (s.IAMToken == "" || s.FolderID == "") {
		return fmt.Errorf("%w: YANDEX_API_KEY or IAM_TOKEN and FOLDER_ID are required to speak responses", ErrMissingCredential)
	}
	return nil
}

// Locale returns the BCP-47 tag used by the Yandex and Google recognizers.
func (c Config) Locale() string {
	if c.Recognizer.Locale != "" {
		return c.Recognizer.Locale
	}
	if strings.Contains(c.Language, "-") {
		return c.Language
	}
	if c.Language == "en" {
		return "en-US"
	}
	return c.Language + "-" + strings.ToUpper(c.Language)
}

func (c Config) StopTimeout() time.Duration {
	return time.Duration(c.Recognizer.StopTimeoutMS) * time.Millisecond
}

func (c Config) AssistantTimeout() time.Duration {
	return time.Duration(c.Assistant.TimeoutMS) * time.Millisecond
}
