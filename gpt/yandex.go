package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	YandexGPTEndpoint = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	YandexGPTModel    = "yandexgpt-lite"
)

// Message represents a message in the conversation
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CompletionOptions represents the options for the completion
type CompletionOptions struct {
	Stream      bool    `json:"stream"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

// Request represents the request to the Yandex GPT API
type Request struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions CompletionOptions `json:"completionOptions"`
	Messages          []Message         `json:"messages"`
}

// Alternative represents an alternative response
type Alternative struct {
	Message Message `json:"message"`
	Status  string  `json:"status"`
}

// Response represents the response from the Yandex GPT API
type Response struct {
	Result struct {
		Alternatives []Alternative `json:"alternatives"`
		Usage        struct {
			InputTextTokens  string `json:"inputTextTokens"`
			CompletionTokens string `json:"completionTokens"`
			TotalTokens      string `json:"totalTokens"`
		} `json:"usage"`
		ModelVersion string `json:"modelVersion"`
	} `json:"result"`
}

type YandexConfig struct {
	FolderID    string
	IAMToken    string
	Model       string // defaults to yandexgpt-lite
	Endpoint    string
	MaxTokens   int
	Temperature float64 // sent as is; 0 is deterministic sampling
	Timeout     time.Duration
}

// YandexGPT is a client for the Yandex foundation models completion API.
type YandexGPT struct {
	config     YandexConfig
	httpClient *http.Client
}

var _ Client = (*YandexGPT)(nil)

func NewYandexGPT(config YandexConfig) *YandexGPT {
	if config.Model == "" {
		config.Model = YandexGPTModel
	}
	if config.Endpoint == "" {
		config.Endpoint = YandexGPTEndpoint
	}
	return &YandexGPT{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// ModelURI returns gpt://<folder>/<model>.
func (c *YandexGPT) ModelURI() string {
	return fmt.Sprintf("gpt://%s/%s", c.config.FolderID, c.config.Model)
}

// Complete sends prompt as a single user message and returns the first
// alternative.
func (c *YandexGPT) Complete(ctx context.Context, prompt string) (string, error) {
	req := Request{
		ModelURI: c.ModelURI(),
		CompletionOptions: CompletionOptions{
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
		},
		Messages: []Message{{Role: "user", Text: prompt}},
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Result.Alternatives) == 0 {
		return "", errors.New("yandexgpt: response has no alternatives")
	}
	return strings.TrimSpace(resp.Result.Alternatives[0].Message.Text), nil
}

func (c *YandexGPT) do(ctx context.Context, req Request) (*Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.IAMToken)
	httpReq.Header.Set("x-folder-id", c.config.FolderID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &response, nil
}
