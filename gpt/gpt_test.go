package gpt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  - say yes\n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	reply, err := client.Complete(context.Background(), "prefix: question")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if reply != "- say yes" {
		t.Errorf("Complete() = %q", reply)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != DefaultOpenAIModel {
		t.Errorf("model = %q; want %q", got.Model, DefaultOpenAIModel)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "prefix: question" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestOpenAIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	client := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if _, err := client.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("Complete() succeeded on a 429")
	}
}

func TestYandexGPTComplete(t *testing.T) {
	var got Request
	var folder, auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		folder = r.Header.Get("x-folder-id")
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"result":{"alternatives":[{"message":{"role":"assistant","text":"first"},"status":"ALTERNATIVE_STATUS_FINAL"},{"message":{"role":"assistant","text":"second"}}],"modelVersion":"1"}}`))
	}))
	defer srv.Close()

	client := NewYandexGPT(YandexConfig{FolderID: "b1g", IAMToken: "t0k", Endpoint: srv.URL})
	reply, err := client.Complete(context.Background(), "help")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if reply != "first" {
		t.Errorf("Complete() = %q; want first alternative", reply)
	}
	if got.ModelURI != "gpt://b1g/yandexgpt-lite" {
		t.Errorf("modelUri = %q", got.ModelURI)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Text != "help" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if folder != "b1g" || auth != "Bearer t0k" {
		t.Errorf("headers: folder=%q auth=%q", folder, auth)
	}
}

func TestYandexGPTSendsZeroTemperature(t *testing.T) {
	options := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CompletionOptions map[string]any `json:"completionOptions"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		options <- body.CompletionOptions
		w.Write([]byte(`{"result":{"alternatives":[{"message":{"role":"assistant","text":"ok"}}]}}`))
	}))
	defer srv.Close()

	client := NewYandexGPT(YandexConfig{FolderID: "b1g", Endpoint: srv.URL, Temperature: 0})
	if _, err := client.Complete(context.Background(), "help"); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	got := <-options
	if temp, ok := got["temperature"]; !ok || temp != float64(0) {
		t.Errorf("temperature = %v; want 0", got["temperature"])
	}
}

func TestYandexGPTStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"permission denied"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewYandexGPT(YandexConfig{Endpoint: srv.URL})
	_, err := client.Complete(context.Background(), "help")
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("Complete() error = %v; want status and body", err)
	}
}

func TestYandexGPTNoAlternatives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"alternatives":[]}}`))
	}))
	defer srv.Close()

	if _, err := NewYandexGPT(YandexConfig{Endpoint: srv.URL}).Complete(context.Background(), "x"); err == nil {
		t.Fatal("Complete() succeeded without alternatives")
	}
}
