package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/speakr/speakr/internal/resilience"
)

// OpenAITranscriber uses the Whisper transcription API
type OpenAITranscriber struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAITranscriber creates a transcriber; baseURL may be empty
func NewOpenAITranscriber(apiKey, baseURL, model string, httpClient *http.Client) *OpenAITranscriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		apiKey: apiKey,
	}
}

// Configured reports whether an API key is set
func (t *OpenAITranscriber) Configured() bool {
	return t.apiKey != ""
}

// Transcribe uploads wav and returns the recognised text
func (t *OpenAITranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if !t.Configured() {
		return "", ErrNotConfigured
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &resilience.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return resp.Text, nil
}
