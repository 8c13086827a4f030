package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/speakr/speakr/internal/resilience"
)

// OpenAISynthesizer uses the OpenAI speech API, or any compatible base URL
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAISynthesizer creates a synthesizer; baseURL may be empty
func NewOpenAISynthesizer(apiKey, baseURL, model string, httpClient *http.Client) *OpenAISynthesizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" || model == "tts-hd" {
		model = string(openai.TTSModel1HD)
	}
	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		apiKey: apiKey,
	}
}

// Configured reports whether an API key is set
func (s *OpenAISynthesizer) Configured() bool {
	return s.apiKey != ""
}

// Synthesize converts text to WAV audio
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          speed,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &resilience.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}
	return data, nil
}
