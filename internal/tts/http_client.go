package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/resilience"
)

// maxErrorBody bounds how much of a failed response is kept for the error
const maxErrorBody = 512

// HTTPSynthesizer calls an OpenAI-style speech endpoint with bearer auth
type HTTPSynthesizer struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// SpeechRequest is the JSON body sent to the speech endpoint
type SpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

// NewHTTPSynthesizer creates a synthesizer for endpoint
func NewHTTPSynthesizer(endpoint, apiKey, model string, httpClient *http.Client, logger zerolog.Logger) *HTTPSynthesizer {
	if model == "" {
		model = "tts-hd"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPSynthesizer{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Configured reports whether endpoint and key are set
func (s *HTTPSynthesizer) Configured() bool {
	return s.endpoint != "" && s.apiKey != ""
}

// Synthesize converts text to WAV audio
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(SpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		Speed:          speed,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}
	if len(data) == 0 {
		s.logger.Warn().Msg("Speech endpoint returned empty audio data")
	}
	return data, nil
}
