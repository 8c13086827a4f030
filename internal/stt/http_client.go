package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/resilience"
)

const maxErrorBody = 512

// HTTPTranscriber uploads recordings to an Azure-style transcription endpoint
type HTTPTranscriber struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewHTTPTranscriber creates a transcriber for endpoint; retry may be nil
func NewHTTPTranscriber(endpoint, apiKey string, httpClient *http.Client, retry *resilience.RetryConfig, logger zerolog.Logger) *HTTPTranscriber {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &HTTPTranscriber{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: httpClient,
		retry:      retry,
		logger:     logger,
	}
}

// Configured reports whether endpoint and key are set
func (t *HTTPTranscriber) Configured() bool {
	return t.endpoint != "" && t.apiKey != ""
}

// Transcribe posts wav as multipart field "file" and returns the text
func (t *HTTPTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if !t.Configured() {
		return "", ErrNotConfigured
	}

	body, contentType, err := multipartWAV(wav)
	if err != nil {
		return "", err
	}

	var text string
	attempt := 0
	err = resilience.Retry(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			t.logger.Warn().Int("attempt", attempt).Msg("Retrying transcription request")
		}

		var err error
		text, err = t.post(ctx, body, contentType)
		return err
	}, t.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (t *HTTPTranscriber) post(ctx context.Context, body []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("api-key", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var out transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return out.Text, nil
}

func multipartWAV(wav []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
