package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// deepgramResponse holds the parts of a prerecorded response we read
type deepgramResponse struct {
	Results struct {
		Channels []deepgramChannel `json:"channels"`
	} `json:"results"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// DeepgramTranscriber uses Deepgram's prerecorded API
type DeepgramTranscriber struct {
	client   *listenClient.RESTClient
	apiKey   string
	model    string
	language string
}

// NewDeepgramTranscriber creates a prerecorded transcription client
func NewDeepgramTranscriber(apiKey, model, language string) *DeepgramTranscriber {
	t := &DeepgramTranscriber{
		apiKey:   apiKey,
		model:    model,
		language: language,
	}
	if apiKey != "" {
		t.client = listenClient.NewREST(apiKey, &interfaces.ClientOptions{})
	}
	return t
}

// Configured reports whether an API key is set
func (t *DeepgramTranscriber) Configured() bool {
	return t.apiKey != "" && t.client != nil
}

// Transcribe uploads wav and returns the first alternative's transcript
func (t *DeepgramTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if !t.Configured() {
		return "", ErrNotConfigured
	}

	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.model,
		Language:    t.language,
		Punctuate:   true,
		SmartFormat: true,
	}

	var resp deepgramResponse
	if err := t.client.DoStream(ctx, bytes.NewReader(wav), opts, &resp); err != nil {
		return "", fmt.Errorf("deepgram transcription failed: %w", err)
	}
	return transcriptOf(resp), nil
}

func transcriptOf(resp deepgramResponse) string {
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Results.Channels[0].Alternatives[0].Transcript)
}
