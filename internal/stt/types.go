package stt

import (
	"context"
	"errors"
)

// ErrNotConfigured means the transcription endpoint or its key is missing
var ErrNotConfigured = errors.New("speech transcription not configured")

// Transcriber turns a mono 16-bit WAV recording into text
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Configurable is implemented by backends that need credentials
type Configurable interface {
	Configured() bool
}

// Alerter is the user-facing notification sink
type Alerter interface {
	Notify(title, message string)
}

// transcriptResponse is the JSON body returned by the HTTP endpoint
type transcriptResponse struct {
	Text string `json:"text"`
}
