package tts

import (
	"context"
	"errors"

	"github.com/speakr/speakr/internal/feedback"
)

var (
	// ErrNotConfigured means the synthesis endpoint or its key is missing
	ErrNotConfigured = errors.New("speech synthesis not configured")
	// ErrUnknownVoice means a voice outside the supported list was requested
	ErrUnknownVoice = errors.New("unknown voice")
)

// Synthesizer converts one text chunk into an encoded audio payload
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}

// Outcome classifies the result of synthesizing one chunk
type Outcome int

const (
	OutcomeAudio Outcome = iota
	OutcomeEmpty
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAudio:
		return "audio"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TextChunk is a bounded slice of input text with its playback position
type TextChunk struct {
	Index int
	Text  string
}

// Result is the synthesis outcome for one chunk index
type Result struct {
	Index   int
	Audio   []byte
	Outcome Outcome
	Err     error
}

// Alerter is the user-facing notification sink
type Alerter interface {
	Notify(title, message string)
}

// CuePlayer plays short feedback sounds
type CuePlayer interface {
	PlayCue(kind feedback.Cue)
}

// Event reports speak lifecycle transitions to observers
type Event struct {
	Type          string
	CorrelationID string
	Detail        string
}

const (
	EventSpeakingStarted  = "speaking_started"
	EventSpeakingFinished = "speaking_finished"
)
