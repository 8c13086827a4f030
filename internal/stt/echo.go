package stt

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/audio"
)

// EchoText is returned instead of a transcript in echo mode
const EchoText = "[Echo mode: Audio played back locally]"

// EchoTranscriber plays the recording back instead of sending it anywhere
type EchoTranscriber struct {
	player audio.Player
	logger zerolog.Logger
}

// NewEchoTranscriber creates an echo backend
func NewEchoTranscriber(player audio.Player, logger zerolog.Logger) *EchoTranscriber {
	return &EchoTranscriber{player: player, logger: logger}
}

// Transcribe blocks while the recording plays. Playback errors are logged only.
func (e *EchoTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	e.logger.Info().Int("bytes", len(wav)).Msg("Echo mode: playing back recorded audio")
	if err := e.player.Play(ctx, wav); err != nil {
		e.logger.Warn().Err(err).Msg("Error during echo playback")
	}
	return EchoText, nil
}
