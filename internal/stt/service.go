package stt

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/observability"
)

// Service routes recordings to the configured backend, or to the echo
// backend while echo mode is on
type Service struct {
	provider string
	backend  Transcriber
	echo     Transcriber
	alerts   Alerter
	logger   zerolog.Logger
	echoMode atomic.Bool
}

// NewService creates a transcription service
func NewService(provider string, backend, echo Transcriber, alerts Alerter, echoMode bool, logger zerolog.Logger) *Service {
	s := &Service{
		provider: provider,
		backend:  backend,
		echo:     echo,
		alerts:   alerts,
		logger:   logger,
	}
	s.echoMode.Store(echoMode)
	return s
}

// SetEchoMode toggles local playback instead of remote transcription
func (s *Service) SetEchoMode(enabled bool) {
	s.echoMode.Store(enabled)
	if enabled {
		s.logger.Info().Msg("Echo mode enabled")
	} else {
		s.logger.Info().Msg("Echo mode disabled")
	}
}

// EchoMode reports whether echo mode is on
func (s *Service) EchoMode() bool {
	return s.echoMode.Load()
}

// Provider names the remote backend
func (s *Service) Provider() string {
	return s.provider
}

// Configured reports whether the remote backend has credentials
func (s *Service) Configured() bool {
	if c, ok := s.backend.(Configurable); ok {
		return c.Configured()
	}
	return s.backend != nil
}

// Transcribe returns the text for wav. A missing configuration raises an
// alert and returns ErrNotConfigured.
func (s *Service) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if s.EchoMode() && s.echo != nil {
		return s.echo.Transcribe(ctx, wav)
	}

	if !s.Configured() {
		s.logger.Warn().Msg("Azure STT not configured")
		s.alerts.Notify("STT Error", "Azure STT not configured. Please set AZURE_STT_ENDPOINT and AZURE_STT_API_KEY.")
		return "", ErrNotConfigured
	}

	started := time.Now()
	text, err := s.backend.Transcribe(ctx, wav)
	observability.RecordTranscription(s.provider, started, err == nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.RecordError("transcription", "stt")
		}
		s.logger.Error().Err(err).Str("provider", s.provider).Dur("elapsed", time.Since(started)).Msg("Transcription failed")
		return "", err
	}

	s.logger.Info().Str("provider", s.provider).Int("chars", len(text)).Dur("elapsed", time.Since(started)).Msg("Transcription received")
	return text, nil
}
