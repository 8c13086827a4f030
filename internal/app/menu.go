package app

import (
	"context"
	"fmt"

	"github.com/speakr/speakr/internal/audio"
	"github.com/speakr/speakr/internal/capture"
	"github.com/speakr/speakr/internal/config"
	"github.com/speakr/speakr/internal/observability"
	"github.com/speakr/speakr/internal/resilience"
	"github.com/speakr/speakr/internal/stt"
	"github.com/speakr/speakr/internal/tts"
)

// State is the menu model shown to control clients
type State struct {
	Version        string         `json:"version"`
	Devices        []audio.Device `json:"devices"`
	SelectedDevice *audio.Device  `json:"selected_device"`
	SampleRate     int            `json:"sample_rate"`
	RateNegotiated bool           `json:"rate_negotiated"`
	Voices         []string       `json:"voices"`
	Voice          string         `json:"voice"`
	Speeds         []float64      `json:"speeds"`
	Speed          float64        `json:"speed"`
	EchoMode       bool           `json:"echo_mode"`
	Playing        bool           `json:"playing"`
	Recording      bool           `json:"recording"`
}

// State returns a snapshot of the menu model
func (a *App) State() State {
	s := State{
		Version:   config.Version,
		Devices:   a.session.Devices(),
		Voices:    a.pipeline.Voices(),
		Voice:     a.pipeline.Voice(),
		Speeds:    append([]float64(nil), config.SpeedPresets...),
		Speed:     a.pipeline.Speed(),
		EchoMode:  a.stt.EchoMode(),
		Playing:   a.pipeline.IsPlaying(),
		Recording: a.session.IsRecording(),
	}
	if dev, ok := a.session.SelectedDevice(); ok {
		s.SelectedDevice = &dev
	}
	s.SampleRate, s.RateNegotiated = a.session.SampleRate()
	return s
}

// SelectDevice switches the capture device
func (a *App) SelectDevice(index int) error {
	return a.session.SelectDevice(index)
}

// RefreshDevices re-enumerates input devices
func (a *App) RefreshDevices() error {
	return a.session.Refresh()
}

// SetVoice changes the synthesis voice
func (a *App) SetVoice(voice string) error {
	return a.pipeline.SetVoice(voice)
}

// SetSpeed changes the synthesis speed and returns the clamped value
func (a *App) SetSpeed(speed float64) float64 {
	return a.pipeline.SetSpeed(speed)
}

// SetEchoMode toggles local playback of recordings
func (a *App) SetEchoMode(enabled bool) {
	a.stt.SetEchoMode(enabled)
}

// StopSpeech interrupts playback
func (a *App) StopSpeech() {
	a.pipeline.Stop()
}

// ReadinessChecks reports whether each dependency can serve a request
func (a *App) ReadinessChecks() map[string]observability.HealthCheckFunc {
	return map[string]observability.HealthCheckFunc{
		"audio_device": func(ctx context.Context) (bool, error) {
			if _, ok := a.session.SelectedDevice(); !ok {
				return false, capture.ErrNoDevice
			}
			return true, nil
		},
		"synthesizer": func(ctx context.Context) (bool, error) {
			if !a.synthConfigured() {
				return false, tts.ErrNotConfigured
			}
			if a.breaker != nil {
				state, requests, failures, rate := a.breaker.GetStats()
				if state == resilience.StateOpen {
					return false, fmt.Errorf("%w: %d of %d requests failed (%.0f%%)", resilience.ErrCircuitOpen, failures, requests, rate)
				}
			}
			return true, nil
		},
		"transcriber": func(ctx context.Context) (bool, error) {
			if !a.stt.Configured() && !a.stt.EchoMode() {
				return false, stt.ErrNotConfigured
			}
			return true, nil
		},
	}
}
