package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/speakr/speakr/internal/capture"
	"github.com/speakr/speakr/internal/hotkey"
	"github.com/speakr/speakr/internal/observability"
	"github.com/speakr/speakr/internal/resilience"
	"github.com/speakr/speakr/internal/stt"
	"github.com/speakr/speakr/internal/tts"
)

// transcribeTimeout bounds one transcription including retries
const transcribeTimeout = 90 * time.Second

// Clipboard reads the selection and pastes text into the focused window
type Clipboard interface {
	Text(copySelection bool) (string, bool)
	SetText(text string) error
	Paste() error
}

// Alerter is the user-facing notification sink
type Alerter interface {
	Notify(title, message string)
}

// Deps are the collaborators an App drives
type Deps struct {
	Session   *capture.Session
	Pipeline  *tts.Pipeline
	STT       *stt.Service
	Clipboard Clipboard
	Alerts    Alerter
	Cues      hotkey.CuePlayer
	Hub       *Hub

	// SynthesizerConfigured reports whether speech synthesis has credentials
	SynthesizerConfigured func() bool
	// Breaker guards synthesis calls; nil disables the readiness check on it
	Breaker *resilience.CircuitBreaker
	// Hotkeys tunes the chord controller; Dispatch and OnEvent are set by New
	Hotkeys hotkey.Options
}

// App owns the chord controller and the two long-running actions it fires
type App struct {
	session    *capture.Session
	pipeline   *tts.Pipeline
	stt        *stt.Service
	clip       Clipboard
	alerts     Alerter
	hub        *Hub
	controller *hotkey.Controller
	logger     zerolog.Logger

	synthConfigured func() bool
	breaker         *resilience.CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the controller to the session and the speech services
func New(d Deps, logger zerolog.Logger) *App {
	if d.Hub == nil {
		d.Hub = NewHub(0, logger)
	}
	if d.SynthesizerConfigured == nil {
		d.SynthesizerConfigured = func() bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		session:         d.Session,
		pipeline:        d.Pipeline,
		stt:             d.STT,
		clip:            d.Clipboard,
		alerts:          d.Alerts,
		hub:             d.Hub,
		logger:          logger,
		synthConfigured: d.SynthesizerConfigured,
		breaker:         d.Breaker,
		ctx:             ctx,
		cancel:          cancel,
	}

	opts := d.Hotkeys
	if opts.Dispatch == nil {
		opts.Dispatch = a.dispatch
	}
	opts.OnEvent = func(e hotkey.Event) {
		a.hub.Publish(StatusEvent{Type: e.Type, CorrelationID: e.CorrelationID, Detail: e.Detail})
	}

	actions := hotkey.Actions{
		Transcribe:     a.TranscribeAndPaste,
		SpeakClipboard: a.SpeakClipboard,
	}
	a.controller = hotkey.NewController(d.Session, d.Pipeline, d.Cues, actions, opts, observability.Component("hotkey"))

	d.Session.SetErrorHandler(a.controller.Reset)
	d.Pipeline.SetEventHandler(func(e tts.Event) {
		a.hub.Publish(StatusEvent{Type: e.Type, CorrelationID: e.CorrelationID, Detail: e.Detail})
	})

	return a
}

// Controller returns the chord controller fed by the keyboard listener
func (a *App) Controller() *hotkey.Controller {
	return a.controller
}

// Hub returns the status event hub
func (a *App) Hub() *Hub {
	return a.hub
}

// HandleKey feeds one raw key transition to the controller
func (a *App) HandleKey(ev hotkey.RawEvent) {
	a.controller.HandleEvent(ev)
}

// dispatch runs an action on a tracked worker goroutine
func (a *App) dispatch(f func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		f()
	}()
}

// TranscribeAndPaste transcribes one recording and pastes the text into
// the focused window
func (a *App) TranscribeAndPaste(wav []byte, correlationID string) {
	logger := observability.WithCorrelationID(a.logger, correlationID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Transcription worker panicked")
			observability.RecordError("worker_panic", "app")
		}
	}()

	ctx, cancel := context.WithTimeout(a.ctx, transcribeTimeout)
	defer cancel()

	text, err := a.stt.Transcribe(ctx, wav)
	if err != nil {
		if !errors.Is(err, stt.ErrNotConfigured) {
			logger.Error().Err(err).Msg("Transcription failed")
		}
		text = ""
	}

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Info().Msg("No text transcribed")
		return
	}

	logger.Info().Int("chars", len(text)).Msg("Transcribed, pasting text")
	a.hub.Publish(StatusEvent{Type: EventTranscribed, CorrelationID: correlationID, Detail: fmt.Sprintf("%d characters", len([]rune(text)))})

	if err := a.clip.SetText(text); err != nil {
		logger.Error().Err(err).Msg("Failed to copy text to clipboard")
		observability.RecordError("clipboard_write", "app")
		a.alerts.Notify("Paste Error", fmt.Sprintf("Failed to copy text to clipboard: %v", err))
		return
	}

	if err := a.clip.Paste(); err != nil {
		logger.Error().Err(err).Msg("Failed to paste text")
		observability.RecordError("paste", "app")
		a.alerts.Notify("Paste Error", fmt.Sprintf("Failed to paste text: %v\n\nThe text has been copied to your clipboard.", err))
	}
}

// SpeakClipboard copies the current selection and speaks it
func (a *App) SpeakClipboard() {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("Speak worker panicked")
			observability.RecordError("worker_panic", "app")
		}
	}()

	text, _ := a.clip.Text(true)
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		a.logger.Info().Msg("No text in clipboard")
		a.alerts.Notify("TTS Error", "No text found in clipboard. Please select or copy some text first.")
		return
	}

	a.pipeline.Speak(text)
}

// Shutdown stops speech, discards any recording and waits for workers
func (a *App) Shutdown(timeout time.Duration) {
	a.pipeline.Stop()
	if a.session.IsRecording() {
		a.session.Cancel()
	}
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info().Msg("Workers finished")
	case <-time.After(timeout):
		a.logger.Warn().Dur("timeout", timeout).Msg("Workers still running at shutdown")
	}
}
