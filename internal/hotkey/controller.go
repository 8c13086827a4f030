package hotkey

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/feedback"
	"github.com/speakr/speakr/internal/observability"
)

// Recorder is the capture session as seen by the controller
type Recorder interface {
	Start() bool
	Stop()
	Cancel()
	IsRecording() bool
	Faulted() bool
	WAV() ([]byte, bool)
}

// Speaker is the speech pipeline as seen by the controller
type Speaker interface {
	IsPlaying() bool
	Stop()
}

// CuePlayer plays short feedback sounds
type CuePlayer interface {
	PlayCue(kind feedback.Cue)
}

// Actions are the long-running operations fired by chords
type Actions struct {
	// Transcribe receives the recording of one session
	Transcribe func(wav []byte, correlationID string)
	// SpeakClipboard reads the selection and speaks it
	SpeakClipboard func()
}

// Event reports recording lifecycle transitions to observers
type Event struct {
	Type          string
	CorrelationID string
	Detail        string
}

const (
	EventRecordingStarted   = "recording_started"
	EventRecordingStopped   = "recording_stopped"
	EventRecordingCancelled = "recording_cancelled"
	EventRecordingFailed    = "recording_failed"
)

// DefaultMinDuration is the shortest recording that is transcribed
const DefaultMinDuration = time.Second

// Options tunes a Controller
type Options struct {
	MinDuration time.Duration
	// Now overrides the clock
	Now func() time.Time
	// Dispatch runs slow actions off the event goroutine; defaults to go f()
	Dispatch func(func())
	// OnEvent observes recording transitions
	OnEvent func(Event)
}

// State is a snapshot of chord tracking
type State struct {
	RecordActive bool
	SpeakActive  bool
	Pressed      []Key
}

// Controller turns key transitions into record and speak actions.
// HandleEvent must be called from a single goroutine; Reset may be called
// from any goroutine.
type Controller struct {
	recorder Recorder
	speaker  Speaker
	cues     CuePlayer
	actions  Actions
	logger   zerolog.Logger

	minDuration time.Duration
	now         func() time.Time
	dispatch    func(func())
	onEvent     func(Event)

	mu           sync.Mutex
	pressed      map[Key]bool
	order        []Key
	recordActive bool
	speakActive  bool
	recordStart  time.Time
	recordID     string
}

// NewController creates a controller
func NewController(recorder Recorder, speaker Speaker, cues CuePlayer, actions Actions, opts Options, logger zerolog.Logger) *Controller {
	if opts.MinDuration <= 0 {
		opts.MinDuration = DefaultMinDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(f func()) { go f() }
	}
	return &Controller{
		recorder:    recorder,
		speaker:     speaker,
		cues:        cues,
		actions:     actions,
		logger:      logger,
		minDuration: opts.MinDuration,
		now:         opts.Now,
		dispatch:    opts.Dispatch,
		onEvent:     opts.OnEvent,
		pressed:     make(map[Key]bool),
	}
}

// State returns a snapshot of the chord state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		RecordActive: c.recordActive,
		SpeakActive:  c.speakActive,
		Pressed:      append([]Key(nil), c.order...),
	}
}

// HandleEvent processes one key transition. A panic resets all state.
func (c *Controller) HandleEvent(ev RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Bool("down", ev.Down).Uint16("code", ev.Code).Msg("Error in hotkey handler")
			observability.RecordError("handler_panic", "hotkey")
			c.Reset()
		}
	}()

	key := Normalize(ev.Code, ev.Char)
	if ev.Down {
		c.onPress(key)
	} else {
		c.onRelease(key)
	}
}

// Reset clears both chords and all tracked keys, cancelling any recording.
// It is the capture session's error handler.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.recordActive = false
	c.speakActive = false
	c.clearKeys()
	c.mu.Unlock()

	if c.recorder.IsRecording() {
		c.recorder.Cancel()
	}
	c.logger.Info().Msg("State reset complete, ready for next recording")
}

func (c *Controller) onPress(key Key) {
	if key == KeyEscape {
		if c.speaker.IsPlaying() {
			c.logger.Info().Msg("Interrupt key pressed, stopping speech")
			c.speaker.Stop()
		}
		return
	}

	if key == KeySuper && c.cancelRecording() {
		return
	}

	if !tracked(key) {
		return
	}

	switch c.arm(key, c.recorder.IsRecording()) {
	case armSpeak:
		c.logger.Info().Msg("Speak hotkey armed, will speak selection on release")
	case armRecord:
		c.startRecording()
	}
}

type armResult int

const (
	armNone armResult = iota
	armSpeak
	armRecord
)

// arm tracks key and checks both chords
func (c *Controller) arm(key Key, recording bool) armResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pressed[key] {
		c.pressed[key] = true
		c.order = append(c.order, key)
	}

	idle := !c.recordActive && !c.speakActive

	if idle && c.pressed[KeyCtrl] && c.pressed[KeySuper] && c.pressedAfter(KeyCtrl, KeySuper) && !c.pressed[KeyAlt] {
		c.speakActive = true
		return armSpeak
	}

	if idle && !recording && c.pressed[KeyAlt] && c.pressed[KeyB] && c.pressedAfter(KeyAlt, KeyB) {
		c.recordActive = true
		c.recordStart = c.now()
		c.recordID = observability.NewCorrelationID()
		return armRecord
	}

	return armNone
}

// pressedAfter reports whether second was pressed after first; mu must be held
func (c *Controller) pressedAfter(first, second Key) bool {
	if len(c.order) < 2 {
		return false
	}
	firstPos, secondPos := -1, -1
	for i, k := range c.order {
		switch k {
		case first:
			firstPos = i
		case second:
			secondPos = i
		}
	}
	return firstPos >= 0 && secondPos > firstPos
}

// clearKeys must be called with mu held
func (c *Controller) clearKeys() {
	for k := range c.pressed {
		delete(c.pressed, k)
	}
	c.order = c.order[:0]
}

func (c *Controller) startRecording() {
	c.mu.Lock()
	id := c.recordID
	c.mu.Unlock()
	logger := observability.WithCorrelationID(c.logger, id)

	c.cues.PlayCue(feedback.CueStart)
	if !c.recorder.Start() {
		c.mu.Lock()
		if c.recordID == id {
			c.recordActive = false
			c.clearKeys()
		}
		c.mu.Unlock()
		logger.Warn().Msg("Recording did not start")
		c.emit(Event{Type: EventRecordingFailed, CorrelationID: id, Detail: "start failed"})
		return
	}

	logger.Info().Msg("Recording started, release to transcribe")
	c.emit(Event{Type: EventRecordingStarted, CorrelationID: id})
}

// cancelRecording handles the cancel key while recording is active or armed
func (c *Controller) cancelRecording() bool {
	c.mu.Lock()
	active := c.recordActive
	id := c.recordID
	c.mu.Unlock()

	if !active && !c.recorder.IsRecording() {
		return false
	}

	c.cues.PlayCue(feedback.CueCancel)
	c.recorder.Cancel()

	c.mu.Lock()
	c.recordActive = false
	c.clearKeys()
	c.mu.Unlock()

	logger := observability.WithCorrelationID(c.logger, id)
	logger.Info().Msg("Recording cancelled by cancel key")
	observability.RecordRecordingOutcome(observability.RecordingCancelled, 0)
	c.emit(Event{Type: EventRecordingCancelled, CorrelationID: id, Detail: "cancel key"})
	return true
}

type releaseResult int

const (
	releaseNone releaseResult = iota
	releaseSpeak
	releaseRecord
)

// release decides what a key release fires and clears state accordingly
func (c *Controller) release(key Key) (releaseResult, time.Time, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	speakKey := key == KeyCtrl || key == KeySuper
	recordKey := key == KeyAlt || key == KeyB

	switch {
	case speakKey && c.speakActive:
		c.speakActive = false
		c.clearKeys()
		return releaseSpeak, time.Time{}, ""
	case recordKey && c.recordActive:
		c.recordActive = false
		c.clearKeys()
		return releaseRecord, c.recordStart, c.recordID
	}

	if tracked(key) {
		delete(c.pressed, key)
		kept := c.order[:0]
		for _, k := range c.order {
			if k != key {
				kept = append(kept, k)
			}
		}
		c.order = kept
	}
	return releaseNone, time.Time{}, ""
}

func (c *Controller) onRelease(key Key) {
	result, started, id := c.release(key)

	switch result {
	case releaseSpeak:
		c.cues.PlayCue(feedback.CueSend)
		c.logger.Info().Msg("Speak hotkey released, speaking selection")
		if c.actions.SpeakClipboard != nil {
			c.dispatch(c.actions.SpeakClipboard)
		}
	case releaseRecord:
		c.finishRecording(started, id)
	}
}

func (c *Controller) finishRecording(started time.Time, id string) {
	logger := observability.WithCorrelationID(c.logger, id)

	c.recorder.Stop()
	duration := c.now().Sub(started)

	if c.recorder.Faulted() {
		logger.Warn().Msg("Recording had an error, skipping transcription")
		observability.RecordRecordingOutcome(observability.RecordingFailed, duration)
		c.emit(Event{Type: EventRecordingFailed, CorrelationID: id, Detail: "capture fault"})
		return
	}

	if duration < c.minDuration {
		c.cues.PlayCue(feedback.CueCancel)
		c.recorder.Cancel()
		logger.Info().Dur("duration", duration).Msg("Recording too short, cancelled")
		observability.RecordRecordingOutcome(observability.RecordingTooShort, duration)
		c.emit(Event{Type: EventRecordingCancelled, CorrelationID: id, Detail: fmt.Sprintf("too short (%.2fs)", duration.Seconds())})
		return
	}

	c.cues.PlayCue(feedback.CueStop)
	logger.Info().Dur("duration", duration).Msg("Recording stopped")

	wav, ok := c.recorder.WAV()
	if !ok {
		logger.Warn().Msg("No audio captured")
		observability.RecordRecordingOutcome(observability.RecordingFailed, duration)
		c.emit(Event{Type: EventRecordingFailed, CorrelationID: id, Detail: "no audio"})
		return
	}

	observability.RecordRecordingOutcome(observability.RecordingTranscribed, duration)
	c.emit(Event{Type: EventRecordingStopped, CorrelationID: id, Detail: fmt.Sprintf("%.2fs", duration.Seconds())})

	if c.actions.Transcribe != nil {
		c.dispatch(func() { c.actions.Transcribe(wav, id) })
	}
}

func (c *Controller) emit(e Event) {
	if c.onEvent != nil {
		c.onEvent(e)
	}
}
