package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/audio"
	"github.com/speakr/speakr/internal/capture"
	"github.com/speakr/speakr/internal/feedback"
	"github.com/speakr/speakr/internal/hotkey"
	"github.com/speakr/speakr/internal/resilience"
	"github.com/speakr/speakr/internal/stt"
	"github.com/speakr/speakr/internal/tts"
)

type stubStream struct{}

func (stubStream) Start() error         { return nil }
func (stubStream) Faults() <-chan error { return nil }
func (stubStream) Close() error         { return nil }

type stubDriver struct {
	devices []audio.Device
}

func (d *stubDriver) Devices() ([]audio.Device, error) { return d.devices, nil }

func (d *stubDriver) DefaultInput() (audio.Device, error) {
	return audio.Device{}, errors.New("no default input")
}

func (d *stubDriver) Supports(dev audio.Device, sampleRate int) error { return nil }

func (d *stubDriver) OpenInput(dev audio.Device, sampleRate, framesPerBuffer int, onFrames audio.FrameHandler) (audio.InputStream, error) {
	return stubStream{}, nil
}

func (d *stubDriver) Refresh() error { return nil }

type stubPlayer struct {
	mu     sync.Mutex
	played int
}

func (p *stubPlayer) Play(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	p.played++
	p.mu.Unlock()
	return nil
}

func (p *stubPlayer) Played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

type stubSynth struct {
	mu    sync.Mutex
	texts []string
}

func (s *stubSynth) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return []byte("audio"), nil
}

func (s *stubSynth) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type stubTranscriber struct {
	text       string
	err        error
	configured bool
}

func (t *stubTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return t.text, t.err
}

func (t *stubTranscriber) Configured() bool { return t.configured }

type stubClipboard struct {
	mu       sync.Mutex
	text     string
	written  []string
	pastes   int
	pasteErr error
}

func (c *stubClipboard) Text(copySelection bool) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.text != ""
}

func (c *stubClipboard) SetText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, text)
	return nil
}

func (c *stubClipboard) Paste() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pastes++
	return c.pasteErr
}

type stubAlerts struct {
	mu       sync.Mutex
	messages []string
}

func (a *stubAlerts) Notify(title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, title+": "+message)
}

func (a *stubAlerts) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

type stubCues struct{}

func (stubCues) PlayCue(kind feedback.Cue) {}

type fixture struct {
	app     *App
	synth   *stubSynth
	backend *stubTranscriber
	clip    *stubClipboard
	alerts  *stubAlerts
	player  *stubPlayer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		synth:   &stubSynth{},
		backend: &stubTranscriber{configured: true},
		clip:    &stubClipboard{},
		alerts:  &stubAlerts{},
		player:  &stubPlayer{},
	}

	driver := &stubDriver{devices: []audio.Device{
		{Index: 1, Name: "Built-in Microphone", HostAPI: "ALSA", MaxInputChannels: 2, DefaultSampleRate: 48000},
		{Index: 3, Name: "Samson Q2U Microphone", HostAPI: "ALSA", MaxInputChannels: 1, DefaultSampleRate: 48000},
	}}
	capCfg := capture.DefaultConfig()
	capCfg.HostAPI = "ALSA"
	session := capture.NewSession(driver, f.alerts, capCfg, zerolog.Nop())

	pipeline := tts.NewPipeline(f.synth, f.player, f.alerts, stubCues{}, nil, tts.DefaultConfig(), zerolog.Nop())
	echo := stt.NewEchoTranscriber(f.player, zerolog.Nop())
	service := stt.NewService("azure", f.backend, echo, f.alerts, false, zerolog.Nop())

	f.app = New(Deps{
		Session:   session,
		Pipeline:  pipeline,
		STT:       service,
		Clipboard: f.clip,
		Alerts:    f.alerts,
		Cues:      stubCues{},
		Hub:       NewHub(8, zerolog.Nop()),
	}, zerolog.Nop())
	t.Cleanup(func() { f.app.Shutdown(time.Second) })
	return f
}

func nextEvent(t *testing.T, sub *Subscription) StatusEvent {
	t.Helper()
	select {
	case e, ok := <-sub.C:
		if !ok {
			t.Fatal("Subscription closed unexpectedly")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a status event")
	}
	return StatusEvent{}
}

func TestTranscribeAndPaste_PastesText(t *testing.T) {
	f := newFixture(t)
	f.backend.text = "  hello world \n"
	sub := f.app.Hub().Subscribe()
	defer sub.Close()

	f.app.TranscribeAndPaste([]byte("RIFF"), "rec-1")

	if len(f.clip.written) != 1 || f.clip.written[0] != "hello world" {
		t.Errorf("Expected trimmed text on the clipboard, got %q", f.clip.written)
	}
	if f.clip.pastes != 1 {
		t.Errorf("Expected one paste, got %d", f.clip.pastes)
	}
	e := nextEvent(t, sub)
	if e.Type != EventTranscribed || e.CorrelationID != "rec-1" {
		t.Errorf("Expected transcribed event for rec-1, got %+v", e)
	}
	if len(f.alerts.Messages()) != 0 {
		t.Errorf("Expected no alerts, got %q", f.alerts.Messages())
	}
}

func TestTranscribeAndPaste_EmptyTextSkipsPaste(t *testing.T) {
	f := newFixture(t)
	f.backend.text = "   "

	f.app.TranscribeAndPaste([]byte("RIFF"), "rec-2")

	if len(f.clip.written) != 0 || f.clip.pastes != 0 {
		t.Errorf("Expected no clipboard activity, got writes=%q pastes=%d", f.clip.written, f.clip.pastes)
	}
}

func TestTranscribeAndPaste_ErrorBecomesEmptyText(t *testing.T) {
	f := newFixture(t)
	f.backend.err = errors.New("service unavailable")

	f.app.TranscribeAndPaste([]byte("RIFF"), "rec-3")

	if f.clip.pastes != 0 {
		t.Error("Expected no paste after a transcription error")
	}
}

func TestTranscribeAndPaste_NotConfigured(t *testing.T) {
	f := newFixture(t)
	f.backend.configured = false
	f.backend.text = "should not be used"

	f.app.TranscribeAndPaste([]byte("RIFF"), "rec-4")

	msgs := f.alerts.Messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "STT Error: Azure STT not configured") {
		t.Errorf("Expected a not-configured alert, got %q", msgs)
	}
	if f.clip.pastes != 0 {
		t.Error("Expected no paste when transcription is not configured")
	}
}

func TestTranscribeAndPaste_PasteFailureAlerts(t *testing.T) {
	f := newFixture(t)
	f.backend.text = "dictated"
	f.clip.pasteErr = errors.New("keyboard locked")

	f.app.TranscribeAndPaste([]byte("RIFF"), "rec-5")

	want := "Paste Error: Failed to paste text: keyboard locked\n\nThe text has been copied to your clipboard."
	msgs := f.alerts.Messages()
	if len(msgs) != 1 || msgs[0] != want {
		t.Errorf("Expected %q, got %q", want, msgs)
	}
	if len(f.clip.written) != 1 || f.clip.written[0] != "dictated" {
		t.Errorf("Expected the text to stay on the clipboard, got %q", f.clip.written)
	}
}

func TestTranscribeAndPaste_EchoMode(t *testing.T) {
	f := newFixture(t)
	f.backend.text = "remote text"
	f.app.SetEchoMode(true)

	f.app.TranscribeAndPaste([]byte("RIFF"), "rec-6")

	if f.player.Played() != 1 {
		t.Errorf("Expected the recording to be played back, got %d plays", f.player.Played())
	}
	if len(f.clip.written) != 1 || f.clip.written[0] != stt.EchoText {
		t.Errorf("Expected echo text to be pasted, got %q", f.clip.written)
	}
}

func TestSpeakClipboard_EmptyAlerts(t *testing.T) {
	f := newFixture(t)
	f.clip.text = " \n\t "

	f.app.SpeakClipboard()

	want := "TTS Error: No text found in clipboard. Please select or copy some text first."
	msgs := f.alerts.Messages()
	if len(msgs) != 1 || msgs[0] != want {
		t.Errorf("Expected %q, got %q", want, msgs)
	}
	if len(f.synth.Texts()) != 0 {
		t.Error("Expected nothing to be synthesized")
	}
}

func TestSpeakClipboard_NormalizesAndSpeaks(t *testing.T) {
	f := newFixture(t)
	f.clip.text = "  Cafe\u0301 time.  "

	f.app.SpeakClipboard()

	texts := f.synth.Texts()
	if len(texts) != 1 || texts[0] != "Caf\u00e9 time." {
		t.Errorf("Expected NFC text to be synthesized, got %q", texts)
	}
	if f.player.Played() != 1 {
		t.Errorf("Expected one chunk played, got %d", f.player.Played())
	}
}

func TestSpeakClipboard_PublishesSpeakingEvents(t *testing.T) {
	f := newFixture(t)
	f.clip.text = "Hello."
	sub := f.app.Hub().Subscribe()
	defer sub.Close()

	f.app.SpeakClipboard()

	if e := nextEvent(t, sub); e.Type != EventSpeakingStarted {
		t.Errorf("Expected speaking_started, got %s", e.Type)
	}
	if e := nextEvent(t, sub); e.Type != EventSpeakingFinished {
		t.Errorf("Expected speaking_finished, got %s", e.Type)
	}
}

func TestHandleKey_PublishesRecordingEvents(t *testing.T) {
	f := newFixture(t)
	sub := f.app.Hub().Subscribe()
	defer sub.Close()

	const (
		alt   = 0x0038
		keyB  = 0x0030
		super = 0x0E5B
	)
	f.app.HandleKey(hotkey.RawEvent{Code: alt, Down: true})
	f.app.HandleKey(hotkey.RawEvent{Code: keyB, Down: true})

	if e := nextEvent(t, sub); e.Type != EventRecordingStarted || e.CorrelationID == "" {
		t.Errorf("Expected recording_started with a correlation id, got %+v", e)
	}
	if !f.app.State().Recording {
		t.Error("Expected the state to report recording")
	}

	f.app.HandleKey(hotkey.RawEvent{Code: super, Down: true})

	if e := nextEvent(t, sub); e.Type != EventRecordingCancelled {
		t.Errorf("Expected recording_cancelled, got %s", e.Type)
	}
	if f.app.State().Recording {
		t.Error("Expected recording to stop after cancel")
	}
}

func TestState_Snapshot(t *testing.T) {
	f := newFixture(t)

	s := f.app.State()
	if len(s.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(s.Devices))
	}
	if s.SelectedDevice == nil || s.SelectedDevice.Index != 3 {
		t.Errorf("Expected the preferred Samson device, got %+v", s.SelectedDevice)
	}
	if s.SampleRate != 44100 || !s.RateNegotiated {
		t.Errorf("Expected negotiated 44100, got %d (%v)", s.SampleRate, s.RateNegotiated)
	}
	if s.Voice != "alloy" || len(s.Voices) != 10 {
		t.Errorf("Expected alloy among 10 voices, got %s of %d", s.Voice, len(s.Voices))
	}
	if s.Speed != 1.0 || len(s.Speeds) != 5 {
		t.Errorf("Expected speed 1.0 among 5 presets, got %v of %d", s.Speed, len(s.Speeds))
	}
	if s.EchoMode || s.Playing || s.Recording {
		t.Errorf("Expected an idle snapshot, got %+v", s)
	}
}

func TestMenuSetters(t *testing.T) {
	f := newFixture(t)

	if err := f.app.SelectDevice(1); err != nil {
		t.Fatalf("SelectDevice failed: %v", err)
	}
	if s := f.app.State(); s.SelectedDevice == nil || s.SelectedDevice.Index != 1 {
		t.Errorf("Expected device 1 selected, got %+v", s.SelectedDevice)
	}
	if err := f.app.SelectDevice(42); !errors.Is(err, capture.ErrUnknownDevice) {
		t.Errorf("Expected ErrUnknownDevice, got %v", err)
	}

	if err := f.app.RefreshDevices(); err != nil {
		t.Fatalf("RefreshDevices failed: %v", err)
	}
	if s := f.app.State(); s.SelectedDevice == nil || s.SelectedDevice.Index != 1 {
		t.Errorf("Expected the previous device to survive a refresh, got %+v", s.SelectedDevice)
	}

	if err := f.app.SetVoice("shimmer"); err != nil {
		t.Errorf("SetVoice failed: %v", err)
	}
	if err := f.app.SetVoice("robot"); !errors.Is(err, tts.ErrUnknownVoice) {
		t.Errorf("Expected ErrUnknownVoice, got %v", err)
	}
	if got := f.app.SetSpeed(1.45); got != 1.45 {
		t.Errorf("Expected speed 1.45, got %v", got)
	}
	f.app.SetEchoMode(true)

	s := f.app.State()
	if s.Voice != "shimmer" || s.Speed != 1.45 || !s.EchoMode {
		t.Errorf("Expected shimmer at 1.45 with echo on, got %s at %v echo=%v", s.Voice, s.Speed, s.EchoMode)
	}
}

func TestReadinessChecks(t *testing.T) {
	f := newFixture(t)
	f.app.synthConfigured = func() bool { return false }
	f.backend.configured = false
	checks := f.app.ReadinessChecks()
	ctx := context.Background()

	if ok, err := checks["audio_device"](ctx); !ok || err != nil {
		t.Errorf("Expected audio device ready, got %v %v", ok, err)
	}
	if ok, err := checks["synthesizer"](ctx); ok || !errors.Is(err, tts.ErrNotConfigured) {
		t.Errorf("Expected synthesizer not ready, got %v %v", ok, err)
	}
	if ok, err := checks["transcriber"](ctx); ok || !errors.Is(err, stt.ErrNotConfigured) {
		t.Errorf("Expected transcriber not ready, got %v %v", ok, err)
	}

	f.app.SetEchoMode(true)
	if ok, _ := checks["transcriber"](ctx); !ok {
		t.Error("Expected echo mode to satisfy the transcriber check")
	}
}

func TestReadinessChecks_OpenBreakerNotReady(t *testing.T) {
	f := newFixture(t)
	cb := resilience.NewCircuitBreaker("tts", 2, time.Minute)
	f.app.breaker = cb
	check := f.app.ReadinessChecks()["synthesizer"]

	cb.RecordResult(false)
	if ok, err := check(context.Background()); !ok || err != nil {
		t.Errorf("Expected synthesizer ready below the failure limit, got %v %v", ok, err)
	}

	cb.RecordResult(false)
	ok, err := check(context.Background())
	if ok || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Expected open breaker to fail readiness, got %v %v", ok, err)
	}
	if !strings.Contains(err.Error(), "2 of 2 requests failed") {
		t.Errorf("Expected failure counts in the error, got %q", err.Error())
	}
}
