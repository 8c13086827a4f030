package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/audio"
	"github.com/speakr/speakr/internal/observability"
)

var (
	// ErrNoDevice means no input device is selected
	ErrNoDevice = errors.New("no input device selected")
	// ErrUnknownDevice means a selection named a device missing from the list
	ErrUnknownDevice = errors.New("device not in the input device list")
	// ErrRecording means the operation is not allowed while capturing
	ErrRecording = errors.New("recording in progress")
)

// Alerter is the user-facing notification sink
type Alerter interface {
	Notify(title, message string)
}

// Config controls device policy and capture limits
type Config struct {
	HostAPI          string        // low-latency host API to enumerate
	PreferredDevices []string      // lowercase name substrings, in priority order
	SampleRates      []int         // negotiation priority list
	FallbackRate     int           // used when nothing negotiates
	FramesPerBuffer  int           // samples per driver read
	MaxDuration      time.Duration // hard cap per recording
}

// DefaultConfig mirrors the desktop defaults
func DefaultConfig() Config {
	return Config{
		PreferredDevices: []string{"samson", "usb sound card"},
		SampleRates:      []int{44100, 48000, 16000, 8000},
		FallbackRate:     16000,
		FramesPerBuffer:  1024,
		MaxDuration:      60 * time.Second,
	}
}

// run is one start..stop capture cycle. live is guarded by Session.feed.
type run struct {
	id     string
	live   bool
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
	logger zerolog.Logger
}

// Session owns microphone selection and one recording at a time
type Session struct {
	driver audio.Driver
	alerts Alerter
	cfg    Config
	logger zerolog.Logger

	buffer *audio.CaptureBuffer
	// feed serialises frame delivery against halting a run, so no
	// frame lands in the buffer once halt has returned
	feed sync.Mutex

	mu         sync.Mutex
	devices    []audio.Device
	device     *audio.Device
	sampleRate int
	rateOK     bool
	recording  bool
	faulted    bool
	current    *run
	recordRate int
	onError    func()
}

// NewSession creates a session and runs the device selection policy
func NewSession(driver audio.Driver, alerts Alerter, cfg Config, logger zerolog.Logger) *Session {
	def := DefaultConfig()
	if len(cfg.SampleRates) == 0 {
		cfg.SampleRates = def.SampleRates
	}
	if cfg.FallbackRate <= 0 {
		cfg.FallbackRate = def.FallbackRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = def.FramesPerBuffer
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}

	s := &Session{
		driver:     driver,
		alerts:     alerts,
		cfg:        cfg,
		logger:     logger,
		buffer:     audio.NewCaptureBuffer(),
		sampleRate: cfg.FallbackRate,
	}

	s.mu.Lock()
	s.selectDevice(nil)
	s.mu.Unlock()

	return s
}

// SetErrorHandler registers the callback invoked after a mid-recording fault
func (s *Session) SetErrorHandler(fn func()) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Devices returns the selectable device list
func (s *Session) Devices() []audio.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]audio.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// SelectedDevice returns the current device, if any
func (s *Session) SelectedDevice() (audio.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return audio.Device{}, false
	}
	return *s.device, true
}

// SampleRate returns the negotiated rate and whether negotiation succeeded
func (s *Session) SampleRate() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate, s.rateOK
}

// SelectDevice switches to a device from the list and renegotiates the rate
func (s *Session) SelectDevice(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := audio.FindByIndex(s.devices, index)
	if !ok {
		s.logger.Warn().Int("device_index", index).Msg("Device not found in input device list")
		return fmt.Errorf("%w: %d", ErrUnknownDevice, index)
	}
	if s.recording {
		return ErrRecording
	}

	s.device = &dev
	s.logger.Info().Int("device_index", dev.Index).Str("device", dev.Name).Msg("Selected input device")
	s.negotiateRate()
	return nil
}

// Refresh re-initialises the host and re-runs device selection,
// keeping the previous device if its index still exists
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording {
		return ErrRecording
	}

	s.logger.Info().Msg("Refreshing audio devices")
	if err := s.driver.Refresh(); err != nil {
		return fmt.Errorf("failed to refresh audio host: %w", err)
	}

	var previous *int
	if s.device != nil {
		idx := s.device.Index
		previous = &idx
	}
	s.selectDevice(previous)
	return nil
}

// selectDevice must be called with mu held
func (s *Session) selectDevice(previous *int) {
	s.devices = nil
	s.device = nil

	all, err := s.driver.Devices()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enumerate input devices")
	}
	s.devices = audio.FilterHostAPI(all, s.cfg.HostAPI)

	for _, d := range s.devices {
		s.logger.Debug().Int("device_index", d.Index).Str("device", d.Name).Str("host_api", d.HostAPI).Msg("Input device available")
	}

	if len(s.devices) == 0 {
		s.logger.Warn().Str("host_api", s.cfg.HostAPI).Msg("No input devices on host API, falling back to default device")
		def, err := s.driver.DefaultInput()
		if err != nil {
			s.logger.Error().Err(err).Msg("No default input device found")
			return
		}
		s.device = &def
		s.logger.Info().Int("device_index", def.Index).Str("device", def.Name).Msg("Using default input device")
		s.negotiateRate()
		return
	}

	if previous != nil {
		if dev, ok := audio.FindByIndex(s.devices, *previous); ok {
			s.device = &dev
			s.logger.Info().Int("device_index", dev.Index).Msg("Restored previous input device")
			s.negotiateRate()
			return
		}
		s.logger.Warn().Int("device_index", *previous).Msg("Previous input device no longer available")
	}

	dev, _ := audio.SelectPreferred(s.devices, s.cfg.PreferredDevices)
	s.device = &dev
	s.logger.Info().Int("device_index", dev.Index).Str("device", dev.Name).Msg("Using input device")
	s.negotiateRate()
}

// negotiateRate must be called with mu held and a device selected
func (s *Session) negotiateRate() {
	dev := *s.device

	for _, rate := range s.cfg.SampleRates {
		if err := s.driver.Supports(dev, rate); err == nil {
			s.sampleRate, s.rateOK = rate, true
			s.logger.Info().Int("sample_rate", rate).Int("device_index", dev.Index).Msg("Negotiated sample rate")
			return
		}
	}

	if def := int(dev.DefaultSampleRate); def > 0 {
		if err := s.driver.Supports(dev, def); err == nil {
			s.sampleRate, s.rateOK = def, true
			s.logger.Info().Int("sample_rate", def).Msg("Using device default sample rate")
			return
		}
	}

	s.sampleRate, s.rateOK = s.cfg.FallbackRate, false
	s.logger.Warn().
		Int("sample_rate", s.cfg.FallbackRate).
		Int("device_index", dev.Index).
		Msg("No supported sample rate found, falling back; capture may not work")
}

// Start begins asynchronous capture on the selected device.
// It returns false and alerts the user when no device is selected.
func (s *Session) Start() bool {
	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		s.logger.Warn().Msg("Cannot start recording: no input device selected")
		s.alerts.Notify("Recording Error", "No microphone selected. Please select a microphone from the menu.")
		return false
	}
	if s.current != nil {
		s.halt(s.current)
	}

	r := &run{
		id:   observability.NewCorrelationID(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	r.logger = observability.WithCorrelationID(s.logger, r.id)
	r.live = true

	dev := *s.device
	rate := s.sampleRate
	s.buffer.Clear()
	s.faulted = false
	s.recording = true
	s.current = r
	s.recordRate = rate
	s.mu.Unlock()

	observability.RecordRecordingStart()
	go s.captureLoop(r, dev, rate)
	return true
}

// Stop asks the capture loop to end; it does not wait
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.current
	s.recording = false
	s.mu.Unlock()

	if r != nil {
		s.halt(r)
	}
}

// Cancel stops capture, discards buffered audio and clears the fault flag
func (s *Session) Cancel() {
	s.Stop()
	s.buffer.Clear()

	s.mu.Lock()
	s.faulted = false
	s.mu.Unlock()
}

// IsRecording reports whether capture is running
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Faulted reports whether the last recording hit a driver fault
func (s *Session) Faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}

// BufferedSamples returns the number of captured samples
func (s *Session) BufferedSamples() int {
	return s.buffer.Samples()
}

// Wait blocks until the most recent capture loop has exited or timeout passes
func (s *Session) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()

	if r == nil {
		return true
	}
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WAV packages the captured audio as mono 16-bit WAV at the negotiated rate.
// ok is false when nothing was captured or encoding failed.
func (s *Session) WAV() ([]byte, bool) {
	if s.buffer.IsEmpty() {
		return nil, false
	}
	samples := s.buffer.Concat()

	s.mu.Lock()
	rate := s.recordRate
	s.mu.Unlock()

	level := audio.MeasureLevel(samples, s.cfg.FramesPerBuffer, audio.DefaultSpeechThreshold)
	if level.Silent() {
		s.logger.Warn().Float64("peak_rms", level.PeakRMS()).Msg("Recording appears silent; check the microphone")
	} else {
		s.logger.Debug().Float64("peak_rms", level.PeakRMS()).Float64("voiced_ratio", level.VoicedRatio()).Msg("Recording level")
	}

	data, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating WAV bytes")
		observability.RecordError("wav_encode", "capture")
		s.alerts.Notify("Audio Processing Error", fmt.Sprintf("Failed to process recorded audio: %v", err))
		return nil, false
	}
	return data, true
}

func (s *Session) captureLoop(r *run, dev audio.Device, rate int) {
	defer close(r.done)
	defer observability.RecordRecordingEnd()
	defer func() {
		if p := recover(); p != nil {
			s.fail(r, "Recording Error", fmt.Sprintf("Recording failed: %v", p), fmt.Errorf("panic: %v", p))
		}
	}()

	stream, err := s.driver.OpenInput(dev, rate, s.cfg.FramesPerBuffer, func(frames []int16) {
		s.appendFrames(r, frames)
	})
	if err != nil {
		s.fail(r, "Microphone Error", deviceFaultMessage(err), err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			r.logger.Debug().Err(err).Msg("Closing capture stream failed")
		}
	}()

	if err := stream.Start(); err != nil {
		s.fail(r, "Microphone Error", deviceFaultMessage(err), err)
		return
	}
	r.logger.Info().Int("sample_rate", rate).Str("device", dev.Name).Msg("Capture started")

	limit := time.NewTimer(s.cfg.MaxDuration)
	defer limit.Stop()

	select {
	case <-r.stop:
		r.logger.Debug().Int("frames", s.buffer.Frames()).Int("samples", s.buffer.Samples()).Msg("Capture stopped")
	case <-limit.C:
		r.logger.Warn().Dur("max_duration", s.cfg.MaxDuration).Msg("Maximum recording duration reached")
		s.stopRun(r)
	case err := <-stream.Faults():
		s.fail(r, "Microphone Error", deviceFaultMessage(err), err)
	}
}

// appendFrames runs on the driver's delivery goroutine
func (s *Session) appendFrames(r *run, frames []int16) {
	s.feed.Lock()
	defer s.feed.Unlock()

	if !r.live {
		return
	}
	s.buffer.Append(frames)
	observability.RecordCapturedSamples(len(frames))
}

// halt marks r dead and signals its capture loop. Frames delivered after
// halt returns are dropped.
func (s *Session) halt(r *run) {
	s.feed.Lock()
	r.live = false
	s.feed.Unlock()

	r.once.Do(func() { close(r.stop) })
}

// stopRun ends r as if Stop had been called, unless a newer run replaced it
func (s *Session) stopRun(r *run) {
	s.mu.Lock()
	if s.current == r {
		s.recording = false
	}
	s.mu.Unlock()
	s.halt(r)
}

// fail handles a fault inside a live run: it clears the recording and
// buffer, raises an alert and invokes the error handler. The live flag
// makes it fire at most once per run.
func (s *Session) fail(r *run, title, message string, cause error) {
	s.feed.Lock()
	wasLive := r.live
	r.live = false
	s.feed.Unlock()

	if !wasLive {
		r.logger.Debug().Err(cause).Msg("Capture fault after stop ignored")
		return
	}
	r.once.Do(func() { close(r.stop) })

	s.mu.Lock()
	current := s.current == r
	if current {
		s.recording = false
		s.faulted = true
	}
	handler := s.onError
	s.mu.Unlock()

	if !current {
		return
	}

	s.buffer.Clear()
	r.logger.Error().Err(cause).Msg("Error recording audio")
	observability.RecordError("capture_fault", "capture")
	s.alerts.Notify(title, message)

	if handler != nil {
		handler()
	}
}

func deviceFaultMessage(err error) string {
	return fmt.Sprintf("Audio device error: %v\nThe microphone may have been disconnected.", err)
}
