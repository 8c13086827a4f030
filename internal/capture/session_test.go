package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/audio"
)

type fakeAlerts struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeAlerts) Notify(title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
}

func (f *fakeAlerts) Titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titles...)
}

type fakeStream struct {
	onFrames audio.FrameHandler
	faults   chan error
	started  chan struct{}
	closed   chan struct{}
	once     sync.Once
}

func (s *fakeStream) Start() error {
	close(s.started)
	return nil
}

func (s *fakeStream) Faults() <-chan error { return s.faults }

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeDriver struct {
	mu        sync.Mutex
	devices   []audio.Device
	def       *audio.Device
	supported map[int]bool
	refreshes int
	openErr   error
	streams   []*fakeStream
	opened    chan *fakeStream
}

func newFakeDriver(devices ...audio.Device) *fakeDriver {
	return &fakeDriver{
		devices:   devices,
		supported: map[int]bool{44100: true, 48000: true, 16000: true, 8000: true},
		opened:    make(chan *fakeStream, 8),
	}
}

func (d *fakeDriver) Devices() ([]audio.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]audio.Device(nil), d.devices...), nil
}

func (d *fakeDriver) DefaultInput() (audio.Device, error) {
	if d.def == nil {
		return audio.Device{}, errors.New("no default")
	}
	return *d.def, nil
}

func (d *fakeDriver) Supports(dev audio.Device, rate int) error {
	if d.supported[rate] {
		return nil
	}
	return errors.New("invalid sample rate")
}

func (d *fakeDriver) OpenInput(dev audio.Device, rate, frames int, onFrames audio.FrameHandler) (audio.InputStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeStream{
		onFrames: onFrames,
		faults:   make(chan error, 1),
		started:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	d.opened <- s
	return s, nil
}

func (d *fakeDriver) Refresh() error {
	d.mu.Lock()
	d.refreshes++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) setDevices(devices ...audio.Device) {
	d.mu.Lock()
	d.devices = devices
	d.mu.Unlock()
}

func wasapi(index int, name string) audio.Device {
	return audio.Device{Index: index, Name: name, HostAPI: "Windows WASAPI", MaxInputChannels: 1, DefaultSampleRate: 48000}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HostAPI = "Windows WASAPI"
	cfg.FramesPerBuffer = 4
	return cfg
}

func newTestSession(t *testing.T, driver *fakeDriver) (*Session, *fakeAlerts) {
	t.Helper()
	alerts := &fakeAlerts{}
	return NewSession(driver, alerts, testConfig(), zerolog.Nop()), alerts
}

func awaitStream(t *testing.T, d *fakeDriver) *fakeStream {
	t.Helper()
	select {
	case s := <-d.opened:
		<-s.started
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for capture stream")
		return nil
	}
}

func TestNewSession_PrefersSamson(t *testing.T) {
	driver := newFakeDriver(
		wasapi(1, "Realtek Microphone"),
		wasapi(2, "USB Sound Card"),
		wasapi(5, "Samson Q2U"),
		audio.Device{Index: 9, Name: "Samson (MME)", HostAPI: "MME", MaxInputChannels: 1},
	)
	s, _ := newTestSession(t, driver)

	dev, ok := s.SelectedDevice()
	if !ok {
		t.Fatal("Expected a selected device")
	}
	if dev.Index != 5 {
		t.Errorf("Expected WASAPI Samson device (5), got %d", dev.Index)
	}
	if len(s.Devices()) != 3 {
		t.Errorf("Expected 3 WASAPI devices, got %d", len(s.Devices()))
	}
}

func TestNewSession_FallsBackToDefaultInput(t *testing.T) {
	driver := newFakeDriver(audio.Device{Index: 0, Name: "Mic (MME)", HostAPI: "MME", MaxInputChannels: 1})
	def := audio.Device{Index: 0, Name: "Mic (MME)", HostAPI: "MME", MaxInputChannels: 1}
	driver.def = &def

	s, _ := newTestSession(t, driver)

	dev, ok := s.SelectedDevice()
	if !ok || dev.Index != 0 {
		t.Errorf("Expected default input device, got %v (ok=%v)", dev, ok)
	}
	if len(s.Devices()) != 0 {
		t.Errorf("Expected empty selectable list, got %d", len(s.Devices()))
	}
}

func TestNegotiateRate(t *testing.T) {
	tests := []struct {
		name      string
		supported map[int]bool
		wantRate  int
		wantOK    bool
	}{
		{"first priority", map[int]bool{44100: true, 16000: true}, 44100, true},
		{"later priority", map[int]bool{16000: true}, 16000, true},
		{"device default", map[int]bool{22050: true}, 22050, true},
		{"hardcoded fallback", map[int]bool{}, 16000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := wasapi(1, "Mic")
			dev.DefaultSampleRate = 22050
			driver := newFakeDriver(dev)
			driver.supported = tt.supported

			s, _ := newTestSession(t, driver)
			rate, ok := s.SampleRate()
			if rate != tt.wantRate || ok != tt.wantOK {
				t.Errorf("Expected rate %d ok=%v, got %d ok=%v", tt.wantRate, tt.wantOK, rate, ok)
			}
		})
	}
}

func TestSelectDevice(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Realtek"), wasapi(2, "Headset"))
	s, _ := newTestSession(t, driver)

	if err := s.SelectDevice(2); err != nil {
		t.Fatalf("SelectDevice failed: %v", err)
	}
	if dev, _ := s.SelectedDevice(); dev.Index != 2 {
		t.Errorf("Expected device 2, got %d", dev.Index)
	}

	if err := s.SelectDevice(42); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Expected ErrUnknownDevice, got %v", err)
	}
	if dev, _ := s.SelectedDevice(); dev.Index != 2 {
		t.Error("Expected selection to be unchanged after invalid index")
	}
}

func TestRefresh_KeepsPreviousDevice(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Realtek"), wasapi(2, "Headset"))
	s, _ := newTestSession(t, driver)
	_ = s.SelectDevice(2)

	driver.setDevices(wasapi(1, "Realtek"), wasapi(2, "Headset"), wasapi(3, "Samson"))
	if err := s.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if dev, _ := s.SelectedDevice(); dev.Index != 2 {
		t.Errorf("Expected previous device 2 to be kept, got %d", dev.Index)
	}
	if driver.refreshes != 1 {
		t.Errorf("Expected driver refresh, got %d", driver.refreshes)
	}
}

func TestRefresh_ReselectsWhenDeviceVanished(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Realtek"), wasapi(2, "Headset"))
	s, _ := newTestSession(t, driver)
	_ = s.SelectDevice(2)

	driver.setDevices(wasapi(1, "Realtek"), wasapi(3, "Samson Go Mic"))
	if err := s.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if dev, _ := s.SelectedDevice(); dev.Index != 3 {
		t.Errorf("Expected preference policy to pick Samson (3), got %d", dev.Index)
	}
}

func TestStart_NoDevice(t *testing.T) {
	driver := newFakeDriver()
	s, alerts := newTestSession(t, driver)

	if s.Start() {
		t.Fatal("Expected Start to fail without a device")
	}
	if s.IsRecording() {
		t.Error("Expected not recording")
	}
	if titles := alerts.Titles(); len(titles) != 1 || titles[0] != "Recording Error" {
		t.Errorf("Expected one Recording Error alert, got %v", titles)
	}
}

func TestCapture_ProducesWAVAtNegotiatedRate(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	driver.supported = map[int]bool{48000: true}
	s, _ := newTestSession(t, driver)

	if !s.Start() {
		t.Fatal("Expected Start to succeed")
	}
	stream := awaitStream(t, driver)
	stream.onFrames([]int16{1, 2, 3, 4})
	stream.onFrames([]int16{5, 6, 7, 8})

	s.Stop()
	if !s.Wait(2 * time.Second) {
		t.Fatal("Capture loop did not exit")
	}

	// Late delivery after stop is dropped
	stream.onFrames([]int16{9, 9, 9, 9})

	data, ok := s.WAV()
	if !ok {
		t.Fatal("Expected WAV bytes")
	}
	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if pcm.SampleRate != 48000 {
		t.Errorf("Expected 48000 Hz, got %d", pcm.SampleRate)
	}
	if len(pcm.Samples) != 8 {
		t.Errorf("Expected 8 samples, got %d", len(pcm.Samples))
	}

	select {
	case <-stream.closed:
	default:
		t.Error("Expected stream to be closed after stop")
	}
}

func TestWAV_EmptyBuffer(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	s, _ := newTestSession(t, driver)

	if _, ok := s.WAV(); ok {
		t.Error("Expected no WAV for an empty buffer")
	}
}

func TestCancel_DiscardsAudio(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	s, _ := newTestSession(t, driver)

	s.Start()
	stream := awaitStream(t, driver)
	stream.onFrames([]int16{1, 2, 3, 4})

	s.Cancel()
	if s.IsRecording() {
		t.Error("Expected recording to stop")
	}
	if s.BufferedSamples() != 0 {
		t.Errorf("Expected empty buffer, got %d samples", s.BufferedSamples())
	}
	if s.Faulted() {
		t.Error("Expected fault flag cleared")
	}
}

func TestCancel_EmptiesBufferWhileFramesArrive(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	s, _ := newTestSession(t, driver)
	frame := make([]int16, 4096)

	for round := 0; round < 50; round++ {
		s.Start()
		stream := awaitStream(t, driver)

		quit := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-quit:
					return
				default:
					stream.onFrames(frame)
				}
			}
		}()

		s.Cancel()
		if n := s.BufferedSamples(); n != 0 {
			t.Fatalf("Round %d: expected empty buffer after cancel, got %d samples", round, n)
		}

		close(quit)
		wg.Wait()
		if n := s.BufferedSamples(); n != 0 {
			t.Fatalf("Round %d: expected late frames to be dropped, got %d samples", round, n)
		}
		if !s.Wait(2 * time.Second) {
			t.Fatal("Timed out waiting for capture loop to exit")
		}
	}
}

func TestStart_DropsFramesFromSupersededRun(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	s, _ := newTestSession(t, driver)

	s.Start()
	first := awaitStream(t, driver)

	s.Start()
	awaitStream(t, driver)

	first.onFrames([]int16{1, 2, 3, 4})
	if n := s.BufferedSamples(); n != 0 {
		t.Errorf("Expected frames from the replaced run to be dropped, got %d samples", n)
	}
	s.Cancel()
}

func TestCapture_FaultResetsOnce(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	s, alerts := newTestSession(t, driver)

	var mu sync.Mutex
	calls := 0
	s.SetErrorHandler(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	s.Start()
	stream := awaitStream(t, driver)
	stream.onFrames([]int16{1, 2, 3, 4})
	stream.faults <- errors.New("device unavailable")

	if !s.Wait(2 * time.Second) {
		t.Fatal("Capture loop did not exit after fault")
	}

	// A second stop after the fault must not re-trigger the handler
	s.Stop()

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("Expected error handler exactly once, got %d", got)
	}
	if s.IsRecording() {
		t.Error("Expected recording=false after fault")
	}
	if !s.Faulted() {
		t.Error("Expected fault flag set")
	}
	if s.BufferedSamples() != 0 {
		t.Errorf("Expected empty buffer after fault, got %d", s.BufferedSamples())
	}
	if titles := alerts.Titles(); len(titles) != 1 || titles[0] != "Microphone Error" {
		t.Errorf("Expected one Microphone Error alert, got %v", titles)
	}
}

func TestCapture_OpenFailureFaults(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	driver.openErr = errors.New("device busy")
	s, _ := newTestSession(t, driver)

	called := make(chan struct{}, 1)
	s.SetErrorHandler(func() { called <- struct{}{} })

	if !s.Start() {
		t.Fatal("Expected Start to accept the request")
	}

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected error handler after open failure")
	}
	if s.IsRecording() {
		t.Error("Expected recording=false after open failure")
	}
}

func TestCapture_MaxDuration(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	cfg := testConfig()
	cfg.MaxDuration = 150 * time.Millisecond
	s := NewSession(driver, &fakeAlerts{}, cfg, zerolog.Nop())

	s.Start()
	stream := awaitStream(t, driver)
	stream.onFrames([]int16{1, 2, 3, 4})

	if !s.Wait(2 * time.Second) {
		t.Fatal("Capture loop did not self-terminate")
	}
	if s.IsRecording() {
		t.Error("Expected recording=false after the duration cap")
	}
	if s.Faulted() {
		t.Error("Expected the duration cap not to count as a fault")
	}
	if _, ok := s.WAV(); !ok {
		t.Error("Expected captured audio to be kept after the cap")
	}
}

func TestRefresh_RejectedWhileRecording(t *testing.T) {
	driver := newFakeDriver(wasapi(1, "Mic"))
	s, _ := newTestSession(t, driver)

	s.Start()
	awaitStream(t, driver)
	defer s.Cancel()

	if err := s.Refresh(); !errors.Is(err, ErrRecording) {
		t.Errorf("Expected ErrRecording, got %v", err)
	}
}
