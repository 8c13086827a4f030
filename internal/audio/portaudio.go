package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const (
	outputFramesPerBuffer = 1024
	// Fallback output rate when a device refuses a payload's native rate
	fallbackOutputRate = 48000
	closeWait          = 500 * time.Millisecond
)

// PortAudio implements Driver and Player on top of the PortAudio host library
type PortAudio struct {
	logger zerolog.Logger

	mu          sync.Mutex
	initialized bool
	openStreams int
}

// NewPortAudio creates an uninitialised host; call Init before use
func NewPortAudio(logger zerolog.Logger) *PortAudio {
	return &PortAudio{logger: logger}
}

// Init initialises the PortAudio library
func (p *PortAudio) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init failed: %w", err)
	}
	p.initialized = true
	return nil
}

// Close terminates the PortAudio library
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

// Refresh re-initialises the host so newly attached devices are enumerated
func (p *PortAudio) Refresh() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.openStreams > 0 {
		return fmt.Errorf("audio host busy: %d open streams", p.openStreams)
	}
	if p.initialized {
		if err := portaudio.Terminate(); err != nil {
			p.logger.Warn().Err(err).Msg("PortAudio terminate during refresh failed")
		}
		p.initialized = false
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio reinit failed: %w", err)
	}
	p.initialized = true
	return nil
}

// Devices lists input-capable devices across all host APIs
func (p *PortAudio) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var out []Device
	for _, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, toDevice(info))
	}
	return out, nil
}

// DefaultInput returns the system default input device
func (p *PortAudio) DefaultInput() (Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("no default input device: %w", err)
	}
	return toDevice(info), nil
}

// Supports checks whether dev can capture mono int16 at sampleRate
func (p *PortAudio) Supports(dev Device, sampleRate int) error {
	params, err := p.inputParams(dev, sampleRate, 0)
	if err != nil {
		return err
	}
	return portaudio.IsFormatSupported(params, make([]int16, 1))
}

// OpenInput opens a blocking capture stream whose reads are pumped to onFrames
func (p *PortAudio) OpenInput(dev Device, sampleRate, framesPerBuffer int, onFrames FrameHandler) (InputStream, error) {
	params, err := p.inputParams(dev, sampleRate, framesPerBuffer)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open stream failed: %w", err)
	}
	p.trackStream(1)

	return &paInputStream{
		owner:    p,
		stream:   stream,
		buf:      buf,
		onFrames: onFrames,
		faults:   make(chan error, 1),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
		logger:   p.logger,
	}, nil
}

func (p *PortAudio) inputParams(dev Device, sampleRate, framesPerBuffer int) (portaudio.StreamParameters, error) {
	info, err := lookupDevice(dev.Index)
	if err != nil {
		return portaudio.StreamParameters{}, err
	}
	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, nil
}

func (p *PortAudio) trackStream(delta int) {
	p.mu.Lock()
	p.openStreams += delta
	p.mu.Unlock()
}

// Play decodes payload and writes it to the default output device
func (p *PortAudio) Play(ctx context.Context, payload []byte) error {
	pcm, err := DecodeWAV(payload)
	if err != nil {
		return err
	}
	if len(pcm.Samples) == 0 {
		return nil
	}

	out := make([]int16, outputFramesPerBuffer*pcm.Channels)
	stream, err := portaudio.OpenDefaultStream(0, pcm.Channels, float64(pcm.SampleRate), outputFramesPerBuffer, out)
	if err != nil {
		// Some hosts only open at their mixer rate; convert to mono at a common rate and retry
		p.logger.Debug().Err(err).Int("sample_rate", pcm.SampleRate).Msg("Output rate refused, resampling")
		pcm = PCM{
			Samples:    Resample(Downmix(pcm.Samples, pcm.Channels), pcm.SampleRate, fallbackOutputRate),
			SampleRate: fallbackOutputRate,
			Channels:   1,
		}
		out = make([]int16, outputFramesPerBuffer)
		stream, err = portaudio.OpenDefaultStream(0, 1, fallbackOutputRate, outputFramesPerBuffer, out)
		if err != nil {
			return fmt.Errorf("open output stream failed: %w", err)
		}
	}
	p.trackStream(1)
	defer func() {
		_ = stream.Close()
		p.trackStream(-1)
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream failed: %w", err)
	}

	for off := 0; off < len(pcm.Samples); off += len(out) {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}

		n := copy(out, pcm.Samples[off:])
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			_ = stream.Abort()
			return fmt.Errorf("output write failed: %w", err)
		}
	}

	return stream.Stop()
}

type paInputStream struct {
	owner    *PortAudio
	stream   *portaudio.Stream
	buf      []int16
	onFrames FrameHandler
	faults   chan error
	stop     chan struct{}
	exited   chan struct{}
	logger   zerolog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
}

func (s *paInputStream) Start() error {
	var err error
	s.startOnce.Do(func() {
		if err = s.stream.Start(); err != nil {
			err = fmt.Errorf("start stream failed: %w", err)
			close(s.exited)
			return
		}
		s.started = true
		go s.readLoop()
	})
	return err
}

func (s *paInputStream) readLoop() {
	defer close(s.exited)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.logger.Debug().Msg("Input overflowed, frames dropped")
				continue
			}
			select {
			case <-s.stop:
			case s.faults <- err:
			default:
			}
			return
		}

		frames := make([]int16, len(s.buf))
		copy(frames, s.buf)
		s.onFrames(frames)
	}
}

func (s *paInputStream) Faults() <-chan error {
	return s.faults
}

func (s *paInputStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)

		// A blocked Read returns within one buffer; a dead device may never return
		select {
		case <-s.exited:
		case <-time.After(closeWait):
			s.logger.Warn().Msg("Capture reader did not exit, aborting stream")
		}

		if s.started {
			if stopErr := s.stream.Stop(); stopErr != nil {
				_ = s.stream.Abort()
			}
		}
		err = s.stream.Close()
		s.owner.trackStream(-1)
	})
	return err
}

func lookupDevice(index int) (*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.Index == index {
			return info, nil
		}
	}
	return nil, fmt.Errorf("device %d not found", index)
}

func toDevice(info *portaudio.DeviceInfo) Device {
	d := Device{
		Index:             info.Index,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
	}
	if info.HostApi != nil {
		d.HostAPI = info.HostApi.Name
	}
	return d
}
