package audio

import (
	"context"
	"strings"
)

// Device describes one input endpoint as reported by the audio host.
// Index is stable until the host is re-initialised.
type Device struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"-"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
}

// FrameHandler receives one buffer of captured mono samples.
// The slice is owned by the handler.
type FrameHandler func(frames []int16)

// InputStream is an open capture stream
type InputStream interface {
	// Start begins delivering frames to the handler
	Start() error
	// Faults yields at most one driver error, e.g. a disconnected device
	Faults() <-chan error
	// Close stops delivery and releases the device
	Close() error
}

// Driver abstracts the platform audio host used for capture
type Driver interface {
	Devices() ([]Device, error)
	DefaultInput() (Device, error)
	Supports(dev Device, sampleRate int) error
	OpenInput(dev Device, sampleRate, framesPerBuffer int, onFrames FrameHandler) (InputStream, error)
	Refresh() error
}

// Player renders an encoded audio payload on the default output device,
// blocking until playback finishes or ctx is cancelled
type Player interface {
	Play(ctx context.Context, payload []byte) error
}

// FilterHostAPI keeps input-capable devices served by the named host API
func FilterHostAPI(devices []Device, hostAPI string) []Device {
	var out []Device
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		if hostAPI != "" && !strings.EqualFold(d.HostAPI, hostAPI) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// SelectPreferred picks the first device whose name contains a preferred
// substring, trying substrings in order, then falls back to the first candidate
func SelectPreferred(candidates []Device, preferred []string) (Device, bool) {
	if len(candidates) == 0 {
		return Device{}, false
	}

	for _, want := range preferred {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		for _, d := range candidates {
			if strings.Contains(strings.ToLower(d.Name), want) {
				return d, true
			}
		}
	}

	return candidates[0], true
}

// FindByIndex looks a device up by its host index
func FindByIndex(devices []Device, index int) (Device, bool) {
	for _, d := range devices {
		if d.Index == index {
			return d, true
		}
	}
	return Device{}, false
}
