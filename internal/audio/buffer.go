package audio

import (
	"sync"
)

// CaptureBuffer collects the int16 mono frames of one recording in arrival order.
// The driver callback appends; the session concatenates once capture ends.
type CaptureBuffer struct {
	frames  [][]int16
	samples int
	mu      sync.Mutex
}

// NewCaptureBuffer creates an empty capture buffer
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{}
}

// Append stores a copy of frames. The caller may reuse its slice afterwards.
func (b *CaptureBuffer) Append(frames []int16) {
	if len(frames) == 0 {
		return
	}
	frame := make([]int16, len(frames))
	copy(frame, frames)

	b.mu.Lock()
	b.frames = append(b.frames, frame)
	b.samples += len(frame)
	b.mu.Unlock()
}

// Concat returns all buffered samples as one contiguous slice
func (b *CaptureBuffer) Concat() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.samples == 0 {
		return nil
	}
	out := make([]int16, 0, b.samples)
	for _, frame := range b.frames {
		out = append(out, frame...)
	}
	return out
}

// Frames returns the number of appended frame buffers
func (b *CaptureBuffer) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Samples returns the total number of buffered samples
func (b *CaptureBuffer) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// Clear drops all buffered audio
func (b *CaptureBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = nil
	b.samples = 0
}

// IsEmpty returns true if no audio is buffered
func (b *CaptureBuffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples == 0
}
