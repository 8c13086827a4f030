package audio

// LevelMeter tracks input loudness across the frames of one recording.
// A recording whose RMS never crosses the speech threshold is reported as
// silent so a dead or muted microphone shows up in the logs.
type LevelMeter struct {
	threshold   float64
	peakRMS     float64
	speechFrame int
	frames      int
}

// DefaultSpeechThreshold is the RMS above which a frame is counted as voiced
const DefaultSpeechThreshold = 500.0

// NewLevelMeter creates a meter with the given RMS speech threshold
func NewLevelMeter(threshold float64) *LevelMeter {
	if threshold <= 0 {
		threshold = DefaultSpeechThreshold
	}
	return &LevelMeter{threshold: threshold}
}

// Observe folds one frame into the meter and reports whether it was voiced
func (m *LevelMeter) Observe(samples []int16) bool {
	if len(samples) == 0 {
		return false
	}

	rms := CalculateRMS(samples)
	m.frames++
	if rms > m.peakRMS {
		m.peakRMS = rms
	}
	if rms > m.threshold {
		m.speechFrame++
		return true
	}
	return false
}

// PeakRMS returns the loudest frame seen
func (m *LevelMeter) PeakRMS() float64 {
	return m.peakRMS
}

// VoicedRatio returns the fraction of frames above the threshold
func (m *LevelMeter) VoicedRatio() float64 {
	if m.frames == 0 {
		return 0
	}
	return float64(m.speechFrame) / float64(m.frames)
}

// Silent reports whether no observed frame crossed the threshold
func (m *LevelMeter) Silent() bool {
	return m.speechFrame == 0
}

// MeasureLevel runs a meter over a whole recording split into frameSize chunks
func MeasureLevel(samples []int16, frameSize int, threshold float64) *LevelMeter {
	m := NewLevelMeter(threshold)
	if frameSize <= 0 {
		frameSize = len(samples)
	}
	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		m.Observe(samples[start:end])
	}
	return m
}
