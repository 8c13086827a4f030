package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recording outcomes
const (
	RecordingTranscribed = "transcribed"
	RecordingTooShort    = "too_short"
	RecordingCancelled   = "cancelled"
	RecordingFailed      = "failed"
)

var (
	// Recording metrics
	activeRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speakr_active_recordings",
		Help: "Number of recordings currently capturing audio",
	})

	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speakr_recordings_total",
		Help: "Total number of recordings by outcome",
	}, []string{"outcome"})

	recordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speakr_recording_duration_seconds",
		Help:    "Duration of recordings in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// STT metrics
	transcriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speakr_transcriptions_total",
		Help: "Total number of transcription requests",
	}, []string{"provider", "status"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speakr_transcription_latency_seconds",
		Help:    "Transcription latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// TTS metrics
	synthesisChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speakr_synthesis_chunks_total",
		Help: "Total number of synthesized chunks by outcome",
	}, []string{"outcome"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speakr_synthesis_latency_seconds",
		Help:    "Per-chunk synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speakr_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speakr_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speakr_circuit_breaker_trips_total",
		Help: "Total times a circuit breaker opened",
	}, []string{"service"})

	// Keyboard hook metrics
	hotkeyEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speakr_hotkey_events_dropped_total",
		Help: "Keyboard events dropped because the event queue was full",
	})

	// Audio metrics
	capturedSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speakr_captured_samples_total",
		Help: "Total microphone samples appended to capture buffers",
	})
)

// RecordRecordingStart marks a capture as running
func RecordRecordingStart() {
	activeRecordings.Inc()
}

// RecordRecordingEnd marks a capture as finished
func RecordRecordingEnd() {
	activeRecordings.Dec()
}

// RecordRecordingOutcome records how a chord-driven recording ended
func RecordRecordingOutcome(outcome string, duration time.Duration) {
	recordingsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		recordingDuration.Observe(duration.Seconds())
	}
}

// RecordTranscription records one transcription request
func RecordTranscription(provider string, started time.Time, success bool) {
	transcriptionLatency.Observe(time.Since(started).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	transcriptionsTotal.WithLabelValues(provider, status).Inc()
}

// RecordSynthesisChunk records the outcome of one chunk synthesis
func RecordSynthesisChunk(outcome string, latency time.Duration) {
	synthesisChunks.WithLabelValues(outcome).Inc()
	synthesisLatency.Observe(latency.Seconds())
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordDroppedHotkeyEvent counts a keyboard event lost to a full queue
func RecordDroppedHotkeyEvent() {
	hotkeyEventsDropped.Inc()
}

// RecordCapturedSamples counts samples appended to a capture buffer
func RecordCapturedSamples(n int) {
	capturedSamples.Add(float64(n))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures counts a breaker opening after repeated failures
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
