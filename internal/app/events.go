package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/observability"
)

// Status event types published to control clients
const (
	EventRecordingStarted   = "recording_started"
	EventRecordingStopped   = "recording_stopped"
	EventRecordingCancelled = "recording_cancelled"
	EventRecordingFailed    = "recording_failed"
	EventTranscribed        = "transcribed"
	EventSpeakingStarted    = "speaking_started"
	EventSpeakingFinished   = "speaking_finished"
)

// StatusEvent is one entry of the status stream
type StatusEvent struct {
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Time          time.Time `json:"time"`
}

// Subscription receives published events until it is closed
type Subscription struct {
	C    <-chan StatusEvent
	ch   chan StatusEvent
	hub  *Hub
	once sync.Once
}

// Close unsubscribes and closes C
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub fans status events out to subscribers. Publish never blocks:
// a subscriber whose buffer is full is dropped.
type Hub struct {
	buffer int
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewHub creates a hub with the given per-subscriber buffer
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		buffer: buffer,
		logger: logger,
		now:    time.Now,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan StatusEvent, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug().Int("subscribers", count).Msg("Status subscriber added")
	return sub
}

// Subscribers returns the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish stamps e and delivers it to every subscriber
func (h *Hub) Publish(e StatusEvent) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			delete(h.subs, sub)
			close(sub.ch)
			h.logger.Warn().Str("type", e.Type).Msg("Status subscriber too slow, dropped")
			observability.RecordError("slow_subscriber", "events")
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
