package hotkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	hook "github.com/robotn/gohook"
	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/observability"
	"github.com/speakr/speakr/internal/resilience"
)

// Source delivers global keyboard events
type Source interface {
	Start() <-chan hook.Event
	End()
}

// HookSource is the system-wide keyboard hook
type HookSource struct{}

// Start installs the hook
func (HookSource) Start() <-chan hook.Event {
	return hook.Start()
}

// End removes the hook and closes its channel
func (HookSource) End() {
	hook.End()
}

// Listener pumps hook events through a bounded queue into one consumer
type Listener struct {
	source    Source
	handle    func(RawEvent)
	queue     chan RawEvent
	reconnect *resilience.ReconnectConfig
	logger    zerolog.Logger
}

// NewListener creates a listener; handle runs on the consumer goroutine
func NewListener(source Source, handle func(RawEvent), queueSize int, reconnect *resilience.ReconnectConfig, logger zerolog.Logger) *Listener {
	if queueSize <= 0 {
		queueSize = 64
	}
	if reconnect == nil {
		reconnect = resilience.DefaultReconnectConfig()
	}
	return &Listener{
		source:    source,
		handle:    handle,
		queue:     make(chan RawEvent, queueSize),
		reconnect: reconnect,
		logger:    logger,
	}
}

// Run blocks until ctx is done. A hook that stops on its own is restarted
// with backoff; Run fails once restarts are exhausted.
func (l *Listener) Run(ctx context.Context) error {
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		l.consume(ctx)
	}()
	defer func() { <-consumerDone }()

	events := l.source.Start()
	if events == nil {
		return errors.New("keyboard hook did not start")
	}
	l.logger.Info().Int("queue_size", cap(l.queue)).Msg("Keyboard hook started")

	for {
		if !l.forward(ctx, events) {
			l.source.End()
			l.logger.Info().Msg("Keyboard hook stopped")
			return nil
		}

		l.logger.Warn().Msg("Keyboard hook closed unexpectedly, restarting")
		observability.RecordError("hook_closed", "hotkey")
		l.source.End()

		if !sleepCtx(ctx, l.reconnect.Backoff) {
			return nil
		}
		err := resilience.Reconnect(ctx, l.logger, func() error {
			ch := l.source.Start()
			if ch == nil {
				return errors.New("keyboard hook did not start")
			}
			events = ch
			return nil
		}, l.reconnect)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("keyboard hook unavailable: %w", err)
		}
	}
}

// forward returns false when ctx is done and true when events closes
func (l *Listener) forward(ctx context.Context, events <-chan hook.Event) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return true
			}
			raw, ok := toRawEvent(ev)
			if !ok {
				continue
			}
			select {
			case l.queue <- raw:
			default:
				observability.RecordDroppedHotkeyEvent()
				l.logger.Warn().Uint16("code", raw.Code).Bool("down", raw.Down).Msg("Hotkey queue full, event dropped")
			}
		}
	}
}

func (l *Listener) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.queue:
			l.handle(ev)
		}
	}
}

// toRawEvent keeps key presses and releases; typed-character events are ignored
func toRawEvent(ev hook.Event) (RawEvent, bool) {
	switch ev.Kind {
	case hook.KeyHold:
		return RawEvent{Code: ev.Keycode, Char: ev.Keychar, Down: true}, true
	case hook.KeyUp:
		return RawEvent{Code: ev.Keycode, Char: ev.Keychar, Down: false}, true
	default:
		return RawEvent{}, false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
