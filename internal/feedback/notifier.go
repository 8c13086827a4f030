package feedback

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/observability"
)

// Notifier shows desktop notifications without blocking the caller
type Notifier struct {
	logger zerolog.Logger
	send   func(title, message, icon string) error
	icon   string
}

// NewNotifier creates a notifier backed by the desktop notification service
func NewNotifier(logger zerolog.Logger, icon string) *Notifier {
	return &Notifier{
		logger: logger,
		send: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
		icon: icon,
	}
}

// Notify dispatches a notification on its own goroutine. Failures are logged.
func (n *Notifier) Notify(title, message string) {
	n.logger.Info().Str("title", title).Str("message", message).Msg("User alert")

	go func() {
		defer func() {
			if p := recover(); p != nil {
				n.logger.Error().Interface("panic", p).Msg("Notification panicked")
			}
		}()

		if err := n.send(title, message, n.icon); err != nil {
			n.logger.Warn().Err(err).Str("title", title).Msg("Failed to show notification")
			observability.RecordError("notify", "feedback")
		}
	}()
}
