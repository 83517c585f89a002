package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes events to the log instead of delivering them.
// Used for dry runs and as the default when no webhook is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	logEvent := n.logger.Warn()
	if event.Fatal {
		logEvent = n.logger.Error().Bool("fatal", true)
	}
	logEvent.
		Str("service", event.Service).
		Str("stage", event.Stage).
		Str("error", event.Error).
		Msg("pipeline failure")
	return nil
}
