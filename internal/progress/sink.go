package progress

import (
	"log/slog"

	"github.com/dukerupert/courier/internal/worker"
)

// Multi fans each event out to every sink in order.
type Multi []worker.ProgressSink

func (m Multi) Publish(event worker.Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(event)
		}
	}
}

// LogSink writes terminal events to the logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Publish(event worker.Event) {
	if !event.Terminal() || l.Logger == nil {
		return
	}
	l.Logger.Debug("progress",
		"run_id", event.RunID,
		"status", event.Status,
		"email", event.Email,
		"sent", event.SentEmails,
		"total", event.TotalEmails,
		"eta", event.EstimatedTimeRemaining,
	)
}
