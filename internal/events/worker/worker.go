// Package worker drains the publisher inbox into a delivery sink in the
// background, keeping broker latency out of the request path.
package worker

import (
	"context"
	"log/slog"

	"nymreg/internal/events"
)

type Worker struct {
	sink   events.Sink
	inbox  <-chan events.Event
	logger *slog.Logger
}

func New(sink events.Sink, inbox <-chan events.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run delivers events until ctx is cancelled. Delivery failures are logged and
// skipped; the persisted store copy remains the durable record.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-w.inbox:
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "event delivery failed",
					"type", event.Type,
					"account", event.Account,
					"error", err,
				)
			}
		}
	}
}
