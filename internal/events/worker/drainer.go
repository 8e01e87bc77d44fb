package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nymreg/internal/events"
)

const (
	// DefaultPollInterval is how often the drainer checks for undelivered rows.
	DefaultPollInterval = time.Second
	// DefaultBatchSize bounds one delivery pass.
	DefaultBatchSize = 100
)

// Outbox is the slice of the postgres event store the drainer needs: list
// rows that never reached the sink and stamp the ones that did.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]events.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Drainer polls the outbox and delivers pending rows to the sink. Unlike the
// inbox Worker it survives crashes: a row stays unpublished until the sink
// accepted it, so delivery resumes on the next pass or the next process.
type Drainer struct {
	outbox   Outbox
	sink     events.Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewDrainer(outbox Outbox, sink events.Sink, logger *slog.Logger) *Drainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drainer{
		outbox:   outbox,
		sink:     sink,
		logger:   logger,
		interval: DefaultPollInterval,
		batch:    DefaultBatchSize,
	}
}

// Run polls until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

// drainOnce delivers pending rows in batches until the outbox is empty or a
// delivery fails. Rows are delivered oldest first; on a sink failure the
// already-delivered prefix is still marked so only the failed row and its
// successors are retried.
func (d *Drainer) drainOnce(ctx context.Context) {
	for {
		rows, err := d.outbox.ListUnpublished(ctx, d.batch)
		if err != nil {
			d.logger.ErrorContext(ctx, "outbox list failed", "error", err)
			return
		}
		if len(rows) == 0 {
			return
		}

		delivered := make([]uuid.UUID, 0, len(rows))
		var sinkErr error
		for _, row := range rows {
			if sinkErr = d.sink.Publish(ctx, row.Event); sinkErr != nil {
				d.logger.ErrorContext(ctx, "outbox delivery failed",
					"type", row.Event.Type,
					"account", row.Event.Account,
					"error", sinkErr,
				)
				break
			}
			delivered = append(delivered, row.ID)
		}
		if err := d.outbox.MarkPublished(ctx, delivered); err != nil {
			d.logger.ErrorContext(ctx, "outbox mark failed", "error", err)
			return
		}
		if sinkErr != nil || len(rows) < d.batch {
			return
		}
	}
}
