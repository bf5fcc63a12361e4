// Package writer implements the single serialized committer that drains the
// result queue into a sink.
package writer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
	"github.com/JakeFAU/catalog-harvester/internal/queue/memory"
)

// ResultSource is the consumer side of the result queue.
type ResultSource interface {
	Pull(ctx context.Context) (harvest.Record, error)
}

// Stats summarizes the commits made by a Writer run.
type Stats struct {
	Committed int
	Failed    int
}

// Writer commits records one at a time until it observes the sentinel.
type Writer struct {
	results ResultSource
	sink    harvest.Sink
	logger  *zap.Logger
}

// New constructs a Writer.
func New(results ResultSource, sink harvest.Sink, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		results: results,
		sink:    sink,
		logger:  logger,
	}
}

// Run drains the result source. It returns nil once the sentinel is observed
// and the context error if the context ends first. Commit failures are logged
// and never stop the loop.
func (w *Writer) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	for {
		record, err := w.results.Pull(ctx)
		if errors.Is(err, memory.ErrEndOfStream) {
			w.logger.Debug("writer observed end of stream",
				zap.Int("committed", stats.Committed),
				zap.Int("failed", stats.Failed),
			)
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if err := w.sink.Commit(ctx, record); err != nil {
			stats.Failed++
			metrics.ObserveCommit(metrics.StatusFailed)
			w.logger.Error("commit failed",
				zap.String("category", record.Category().String()),
				zap.String("name", record.DisplayName()),
				zap.Error(err),
			)
			continue
		}
		stats.Committed++
		metrics.ObserveCommit(metrics.StatusOK)
	}
}
