// Package worker implements the transform loop of the harvest pipeline.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
)

// DefaultPullTimeout is how long an idle worker waits for work before exiting.
const DefaultPullTimeout = time.Second

// TaskSource is the consumer side of the task queue.
type TaskSource interface {
	Pull(ctx context.Context, wait time.Duration) (harvest.WorkItem, error)
	MarkDone() error
}

// ResultSink is the producer side of the result queue.
type ResultSink interface {
	Push(ctx context.Context, record harvest.Record) error
}

// Config controls Worker behavior.
type Config struct {
	// PullTimeout bounds each wait for a work item; an empty pull ends the worker.
	PullTimeout time.Duration
}

// Stats summarizes what one worker did before exiting.
type Stats struct {
	Processed int
	Produced  int
	Absent    int
	Failed    int
}

// Worker pulls work items, transforms them and forwards the records.
type Worker struct {
	tasks     TaskSource
	results   ResultSink
	transform harvest.Transformer
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	tasks TaskSource,
	results ResultSink,
	transform harvest.Transformer,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = DefaultPullTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		tasks:     tasks,
		results:   results,
		transform: transform,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming items until a pull comes back empty or the context ends.
func (w *Worker) Run(ctx context.Context) Stats {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var stats Stats
	for {
		item, err := w.tasks.Pull(ctx, w.cfg.PullTimeout)
		if err != nil {
			w.logger.Debug("worker exiting", zap.Int("processed", stats.Processed), zap.Error(err))
			return stats
		}
		w.process(ctx, item, &stats)
	}
}

func (w *Worker) process(ctx context.Context, item harvest.WorkItem, stats *Stats) {
	stats.Processed++
	defer func() {
		if err := w.tasks.MarkDone(); err != nil {
			w.logger.Error("mark done failed", zap.String("ref", item.Ref), zap.Error(err))
		}
	}()

	record, err := w.safeTransform(ctx, item)
	switch {
	case err != nil:
		stats.Failed++
		metrics.ObserveTransform(metrics.StatusFailed)
		w.logger.Warn("transform failed",
			zap.String("category", item.Category.String()),
			zap.String("ref", item.Ref),
			zap.Error(err),
		)
		return
	case record == nil:
		stats.Absent++
		metrics.ObserveTransform(metrics.StatusAbsent)
		w.logger.Debug("transform produced no record",
			zap.String("category", item.Category.String()),
			zap.String("ref", item.Ref),
		)
		return
	}

	metrics.ObserveTransform(metrics.StatusOK)
	if err := w.results.Push(ctx, record); err != nil {
		stats.Failed++
		w.logger.Error("result push failed", zap.String("ref", item.Ref), zap.Error(err))
		return
	}
	stats.Produced++
}

func (w *Worker) safeTransform(ctx context.Context, item harvest.WorkItem) (record harvest.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveTransform(metrics.StatusPanic)
			record, err = nil, fmt.Errorf("transform panic: %v", r)
		}
	}()
	if w.transform == nil {
		return nil, fmt.Errorf("no transformer configured")
	}
	return w.transform.Transform(ctx, item)
}
