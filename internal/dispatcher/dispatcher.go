// Package dispatcher runs the intra-process harvest pipeline: discovery feeds
// the task queue, a pool of workers transforms items into records, and a single
// writer commits them to the sink.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
	"github.com/JakeFAU/catalog-harvester/internal/queue/memory"
	"github.com/JakeFAU/catalog-harvester/internal/worker"
	"github.com/JakeFAU/catalog-harvester/internal/writer"
)

// Config controls pool sizing and queue behavior.
type Config struct {
	Workers              int
	PullTimeout          time.Duration
	ResultBuffer         int
	DiscoveryConcurrency int
}

// Report aggregates the outcome of one pipeline run.
type Report struct {
	Categories        int
	Discovered        int
	DiscoveryFailures int
	Processed         int
	Produced          int
	Absent            int
	TransformFailures int
	Committed         int
	CommitFailures    int
}

// Dispatcher wires discovery, the worker pool and the sink writer together.
type Dispatcher struct {
	discover  harvest.Discoverer
	transform harvest.Transformer
	sink      harvest.Sink
	cfg       Config
	logger    *zap.Logger
}

type writerOutcome struct {
	stats writer.Stats
	err   error
}

// New creates a Dispatcher.
func New(
	discover harvest.Discoverer,
	transform harvest.Transformer,
	sink harvest.Sink,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ResultBuffer < 0 {
		cfg.ResultBuffer = 0
	}
	if cfg.DiscoveryConcurrency <= 0 {
		cfg.DiscoveryConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		discover:  discover,
		transform: transform,
		sink:      sink,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run harvests the categories and blocks until the writer has drained every
// record. Per-category, per-item and per-record failures are logged and
// reported in the Report; only context cancellation is returned as an error.
func (d *Dispatcher) Run(ctx context.Context, categories []harvest.Category) (Report, error) {
	report := Report{Categories: len(categories)}
	tasks := memory.NewTaskQueue()
	results := memory.NewResultQueue(d.cfg.ResultBuffer)

	d.logger.Info("starting pipeline",
		zap.Int("categories", len(categories)),
		zap.Int("workers", d.cfg.Workers),
	)

	writerDone := make(chan writerOutcome, 1)
	go func() {
		stats, err := writer.New(results, d.sink, d.logger.Named("writer")).Run(ctx)
		writerDone <- writerOutcome{stats: stats, err: err}
	}()

	report.Discovered, report.DiscoveryFailures = d.discoverAll(ctx, categories, tasks)
	tasks.Seal()

	var wg sync.WaitGroup
	workerStats := make(chan worker.Stats, d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		w := worker.New(
			tasks,
			results,
			d.transform,
			worker.Config{PullTimeout: d.cfg.PullTimeout},
			d.logger.Named("worker").With(zap.Int("index", i)),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerStats <- w.Run(ctx)
		}()
	}

	waitErr := tasks.Wait(ctx)
	results.Close()
	wg.Wait()
	close(workerStats)
	outcome := <-writerDone

	for stats := range workerStats {
		report.Processed += stats.Processed
		report.Produced += stats.Produced
		report.Absent += stats.Absent
		report.TransformFailures += stats.Failed
	}
	report.Committed = outcome.stats.Committed
	report.CommitFailures = outcome.stats.Failed

	if waitErr != nil {
		return report, fmt.Errorf("wait for tasks: %w", waitErr)
	}
	if outcome.err != nil {
		return report, fmt.Errorf("drain results: %w", outcome.err)
	}
	d.logger.Info("pipeline completed",
		zap.Int("discovered", report.Discovered),
		zap.Int("committed", report.Committed),
		zap.Int("discovery_failures", report.DiscoveryFailures),
		zap.Int("transform_failures", report.TransformFailures),
		zap.Int("commit_failures", report.CommitFailures),
	)
	return report, nil
}

func (d *Dispatcher) discoverAll(
	ctx context.Context,
	categories []harvest.Category,
	tasks *memory.TaskQueue,
) (int, int) {
	var discovered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.cfg.DiscoveryConcurrency)

	for _, category := range categories {
		g.Go(func() error {
			items, err := d.discoverOne(ctx, category)
			metrics.ObserveDiscovery(category.String(), len(items), err)
			if err != nil {
				failed.Add(1)
				d.logger.Error("discovery failed", zap.String("category", category.String()), zap.Error(err))
				return nil
			}
			d.logger.Info("discovered items", zap.String("category", category.String()), zap.Int("items", len(items)))
			for _, item := range items {
				if item.Category == "" {
					item.Category = category
				}
				if err := tasks.Push(ctx, item); err != nil {
					d.logger.Error("enqueue failed", zap.String("category", category.String()), zap.Error(err))
					return nil
				}
				discovered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(discovered.Load()), int(failed.Load())
}

func (d *Dispatcher) discoverOne(ctx context.Context, category harvest.Category) (items []harvest.WorkItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("discovery panic: %v", r)
		}
	}()
	if d.discover == nil {
		return nil, fmt.Errorf("no discoverer configured")
	}
	return d.discover.Discover(ctx, category)
}
