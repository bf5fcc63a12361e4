// Package supervisor partitions categories across execution units, polls
// their liveness and relaunches units that exit abnormally with the same
// chunk of work.
package supervisor

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
)

// DefaultPollInterval is the liveness polling period.
const DefaultPollInterval = time.Second

// Unbounded disables the restart cap.
const Unbounded = -1

// Config controls partitioning and restarts.
type Config struct {
	Workers      int
	PollInterval time.Duration
	// MaxRestarts caps relaunches per worker index; Unbounded (or any negative
	// value) restarts abnormal exits forever.
	MaxRestarts int
}

// Handle is the supervisor-owned record of one worker index. Its index and
// chunk never change; the unit is replaced on restart.
type Handle struct {
	Index  int
	Chunk  []harvest.Category
	unit   Unit
	starts int
	gaveUp bool
}

// Restarts reports how many times the unit of this handle was replaced.
func (h *Handle) Restarts() int {
	if h.starts == 0 {
		return 0
	}
	return h.starts - 1
}

// HandleStatus is a point-in-time view of a Handle.
type HandleStatus struct {
	Index    int      `json:"index"`
	Chunk    []string `json:"chunk"`
	Alive    bool     `json:"alive"`
	ExitCode int      `json:"exit_code"`
	Restarts int      `json:"restarts"`
	GaveUp   bool     `json:"gave_up"`
}

// Supervisor launches one unit per chunk and keeps them running.
type Supervisor struct {
	categories []harvest.Category
	launcher   Launcher
	cfg        Config
	logger     *zap.Logger

	mu      sync.RWMutex
	handles []*Handle
}

// New creates a Supervisor over a read-only copy of categories.
func New(categories []harvest.Category, launcher Launcher, cfg Config, logger *zap.Logger) (*Supervisor, error) {
	if cfg.Workers < 1 {
		return nil, ErrInvalidWorkers
	}
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		categories: slices.Clone(categories),
		launcher:   launcher,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run launches every unit, supervises them until none is alive, and joins
// them. It returns an error only when a unit cannot be launched or the
// context ends; units that crash are restarted rather than reported.
func (s *Supervisor) Run(ctx context.Context) error {
	chunks, err := Partition(s.categories, s.cfg.Workers)
	if err != nil {
		return err
	}

	s.logger.Info("starting supervised workers",
		zap.Int("workers", s.cfg.Workers),
		zap.Int("categories", len(s.categories)),
	)
	if err := s.start(ctx, chunks); err != nil {
		s.join()
		return err
	}

	monitorErr := s.monitor(ctx)
	s.join()
	if monitorErr != nil {
		return monitorErr
	}
	s.logger.Info("all supervised workers finished")
	return nil
}

// Status returns a snapshot of every handle, ordered by index.
func (s *Supervisor) Status() []HandleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HandleStatus, 0, len(s.handles))
	for _, h := range s.handles {
		chunk := make([]string, 0, len(h.Chunk))
		for _, c := range h.Chunk {
			chunk = append(chunk, c.String())
		}
		out = append(out, HandleStatus{
			Index:    h.Index,
			Chunk:    chunk,
			Alive:    h.unit.Alive(),
			ExitCode: h.unit.ExitCode(),
			Restarts: h.Restarts(),
			GaveUp:   h.gaveUp,
		})
	}
	return out
}

func (s *Supervisor) start(ctx context.Context, chunks [][]harvest.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, chunk := range chunks {
		unit, err := s.launcher.Launch(ctx, i, chunk)
		if err != nil {
			return fmt.Errorf("launch worker %d: %w", i, err)
		}
		metrics.IncActiveWorkers()
		s.handles = append(s.handles, &Handle{Index: i, Chunk: chunk, unit: unit, starts: 1})
	}
	return nil
}

func (s *Supervisor) monitor(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("supervisor stopping", zap.Error(err))
			return fmt.Errorf("supervisor stopped: %w", err)
		}
		// Liveness is sampled before the restart pass so a unit that dies
		// between the two is still seen by the pass.
		alive := s.anyAlive()
		relaunched, err := s.restartCrashed(ctx)
		if err != nil {
			return err
		}
		if !alive && relaunched == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// restartCrashed relaunches every handle whose unit terminated with a
// non-zero status and reports how many it relaunched. Live units are never
// touched.
func (s *Supervisor) restartCrashed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	relaunched := 0
	for _, h := range s.handles {
		if h.gaveUp || h.unit.Alive() {
			continue
		}
		code := h.unit.ExitCode()
		if code == ExitOK {
			continue
		}
		if err := ctx.Err(); err != nil {
			return relaunched, fmt.Errorf("supervisor stopped: %w", err)
		}
		logger := s.logger.With(
			zap.Int("index", h.Index),
			zap.Int("exit_code", code),
			zap.Int("restarts", h.Restarts()),
		)
		if s.cfg.MaxRestarts >= 0 && h.Restarts() >= s.cfg.MaxRestarts {
			h.gaveUp = true
			metrics.DecActiveWorkers()
			logger.Error("worker failed, restart limit reached")
			continue
		}

		chunk := ChunkFor(s.categories, s.cfg.Workers, h.Index)
		logger.Warn("worker failed, restarting", zap.Int("chunk_size", len(chunk)))
		unit, err := s.launcher.Launch(ctx, h.Index, chunk)
		if err != nil {
			return relaunched, fmt.Errorf("relaunch worker %d: %w", h.Index, err)
		}
		metrics.ObserveRestart(h.Index)
		h.unit = unit
		h.Chunk = chunk
		h.starts++
		relaunched++
	}
	return relaunched, nil
}

func (s *Supervisor) anyAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.handles {
		if h.unit.Alive() {
			return true
		}
	}
	return false
}

func (s *Supervisor) join() {
	s.mu.RLock()
	handles := slices.Clone(s.handles)
	s.mu.RUnlock()
	for _, h := range handles {
		if err := h.unit.Wait(); err != nil {
			s.logger.Debug("worker terminated with error", zap.Int("index", h.Index), zap.Error(err))
		}
		if !h.gaveUp {
			metrics.DecActiveWorkers()
		}
	}
}
