package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// Exit codes reported by units.
const (
	ExitRunning = -1
	ExitOK      = 0
	ExitFailure = 1
	ExitPanic   = 2
	// ExitKilled is reported for processes terminated by a signal.
	ExitKilled = 137
)

// Unit is one running execution of a worker entry point.
type Unit interface {
	// Alive reports whether the unit is still running.
	Alive() bool
	// ExitCode returns the exit status once the unit terminated, ExitRunning before.
	ExitCode() int
	// Wait blocks until the unit terminated and returns its failure, if any.
	Wait() error
}

// Launcher starts execution units for a chunk of categories.
type Launcher interface {
	Launch(ctx context.Context, index int, chunk []harvest.Category) (Unit, error)
}

// LaunchFunc adapts a function to Launcher.
type LaunchFunc func(ctx context.Context, index int, chunk []harvest.Category) (Unit, error)

// Launch calls f.
func (f LaunchFunc) Launch(ctx context.Context, index int, chunk []harvest.Category) (Unit, error) {
	return f(ctx, index, chunk)
}

// EntryFunc is the self-contained worker entry point run by a unit.
type EntryFunc func(ctx context.Context, index int, chunk []harvest.Category) error

// GoroutineLauncher runs each unit in its own goroutine. A returned error maps
// to ExitFailure and a recovered panic to ExitPanic.
type GoroutineLauncher struct {
	entry EntryFunc
}

// NewGoroutineLauncher creates a launcher for entry.
func NewGoroutineLauncher(entry EntryFunc) *GoroutineLauncher {
	return &GoroutineLauncher{entry: entry}
}

// Launch starts entry in a new goroutine.
func (l *GoroutineLauncher) Launch(ctx context.Context, index int, chunk []harvest.Category) (Unit, error) {
	if l.entry == nil {
		return nil, fmt.Errorf("no entry point configured")
	}
	u := newExitState()
	go func() {
		code, err := runEntry(ctx, l.entry, index, chunk)
		u.finish(code, err)
	}()
	return u, nil
}

func runEntry(ctx context.Context, entry EntryFunc, index int, chunk []harvest.Category) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, err = ExitPanic, fmt.Errorf("worker %d panic: %v", index, r)
		}
	}()
	if err := entry(ctx, index, chunk); err != nil {
		return ExitFailure, err
	}
	return ExitOK, nil
}

// exitState tracks termination of a unit. It is shared by both launchers.
type exitState struct {
	done chan struct{}
	once sync.Once
	mu   sync.RWMutex
	code int
	err  error
}

func newExitState() *exitState {
	return &exitState{done: make(chan struct{}), code: ExitRunning}
}

func (u *exitState) finish(code int, err error) {
	u.once.Do(func() {
		u.mu.Lock()
		u.code = code
		u.err = err
		u.mu.Unlock()
		close(u.done)
	})
}

func (u *exitState) Alive() bool {
	select {
	case <-u.done:
		return false
	default:
		return true
	}
}

func (u *exitState) ExitCode() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.code
}

func (u *exitState) Wait() error {
	<-u.done
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.err
}
