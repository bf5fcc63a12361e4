package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// scriptedEntry fails the first failures[index] launches of each index and
// records every chunk it sees.
type scriptedEntry struct {
	mu       sync.Mutex
	failures map[int]int
	launches map[int]int
	chunks   map[int][][]harvest.Category
	done     []harvest.Category
}

func newScriptedEntry(failures map[int]int) *scriptedEntry {
	return &scriptedEntry{
		failures: failures,
		launches: map[int]int{},
		chunks:   map[int][][]harvest.Category{},
	}
}

func (s *scriptedEntry) run(_ context.Context, index int, chunk []harvest.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches[index]++
	s.chunks[index] = append(s.chunks[index], chunk)
	if s.failures[index] > 0 {
		s.failures[index]--
		return errors.New("crash")
	}
	s.done = append(s.done, chunk...)
	return nil
}

func testConfig(workers int) Config {
	return Config{Workers: workers, PollInterval: 2 * time.Millisecond, MaxRestarts: Unbounded}
}

func TestSupervisorRestartsCrashedWorkerWithSameChunk(t *testing.T) {
	t.Parallel()

	cats := harvest.Categories("a", "b", "c", "d", "e", "f")
	entry := newScriptedEntry(map[int]int{1: 2})
	sup, err := New(cats, NewGoroutineLauncher(entry.run), testConfig(3), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sup.Run(context.Background()))

	require.Equal(t, 1, entry.launches[0])
	require.Equal(t, 3, entry.launches[1])
	require.Equal(t, 1, entry.launches[2])
	for _, chunk := range entry.chunks[1] {
		require.Equal(t, harvest.Categories("c", "d"), chunk)
	}
	require.ElementsMatch(t, cats, entry.done)

	status := sup.Status()
	require.Len(t, status, 3)
	require.Equal(t, 2, status[1].Restarts)
	require.False(t, status[1].Alive)
	require.Equal(t, ExitOK, status[1].ExitCode)
	require.Equal(t, []string{"c", "d"}, status[1].Chunk)
}

func TestSupervisorEachCategoryCompletesOnce(t *testing.T) {
	t.Parallel()

	cats := harvest.Categories("A", "B", "C")
	entry := newScriptedEntry(map[int]int{1: 1})
	sup, err := New(cats, NewGoroutineLauncher(entry.run), testConfig(3), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sup.Run(context.Background()))
	require.ElementsMatch(t, cats, entry.done)
	require.Equal(t, 2, entry.launches[1])
}

func TestSupervisorRestartsPanickingWorker(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	entry := func(context.Context, int, []harvest.Category) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	}
	sup, err := New(harvest.Categories("a"), NewGoroutineLauncher(entry), testConfig(1), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, 2, calls)
	require.Equal(t, 1, sup.Status()[0].Restarts)
}

func TestSupervisorMaxRestartsGivesUp(t *testing.T) {
	t.Parallel()

	entry := newScriptedEntry(map[int]int{0: 100})
	cfg := testConfig(2)
	cfg.MaxRestarts = 2
	sup, err := New(harvest.Categories("a", "b"), NewGoroutineLauncher(entry.run), cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, 3, entry.launches[0])
	require.Equal(t, 1, entry.launches[1])

	status := sup.Status()
	require.True(t, status[0].GaveUp)
	require.Equal(t, ExitFailure, status[0].ExitCode)
	require.False(t, status[1].GaveUp)
}

func TestSupervisorNeverRestartsSuccessfulWorker(t *testing.T) {
	t.Parallel()

	entry := newScriptedEntry(nil)
	sup, err := New(harvest.Categories("a", "b", "c", "d"), NewGoroutineLauncher(entry.run), testConfig(2), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, map[int]int{0: 1, 1: 1}, entry.launches)
}

func TestSupervisorLaunchFailureIsFatal(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	inner := NewGoroutineLauncher(func(ctx context.Context, _ int, _ []harvest.Category) error {
		close(started)
		<-release
		return nil
	})
	launcher := LaunchFunc(func(ctx context.Context, index int, chunk []harvest.Category) (Unit, error) {
		if index == 1 {
			close(release)
			return nil, errors.New("no capacity")
		}
		return inner.Launch(ctx, index, chunk)
	})
	sup, err := New(harvest.Categories("a", "b"), launcher, testConfig(2), zap.NewNop())
	require.NoError(t, err)

	err = sup.Run(context.Background())
	require.ErrorContains(t, err, "launch worker 1: no capacity")
	<-started
}

func TestSupervisorStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	entry := func(ctx context.Context, _ int, _ []harvest.Category) error {
		<-ctx.Done()
		return ctx.Err()
	}
	sup, err := New(harvest.Categories("a", "b"), NewGoroutineLauncher(entry), testConfig(2), zap.NewNop())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	for _, st := range sup.Status() {
		require.Zero(t, st.Restarts)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	launcher := NewGoroutineLauncher(func(context.Context, int, []harvest.Category) error { return nil })
	_, err := New(nil, launcher, Config{Workers: 0}, nil)
	require.ErrorIs(t, err, ErrInvalidWorkers)

	_, err = New(nil, nil, Config{Workers: 1}, nil)
	require.Error(t, err)

	sup, err := New(nil, launcher, Config{Workers: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultPollInterval, sup.cfg.PollInterval)
}

func TestSupervisorCopiesCategories(t *testing.T) {
	t.Parallel()

	cats := harvest.Categories("a", "b")
	entry := newScriptedEntry(nil)
	sup, err := New(cats, NewGoroutineLauncher(entry.run), testConfig(1), zap.NewNop())
	require.NoError(t, err)
	cats[0] = "mutated"

	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, harvest.Categories("a", "b"), entry.done)
}

// dyingUnit reports alive on its first Alive call and has exited with
// ExitFailure from then on.
type dyingUnit struct {
	mu    sync.Mutex
	polls int
}

func (u *dyingUnit) Alive() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.polls++
	return u.polls == 1
}

func (u *dyingUnit) ExitCode() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.polls <= 1 {
		return ExitRunning
	}
	return ExitFailure
}

func (u *dyingUnit) Wait() error { return nil }

func TestSupervisorRestartsUnitThatDiesDuringPoll(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		launches int
	)
	launcher := LaunchFunc(func(_ context.Context, _ int, _ []harvest.Category) (Unit, error) {
		mu.Lock()
		defer mu.Unlock()
		launches++
		if launches == 1 {
			return &dyingUnit{}, nil
		}
		done := newExitState()
		done.finish(ExitOK, nil)
		return done, nil
	})
	sup, err := New(harvest.Categories("a"), launcher, testConfig(1), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sup.Run(context.Background()))

	mu.Lock()
	require.Equal(t, 2, launches)
	mu.Unlock()
	status := sup.Status()
	require.Len(t, status, 1)
	require.Equal(t, ExitOK, status[0].ExitCode)
	require.Equal(t, 1, status[0].Restarts)
}
