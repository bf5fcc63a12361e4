package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// CommandBuilder returns the child command that harvests one chunk. The child
// must write its records to stdout as JSON lines.
type CommandBuilder func(ctx context.Context, index int, chunk []harvest.Category) (*exec.Cmd, error)

// ProcessLauncher runs each unit as a child process and aggregates the records
// it streams on stdout into a shared Appender.
type ProcessLauncher struct {
	build   CommandBuilder
	records collect.Appender
	logger  *zap.Logger
}

// NewProcessLauncher creates a launcher that feeds decoded records into records.
func NewProcessLauncher(build CommandBuilder, records collect.Appender, logger *zap.Logger) *ProcessLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessLauncher{
		build:   build,
		records: records,
		logger:  logger,
	}
}

// Launch starts the child process. A failure to start is returned to the caller.
func (l *ProcessLauncher) Launch(ctx context.Context, index int, chunk []harvest.Category) (Unit, error) {
	cmd, err := l.build(ctx, index, chunk)
	if err != nil {
		return nil, fmt.Errorf("build worker command: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	logger := l.logger.With(zap.Int("index", index), zap.Int("pid", cmd.Process.Pid))
	logger.Debug("worker process started")

	u := newExitState()
	go func() {
		n, readErr := collect.ReadStream(stdout, l.records)
		if readErr != nil {
			logger.Warn("worker stream corrupted", zap.Int("records", n), zap.Error(readErr))
			_, _ = io.Copy(io.Discard, stdout)
		}
		waitErr := cmd.Wait()
		code := exitCode(cmd, waitErr)
		logger.Debug("worker process exited", zap.Int("exit_code", code), zap.Int("records", n))
		u.finish(code, waitErr)
	}()
	return u, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState == nil {
		return ExitFailure
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		return ExitKilled
	}
	var exitErr *exec.ExitError
	if code == 0 && waitErr != nil && !errors.As(waitErr, &exitErr) {
		return ExitFailure
	}
	return code
}
