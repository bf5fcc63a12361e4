package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/api"
	"github.com/JakeFAU/catalog-harvester/internal/chunkrun"
	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/config"
	headlessfetcher "github.com/JakeFAU/catalog-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/id/uuid"
	"github.com/JakeFAU/catalog-harvester/internal/sink"
	"github.com/JakeFAU/catalog-harvester/internal/source/books"
	"github.com/JakeFAU/catalog-harvester/internal/supervisor"
)

func newSuperviseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Partitions categories across restartable workers and writes the output artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer syncLogger(logger)
			return runSupervise(cmd.Context(), cfg, opts.configPath, logger)
		},
	}
}

// lazyBrowser starts the headless browser on first use.
type lazyBrowser struct {
	cfg     config.Config
	browser *headlessfetcher.Fetcher
}

func (l *lazyBrowser) get() (*headlessfetcher.Fetcher, error) {
	if l.browser != nil {
		return l.browser, nil
	}
	browser, err := newBrowser(l.cfg)
	if err != nil {
		return nil, err
	}
	l.browser = browser
	return browser, nil
}

func (l *lazyBrowser) Close() {
	if l.browser != nil {
		l.browser.Close()
	}
}

func runSupervise(ctx context.Context, cfg config.Config, configPath string, logger *zap.Logger) error {
	if cfg.Harvest.Source != config.SourceBooks {
		return fmt.Errorf("supervise harvests the %q source, got %q", config.SourceBooks, cfg.Harvest.Source)
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	browser := &lazyBrowser{cfg: cfg}
	defer browser.Close()

	categories, err := superviseCategories(ctx, cfg, browser, logger)
	if err != nil {
		return err
	}
	records := collect.New()
	if len(categories) == 0 {
		logger.Warn("no categories to harvest", zap.String("url", cfg.Harvest.BaseURL))
		return writeOutput(ctx, cfg, records, logger)
	}

	launcher, err := newLauncher(cfg, configPath, records, browser, logger)
	if err != nil {
		return err
	}
	sup, err := supervisor.New(categories, launcher, supervisor.Config{
		Workers:      cfg.Supervisor.Workers,
		PollInterval: cfg.Supervisor.PollInterval,
		MaxRestarts:  cfg.Supervisor.MaxRestarts,
	}, logger.Named("supervisor"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	server := startStatusServer(cfg, api.Options{Workers: sup, Records: records}, logger.Named("api"), cancel)
	defer server.Stop()

	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervise: %w", err)
	}

	if err := replay(ctx, cfg, runID, records, logger); err != nil {
		return err
	}
	return writeOutput(ctx, cfg, records, logger)
}

// superviseCategories returns the configured categories, or the ones listed
// on the catalog home page.
func superviseCategories(ctx context.Context, cfg config.Config, browser *lazyBrowser, logger *zap.Logger) ([]harvest.Category, error) {
	if len(cfg.Harvest.Categories) > 0 {
		return harvest.Categories(cfg.Harvest.Categories...), nil
	}
	b, err := browser.get()
	if err != nil {
		return nil, err
	}
	return discoverCategories(ctx, books.TabOpener(b), cfg.Harvest.BaseURL, logger), nil
}

// discoverCategories reads the category links of the home page. Failures are
// logged and yield no categories.
func discoverCategories(ctx context.Context, open books.PageOpener, baseURL string, logger *zap.Logger) []harvest.Category {
	page, err := open(ctx)
	if err != nil {
		logger.Error("open discovery tab", zap.Error(err))
		return nil
	}
	defer func() { _ = page.Close() }()
	categories, err := books.DiscoverCategories(ctx, page, baseURL)
	if err != nil {
		logger.Error("category discovery failed", zap.String("url", baseURL), zap.Error(err))
		return nil
	}
	return categories
}

func newLauncher(
	cfg config.Config,
	configPath string,
	records *collect.Collection,
	browser *lazyBrowser,
	logger *zap.Logger,
) (supervisor.Launcher, error) {
	if cfg.Supervisor.Isolation == config.IsolationProcess {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		return supervisor.NewProcessLauncher(workerCommand(executable, configPath), records, logger.Named("launcher")), nil
	}
	b, err := browser.get()
	if err != nil {
		return nil, err
	}
	sessions := books.NewSessionFactory(books.TabOpener(b), logger.Named("books"))
	runner := chunkrun.New(sessions, records, chunkrun.Config{}, logger.Named("chunkrun"))
	return supervisor.NewGoroutineLauncher(runner.Run), nil
}

// workerCommand re-executes the binary as a worker. The child inherits the
// environment and stderr.
func workerCommand(executable, configPath string) supervisor.CommandBuilder {
	return func(ctx context.Context, index int, chunk []harvest.Category) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, executable, workerArgs(configPath, index, chunk)...)
		cmd.Stderr = os.Stderr
		return cmd, nil
	}
}

func workerArgs(configPath string, index int, chunk []harvest.Category) []string {
	args := []string{"worker", "--index", strconv.Itoa(index)}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	for _, category := range chunk {
		args = append(args, "--category", category.String())
	}
	return args
}

// replay commits the collected records to the configured external sinks.
// Failures are logged and counted.
func replay(ctx context.Context, cfg config.Config, runID string, records *collect.Collection, logger *zap.Logger) error {
	external, err := openSinks(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer external.Close()
	if len(external.sinks) == 0 {
		return nil
	}
	fanout := sink.NewFanout(external.sinks...)
	failed := 0
	for _, record := range records.Snapshot() {
		if err := fanout.Commit(ctx, record); err != nil {
			failed++
			logger.Warn("commit failed", zap.String("name", record.DisplayName()), zap.Error(err))
		}
	}
	logger.Info("records committed to sinks", zap.Int("sinks", fanout.Len()), zap.Int("failed", failed))
	return nil
}
