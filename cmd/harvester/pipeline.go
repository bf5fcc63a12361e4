package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/api"
	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/config"
	"github.com/JakeFAU/catalog-harvester/internal/dispatcher"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/catalog-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher/promote"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher/ratelimit"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/id/uuid"
	"github.com/JakeFAU/catalog-harvester/internal/sink"
	"github.com/JakeFAU/catalog-harvester/internal/source/vendr"
)

func newPipelineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Runs the in-process discovery, worker pool and sink writer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer syncLogger(logger)
			return runPipeline(cmd.Context(), cfg, logger)
		},
	}
}

func runPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Harvest.Source != config.SourceVendr {
		return fmt.Errorf("pipeline harvests the %q source, got %q", config.SourceVendr, cfg.Harvest.Source)
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	fetch, closeFetch, err := pipelineFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetch()
	source, err := vendr.New(fetch, cfg.Harvest.BaseURL, logger.Named("vendr"))
	if err != nil {
		return err
	}

	external, err := openSinks(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer external.Close()

	records := collect.New()
	fanout := sink.NewFanout(append([]harvest.Sink{records}, external.sinks...)...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	server := startStatusServer(cfg, api.Options{Records: records}, logger.Named("api"), cancel)
	defer server.Stop()

	d := dispatcher.New(source, source, fanout, dispatcher.Config{
		Workers:              cfg.Pipeline.Workers,
		PullTimeout:          cfg.Pipeline.PullTimeout,
		ResultBuffer:         cfg.Pipeline.ResultBuffer,
		DiscoveryConcurrency: cfg.Pipeline.DiscoveryConcurrency,
	}, logger.Named("dispatcher"))

	categories := cfg.Harvest.Categories
	if len(categories) == 0 {
		categories = vendr.DefaultCategories
	}
	report, err := d.Run(ctx, harvest.Categories(categories...))
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	logger.Info("pipeline finished",
		zap.Int("discovered", report.Discovered),
		zap.Int("discovery_failures", report.DiscoveryFailures),
		zap.Int("produced", report.Produced),
		zap.Int("absent", report.Absent),
		zap.Int("transform_failures", report.TransformFailures),
		zap.Int("committed", report.Committed),
		zap.Int("commit_failures", report.CommitFailures),
	)
	return writeOutput(ctx, cfg, records, logger)
}

// pipelineFetcher builds the paced static fetcher, promoting to the browser
// when browser.promote is set.
func pipelineFetcher(cfg config.Config, logger *zap.Logger) (fetcher.Fetcher, func(), error) {
	var fetch fetcher.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
		APIKey:        cfg.HTTP.APIKey,
	})
	closeFetch := func() {}
	if cfg.Browser.Promote {
		browser, err := newBrowser(cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFetch = browser.Close
		fetch = promote.New(fetch, browser, promote.NewHeuristic(cfg.Browser.PromoteThreshold), logger.Named("promote"))
	}
	if cfg.HTTP.RatePerSecond > 0 {
		fetch = ratelimit.Wrap(fetch, ratelimit.New(ratelimit.Config{
			RPS:   cfg.HTTP.RatePerSecond,
			Burst: cfg.HTTP.Burst,
		}))
	}
	return fetch, closeFetch, nil
}
