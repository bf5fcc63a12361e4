package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/config"
	"github.com/JakeFAU/catalog-harvester/internal/logging"
)

// rootOptions carries the persistent flags.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests product catalogs into records",
		Long: `harvester collects structured product records from catalog sites.
The pipeline command runs an in-process worker pool, the supervise command
partitions categories across restartable workers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file")

	cmd.AddCommand(
		newPipelineCmd(opts),
		newSuperviseCmd(opts),
		newWorkerCmd(opts),
	)
	return cmd
}

// setup loads configuration and builds the process logger. zap writes to
// stderr in both modes, which keeps a worker's stdout free for records.
func setup(opts *rootOptions) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	_ = logger.Sync()
}
