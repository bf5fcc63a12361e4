package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/chunkrun"
	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/source/books"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var (
		index      int
		categories []string
	)
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Harvests one chunk of categories and streams records to stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer syncLogger(logger)
			chunk := harvest.Categories(categories...)
			if len(chunk) == 0 {
				return nil
			}

			browser, err := newBrowser(cfg)
			if err != nil {
				return err
			}
			defer browser.Close()
			sessions := books.NewSessionFactory(books.TabOpener(browser), logger.Named("books"))
			return runWorker(cmd.Context(), sessions, os.Stdout, index, chunk, logger.Named("worker"))
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "worker index")
	cmd.Flags().StringArrayVar(&categories, "category", nil, "category to harvest (repeatable)")
	return cmd
}

// runWorker harvests chunk and writes every record to out as a JSON line.
func runWorker(
	ctx context.Context,
	sessions chunkrun.SessionFactory,
	out io.Writer,
	index int,
	chunk []harvest.Category,
	logger *zap.Logger,
) error {
	stream := collect.NewStreamWriter(out)
	runner := chunkrun.New(sessions, stream, chunkrun.Config{}, logger)
	if err := runner.Run(ctx, index, chunk); err != nil {
		return err
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}
