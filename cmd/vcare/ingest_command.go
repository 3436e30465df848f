package main

import (
	"fmt"
	"os"
	"time"

	"github.com/First008/vcare/internal/factory"
	"github.com/First008/vcare/internal/vectorstore"
	"github.com/spf13/cobra"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest <catalog.csv>",
		Short: "Load a nutrient catalog CSV into the configured nutrient store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd)
			runCtx := cmd.Context()

			store, err := factory.NewNutrientStore(runCtx, cfg.Nutrients, logger)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("no nutrient store configured (set nutrients.backend)")
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer f.Close()

			ingestCfg := vectorstore.DefaultIngestConfig()
			if workers > 0 {
				ingestCfg.MaxWorkers = workers
			}
			if batchSize > 0 {
				ingestCfg.BatchSize = batchSize
			}

			start := time.Now()
			stats, err := vectorstore.NewIngester(store, ingestCfg, logger).IngestCSV(runCtx, f, args[0])
			if err != nil {
				return err
			}
			ingested, skipped, failed := stats.Snapshot()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %d items (%d skipped, %d failed) in %s\n",
				ingested, skipped, failed, time.Since(start).Round(time.Millisecond))

			if storeStats, err := store.GetStats(runCtx); err == nil {
				fmt.Fprintf(out, "Store %s (%s) now holds %d items\n",
					storeStats.Collection, storeStats.Backend, storeStats.Items)
			} else {
				logger.Warn().Err(err).Msg("Failed to get store stats")
			}

			if failed > 0 {
				return fmt.Errorf("%d items failed to ingest", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent batch writers (default from CPU count)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Items per store write")
	return cmd
}
