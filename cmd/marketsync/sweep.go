package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/marketsync/internal/bus"
	"github.com/rickgao/marketsync/internal/catalog"
	"github.com/rickgao/marketsync/internal/orchestrator"
	"github.com/rickgao/marketsync/internal/recency"
	"github.com/rickgao/marketsync/internal/writer"
)

var sweepRegions []string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-snapshot every marketable item once and exit",
	Long: `Runs a single full sweep: every marketable item on every configured
region is pulled from the snapshot API and reconciled into the store.
Use --region to limit the sweep to specific worlds or datacenters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sweep(cmd.Context())
	},
}

func init() {
	sweepCmd.Flags().StringSliceVar(&sweepRegions, "region", nil, "world or datacenter name to sweep (repeatable; default from config)")
	rootCmd.AddCommand(sweepCmd)
}

func sweep(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// No flush loop; Stop writes everything at the end.
	rw := writer.NewRecencyWriter(writer.WriterConfig{BatchSize: cfg.Store.RecencyBatchSize}, st, logger)

	client := newAPIClient(cfg, logger)
	cache, err := loadWorlds(ctx, cfg, client)
	if err != nil {
		return err
	}

	names := cfg.Recency.Regions
	if len(sweepRegions) > 0 {
		names = sweepRegions
	}
	regions, err := recency.Regions(cache, names)
	if err != nil {
		return err
	}

	cat := catalog.New(catalog.Config{}, client, logger)
	added, _, err := cat.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded", "items", added)

	// Nobody subscribes during a one-shot sweep; the bus only absorbs events.
	b := bus.New(bus.DefaultConfig())
	defer b.Close()

	orch := orchestrator.New(orchestrator.Config{
		Concurrency: cfg.Sync.Concurrency,
		LockShards:  cfg.Sync.LockShards,
		TaskTimeout: cfg.Sync.TaskTimeout,
		SaleWindow:  cfg.Store.SaleWindow,
	}, rw, b, logger)

	det := recency.New(recency.Config{
		BatchSize:   cfg.Recency.BatchSize,
		Concurrency: cfg.Sync.Concurrency,
		SweepPacing: cfg.Recency.SweepPacing,
	}, regions, client, rw, orch, cat, logger)

	start := time.Now()
	sweepErr := det.FullSweep(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	orch.Stop(stopCtx)
	if err := rw.Stop(stopCtx); err != nil && sweepErr == nil {
		sweepErr = fmt.Errorf("flush recency: %w", err)
	}

	stats := orch.Stats()
	logger.Info("sweep finished",
		"regions", len(regions),
		"tasks", stats.Tasks,
		"failures", stats.Failures,
		"duration", time.Since(start),
	)
	return sweepErr
}
