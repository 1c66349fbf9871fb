package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/marketsync/internal/bus"
	"github.com/rickgao/marketsync/internal/catalog"
	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/feed"
	"github.com/rickgao/marketsync/internal/filter"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/orchestrator"
	"github.com/rickgao/marketsync/internal/realtime"
	"github.com/rickgao/marketsync/internal/recency"
	"github.com/rickgao/marketsync/internal/router"
	"github.com/rickgao/marketsync/internal/version"
	"github.com/rickgao/marketsync/internal/writer"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and subscriber server",
	Long: `Connects to the push feed, reconciles every message into the store,
runs the recency gap detector and scheduled sweeps, and serves /health,
metrics and subscriber WebSocket connections.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("starting marketsync",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	rw := writer.NewRecencyWriter(writer.WriterConfig{
		BatchSize:     cfg.Store.RecencyBatchSize,
		FlushInterval: cfg.Store.RecencyFlushInterval,
	}, st, logger)
	if err := rw.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rw.Stop(stopCtx)
	}()

	// Upstream
	client := newAPIClient(cfg, logger)
	cache, err := loadWorlds(ctx, cfg, client)
	if err != nil {
		return err
	}
	logger.Info("world hierarchy loaded",
		"source", cfg.Hierarchy.Source,
		"regions", len(cache.Regions()),
		"worlds", len(cache.Worlds()),
	)

	regions, err := recency.Regions(cache, cfg.Recency.Regions)
	if err != nil {
		return err
	}

	b := bus.New(bus.Config{
		ListingsCapacity:  cfg.Bus.ListingsCapacity,
		SalesCapacity:     cfg.Bus.SalesCapacity,
		OwnershipCapacity: cfg.Bus.OwnershipCapacity,
		AlertsCapacity:    cfg.Bus.AlertsCapacity,
	}, bus.WithDropHook(metrics.BusDropHook))
	defer b.Close()

	orch := orchestrator.New(orchestrator.Config{
		Concurrency: cfg.Sync.Concurrency,
		LockShards:  cfg.Sync.LockShards,
		TaskTimeout: cfg.Sync.TaskTimeout,
		SaleWindow:  cfg.Store.SaleWindow,
	}, rw, b, logger)

	// Catalog (initial sync blocks)
	cat := catalog.New(catalog.Config{RefreshInterval: cfg.Catalog.RefreshInterval}, client, logger)
	logger.Info("loading marketable item catalog...")
	if err := cat.Start(ctx); err != nil {
		return fmt.Errorf("start catalog: %w", err)
	}

	// Push feed
	mgr := connection.NewManager(managerConfig(cfg), logger)
	for _, ch := range feed.ChannelsFor(cfg.Feed.Worlds) {
		if err := mgr.Subscribe(ch); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}
	rtr := router.NewRouter(mgr.Messages(), orch, logger)
	if err := rtr.Start(ctx); err != nil {
		return err
	}
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	det := recency.New(recency.Config{
		Interval:      cfg.Recency.Interval,
		Entries:       cfg.Recency.Entries,
		BatchSize:     cfg.Recency.BatchSize,
		Concurrency:   cfg.Sync.Concurrency,
		SweepPacing:   cfg.Recency.SweepPacing,
		SweepSchedule: cfg.Recency.SweepSchedule,
	}, regions, client, rw, orch, cat, logger)
	if err := det.Start(ctx); err != nil {
		return err
	}

	// HTTP
	rt := realtime.NewServer(realtime.DefaultConfig(), b, filter.NewEvaluator(cache), logger)
	httpServer := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: newHTTPHandler(cfg.Server.MetricsPath, cfg.Server.SubscribePath, rt, healthSources{
			Store:    st,
			Feed:     mgr,
			Catalog:  cat,
			Sync:     orch,
			Realtime: rt,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	logger.Info("marketsync running",
		"regions", len(regions),
		"catalog_items", cat.Len(),
		"subscribe_path", cfg.Server.SubscribePath,
	)

	// Wait for shutdown
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case runErr = <-httpErr:
		logger.Error("http server error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Outer surfaces first, then the feed, then in-flight work.
	httpServer.Shutdown(shutdownCtx)
	rt.Close()
	det.Stop(shutdownCtx)
	mgr.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)
	orch.Stop(shutdownCtx)
	cat.Stop(shutdownCtx)

	stats := orch.Stats()
	logger.Info("marketsync stopped",
		"tasks", stats.Tasks,
		"failures", stats.Failures,
		"dropped", stats.Dropped,
	)
	return runErr
}
