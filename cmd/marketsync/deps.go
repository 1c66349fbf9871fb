package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/marketsync/internal/api"
	"github.com/rickgao/marketsync/internal/config"
	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/database"
	"github.com/rickgao/marketsync/internal/store"
	"github.com/rickgao/marketsync/internal/store/memory"
	"github.com/rickgao/marketsync/internal/store/postgres"
	"github.com/rickgao/marketsync/internal/worlds"
)

// openStore opens the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Warn("using in-memory store, nothing will survive a restart")
		return memory.New(), nil
	default:
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database, cfg.Instance.ID)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		logger.Info("database connected")
		return postgres.New(pool), nil
	}
}

func newAPIClient(cfg *config.Config, logger *slog.Logger) *api.Client {
	return api.NewClient(
		cfg.API.BaseURL,
		cfg.API.UserAgent,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
	)
}

// loadWorlds builds the world hierarchy from the configured source.
func loadWorlds(ctx context.Context, cfg *config.Config, client *api.Client) (*worlds.Cache, error) {
	var src worlds.Source = client
	if cfg.Hierarchy.Source == "static" {
		src = cfg.Hierarchy
	}
	return worlds.Load(ctx, src)
}

func managerConfig(cfg *config.Config) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.Client.URL = cfg.Feed.URL
	mc.Client.UserAgent = cfg.API.UserAgent
	mc.Client.PingInterval = cfg.Feed.PingInterval
	mc.Client.PingTimeout = cfg.Feed.PingTimeout
	mc.Client.WriteTimeout = cfg.Feed.WriteTimeout
	mc.Client.BufferSize = cfg.Feed.BufferSize
	mc.ReconnectBaseWait = cfg.Feed.ReconnectBaseDelay
	mc.ReconnectMaxWait = cfg.Feed.ReconnectMaxDelay
	return mc
}
