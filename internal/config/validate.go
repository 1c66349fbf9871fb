package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// MaxSnapshotBatch is the upstream limit on item ids per snapshot request.
const MaxSnapshotBatch = 100

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}

	switch c.Store.Backend {
	case "postgres":
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend must be postgres or memory, got %q", c.Store.Backend)
	}
	if c.Store.SaleWindow < 1 {
		return errors.New("store.sale_window must be >= 1")
	}

	if c.Sync.Concurrency < 1 {
		return errors.New("sync.concurrency must be >= 1")
	}
	if c.Sync.LockShards < 1 {
		return errors.New("sync.lock_shards must be >= 1")
	}

	if c.Recency.Entries < 1 {
		return errors.New("recency.entries must be >= 1")
	}
	if c.Recency.BatchSize < 1 || c.Recency.BatchSize > MaxSnapshotBatch {
		return fmt.Errorf("recency.batch_size must be between 1 and %d, got %d", MaxSnapshotBatch, c.Recency.BatchSize)
	}
	if c.Recency.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Recency.SweepSchedule); err != nil {
			return fmt.Errorf("recency.sweep_schedule: %w", err)
		}
	}

	switch c.Hierarchy.Source {
	case "api":
	case "static":
		if len(c.Hierarchy.Regions) == 0 {
			return errors.New("hierarchy.regions is required when hierarchy.source is static")
		}
	default:
		return fmt.Errorf("hierarchy.source must be api or static, got %q", c.Hierarchy.Source)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
