package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-sync
api:
  base_url: https://example.test/api/v2
  user_agent: marketsync-test
database:
  host: localhost
  port: 5432
  name: test_db
  user: testuser
  password: testpass
recency:
  regions: [Aether, Primal]
feed:
  worlds: [73, 79]
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-sync" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-sync")
	}
	if cfg.API.BaseURL != "https://example.test/api/v2" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://example.test/api/v2")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if len(cfg.Recency.Regions) != 2 || cfg.Recency.Regions[1] != "Primal" {
		t.Errorf("Recency.Regions = %v, want [Aether Primal]", cfg.Recency.Regions)
	}
	if len(cfg.Feed.Worlds) != 2 || cfg.Feed.Worlds[0] != 73 {
		t.Errorf("Feed.Worlds = %v, want [73 79]", cfg.Feed.Worlds)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  host: localhost
  name: test_db
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeTempFile(t, ".env", "MARKETSYNC_TEST_FROM_DOTENV=hello\n")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MARKETSYNC_TEST_FROM_DOTENV") })

	if got := os.Getenv("MARKETSYNC_TEST_FROM_DOTENV"); got != "hello" {
		t.Errorf("env = %q, want %q", got, "hello")
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadEnvFile(missing) = %v, want nil", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Errorf("LoadEnvFile(\"\") = %v, want nil", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("API.BaseURL = %q, want default %q", cfg.API.BaseURL, DefaultAPIBaseURL)
	}
	if cfg.API.RateLimit != DefaultAPIRateLimit || cfg.API.RateBurst != DefaultAPIRateBurst {
		t.Errorf("API rate = %v/%d, want default %v/%d", cfg.API.RateLimit, cfg.API.RateBurst, DefaultAPIRateLimit, DefaultAPIRateBurst)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Sync.Concurrency != DefaultSyncConcurrency {
		t.Errorf("Sync.Concurrency = %d, want default %d", cfg.Sync.Concurrency, DefaultSyncConcurrency)
	}
	if cfg.Recency.Interval != 5*time.Minute {
		t.Errorf("Recency.Interval = %v, want %v", cfg.Recency.Interval, 5*time.Minute)
	}
	if cfg.Recency.Entries != 200 {
		t.Errorf("Recency.Entries = %d, want 200", cfg.Recency.Entries)
	}
	if cfg.Recency.BatchSize != 100 {
		t.Errorf("Recency.BatchSize = %d, want 100", cfg.Recency.BatchSize)
	}
	if cfg.Bus.ListingsCapacity != DefaultListingsCapacity {
		t.Errorf("Bus.ListingsCapacity = %d, want default %d", cfg.Bus.ListingsCapacity, DefaultListingsCapacity)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "postgres")
	}
	if cfg.Store.RecencyBatchSize != DefaultRecencyBatchSize {
		t.Errorf("Store.RecencyBatchSize = %d, want default %d", cfg.Store.RecencyBatchSize, DefaultRecencyBatchSize)
	}
	if cfg.Store.RecencyFlushInterval != time.Second {
		t.Errorf("Store.RecencyFlushInterval = %v, want %v", cfg.Store.RecencyFlushInterval, time.Second)
	}
}

func TestLoadAndValidate_ExampleConfig(t *testing.T) {
	t.Setenv("MARKETSYNC_DB_HOST", "localhost")
	t.Setenv("MARKETSYNC_DB_USER", "marketsync")
	t.Setenv("MARKETSYNC_DB_PASSWORD", "secret")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "marketsync.example.yaml"))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost", cfg.Database.Host)
	}
	if cfg.Recency.SweepSchedule != "0 4 * * *" {
		t.Errorf("Recency.SweepSchedule = %q, want %q", cfg.Recency.SweepSchedule, "0 4 * * *")
	}
	if len(cfg.Recency.Regions) != 4 {
		t.Errorf("Recency.Regions = %v, want 4 entries", cfg.Recency.Regions)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "store:\n  backend: memory\n")

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "memory")
	}

	bad := writeTempFile(t, "bad.yaml", "recency:\n  batch_size: 500\nstore:\n  backend: memory\n")
	if _, err := LoadAndValidate(bad); err == nil || !strings.Contains(err.Error(), "recency.batch_size") {
		t.Errorf("LoadAndValidate(bad) error = %v, want batch_size error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{
			Store:    StoreConfig{Backend: "postgres"},
			Database: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database.host is required",
		},
		{
			name:    "missing database password",
			mutate:  func(c *Config) { c.Database.Password = "" },
			wantErr: "database.password is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *Config) { c.Database.MinConns = 20 },
			wantErr: "database.min_conns (20) cannot exceed max_conns (10)",
		},
		{
			name: "memory backend skips database",
			mutate: func(c *Config) {
				c.Store.Backend = "memory"
				c.Database = DBConfig{}
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "sqlite" },
			wantErr: `store.backend must be postgres or memory, got "sqlite"`,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Sync.Concurrency = -1 },
			wantErr: "sync.concurrency must be >= 1",
		},
		{
			name:    "batch over upstream limit",
			mutate:  func(c *Config) { c.Recency.BatchSize = 101 },
			wantErr: "recency.batch_size must be between 1 and 100, got 101",
		},
		{
			name:   "valid sweep schedule",
			mutate: func(c *Config) { c.Recency.SweepSchedule = "*/30 * * * *" },
		},
		{
			name:    "static hierarchy without regions",
			mutate:  func(c *Config) { c.Hierarchy.Source = "static" },
			wantErr: "hierarchy.regions is required when hierarchy.source is static",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: `logging.level must be debug, info, warn or error, got "loud"`,
		},
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestValidate_BadSweepSchedule(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Backend: "memory"}}
	cfg.applyDefaults()
	cfg.Recency.SweepSchedule = "not a cron spec"

	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "recency.sweep_schedule") {
		t.Errorf("Validate() error = %v, want sweep_schedule error", err)
	}
}

func TestHierarchyConfig_Dataset(t *testing.T) {
	h := HierarchyConfig{
		Source: "static",
		Regions: []RegionConfig{{
			ID:   1,
			Name: "North-America",
			Datacenters: []DatacenterConfig{{
				ID:     10,
				Name:   "Aether",
				Worlds: []WorldConfig{{ID: 73, Name: "Adamantoise"}, {ID: 79, Name: "Cactuar"}},
			}},
		}},
	}

	ds, err := h.Dataset(context.Background())
	if err != nil {
		t.Fatalf("Dataset failed: %v", err)
	}
	if len(ds.Regions) != 1 || len(ds.Datacenters) != 1 || len(ds.Worlds) != 2 {
		t.Fatalf("Dataset sizes = %d/%d/%d, want 1/1/2", len(ds.Regions), len(ds.Datacenters), len(ds.Worlds))
	}
	if ds.Datacenters[0].RegionID != 1 {
		t.Errorf("Datacenter.RegionID = %d, want 1", ds.Datacenters[0].RegionID)
	}
	if ds.Worlds[1].DatacenterID != 10 {
		t.Errorf("World.DatacenterID = %d, want 10", ds.Worlds[1].DatacenterID)
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
