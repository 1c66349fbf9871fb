// Package config loads marketsync configuration from YAML.
package config

import "time"

// Config is the root configuration for a marketsync instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Feed      FeedConfig      `yaml:"feed"`
	Database  DBConfig        `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Sync      SyncConfig      `yaml:"sync"`
	Recency   RecencyConfig   `yaml:"recency"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Bus       BusConfig       `yaml:"bus"`
	Server    ServerConfig    `yaml:"server"`
	Hierarchy HierarchyConfig `yaml:"hierarchy"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds snapshot API settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RateLimit    float64       `yaml:"rate_limit"` // Requests per second; negative disables
	RateBurst    int           `yaml:"rate_burst"`
}

// FeedConfig holds push feed connection settings.
type FeedConfig struct {
	URL                string        `yaml:"url"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	Worlds             []int32       `yaml:"worlds"` // Optional per-world channel filter; empty subscribes to all worlds
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"`     // "postgres" or "memory"
	SaleWindow int    `yaml:"sale_window"` // Recent sales compared against for dedup

	RecencyBatchSize     int           `yaml:"recency_batch_size"`     // Buffered recency bumps written per flush
	RecencyFlushInterval time.Duration `yaml:"recency_flush_interval"` // Max time a recency bump stays buffered
}

// SyncConfig holds reconciliation concurrency settings.
type SyncConfig struct {
	Concurrency int           `yaml:"concurrency"`  // Max in-flight reconciliation tasks
	LockShards  int           `yaml:"lock_shards"`  // Per-key mutex shards
	TaskTimeout time.Duration `yaml:"task_timeout"` // Upper bound on one reconciliation
}

// RecencyConfig holds gap detector settings.
type RecencyConfig struct {
	Regions       []string      `yaml:"regions"`        // World or datacenter names; empty tracks every world
	Interval      time.Duration `yaml:"interval"`       // Gap check period
	Entries       int           `yaml:"entries"`        // Recently updated entries requested upstream
	BatchSize     int           `yaml:"batch_size"`     // Items per snapshot request
	SweepPacing   time.Duration `yaml:"sweep_pacing"`   // Delay between full sweep batches
	SweepSchedule string        `yaml:"sweep_schedule"` // Cron spec for scheduled full sweeps; empty disables
}

// CatalogConfig holds marketable item catalog settings.
type CatalogConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// BusConfig holds event bus ring capacities.
type BusConfig struct {
	ListingsCapacity  int `yaml:"listings_capacity"`
	SalesCapacity     int `yaml:"sales_capacity"`
	OwnershipCapacity int `yaml:"ownership_capacity"`
	AlertsCapacity    int `yaml:"alerts_capacity"`
}

// ServerConfig holds the HTTP listener settings for health, metrics and
// subscriber connections.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MetricsPath   string `yaml:"metrics_path"`
	SubscribePath string `yaml:"subscribe_path"`
}

// HierarchyConfig selects where the world hierarchy comes from.
type HierarchyConfig struct {
	Source  string         `yaml:"source"` // "api" or "static"
	Regions []RegionConfig `yaml:"regions"`
}

// RegionConfig is a statically configured region.
type RegionConfig struct {
	ID          int32              `yaml:"id"`
	Name        string             `yaml:"name"`
	Datacenters []DatacenterConfig `yaml:"datacenters"`
}

// DatacenterConfig is a statically configured datacenter.
type DatacenterConfig struct {
	ID     int32         `yaml:"id"`
	Name   string        `yaml:"name"`
	Worlds []WorldConfig `yaml:"worlds"`
}

// WorldConfig is a statically configured world.
type WorldConfig struct {
	ID   int32  `yaml:"id"`
	Name string `yaml:"name"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}
