package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID         = "marketsync"
	DefaultAPIBaseURL         = "https://universalis.app/api/v2"
	DefaultUserAgent          = "marketsync"
	DefaultAPITimeout         = 10 * time.Second
	DefaultMaxRetries         = 3
	DefaultRetryBackoff       = 1 * time.Second
	DefaultAPIRateLimit       = 20
	DefaultAPIRateBurst       = 40
	DefaultFeedURL            = "wss://universalis.app/api/ws"
	DefaultPingInterval       = 60 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultFeedBufferSize     = 1000
	DefaultReconnectBaseDelay = 2 * time.Second
	DefaultReconnectMaxDelay  = 5 * time.Minute
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultStoreBackend       = "postgres"
	DefaultSaleWindow         = 50
	DefaultRecencyBatchSize   = 500
	DefaultRecencyFlush       = 1 * time.Second
	DefaultSyncConcurrency    = 50
	DefaultLockShards         = 256
	DefaultTaskTimeout        = 30 * time.Second
	DefaultRecencyInterval    = 5 * time.Minute
	DefaultRecencyEntries     = 200
	DefaultSnapshotBatchSize  = 100
	DefaultSweepPacing        = 1 * time.Second
	DefaultCatalogRefresh     = 6 * time.Hour
	DefaultListingsCapacity   = 100
	DefaultSalesCapacity      = 40
	DefaultOwnershipCapacity  = 10
	DefaultAlertsCapacity     = 10
	DefaultServerAddr         = ":8080"
	DefaultMetricsPath        = "/metrics"
	DefaultSubscribePath      = "/ws/listings"
	DefaultHierarchySource    = "api"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIBaseURL
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultUserAgent
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultAPIRateLimit
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultAPIRateBurst
	}

	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}
	if c.Store.SaleWindow == 0 {
		c.Store.SaleWindow = DefaultSaleWindow
	}
	if c.Store.RecencyBatchSize == 0 {
		c.Store.RecencyBatchSize = DefaultRecencyBatchSize
	}
	if c.Store.RecencyFlushInterval == 0 {
		c.Store.RecencyFlushInterval = DefaultRecencyFlush
	}

	// Sync defaults
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = DefaultSyncConcurrency
	}
	if c.Sync.LockShards == 0 {
		c.Sync.LockShards = DefaultLockShards
	}
	if c.Sync.TaskTimeout == 0 {
		c.Sync.TaskTimeout = DefaultTaskTimeout
	}

	// Recency defaults
	if c.Recency.Interval == 0 {
		c.Recency.Interval = DefaultRecencyInterval
	}
	if c.Recency.Entries == 0 {
		c.Recency.Entries = DefaultRecencyEntries
	}
	if c.Recency.BatchSize == 0 {
		c.Recency.BatchSize = DefaultSnapshotBatchSize
	}
	if c.Recency.SweepPacing == 0 {
		c.Recency.SweepPacing = DefaultSweepPacing
	}

	if c.Catalog.RefreshInterval == 0 {
		c.Catalog.RefreshInterval = DefaultCatalogRefresh
	}

	// Bus defaults
	if c.Bus.ListingsCapacity == 0 {
		c.Bus.ListingsCapacity = DefaultListingsCapacity
	}
	if c.Bus.SalesCapacity == 0 {
		c.Bus.SalesCapacity = DefaultSalesCapacity
	}
	if c.Bus.OwnershipCapacity == 0 {
		c.Bus.OwnershipCapacity = DefaultOwnershipCapacity
	}
	if c.Bus.AlertsCapacity == 0 {
		c.Bus.AlertsCapacity = DefaultAlertsCapacity
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
	if c.Server.SubscribePath == "" {
		c.Server.SubscribePath = DefaultSubscribePath
	}

	if c.Hierarchy.Source == "" {
		c.Hierarchy.Source = DefaultHierarchySource
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
