package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/marketsync/internal/diff"
	"github.com/rickgao/marketsync/internal/metrics"
)

// ErrEmpty is returned when the upstream list has no items. The previous
// catalog is kept.
var ErrEmpty = errors.New("catalog: upstream returned no items")

// Source lists marketable item ids.
type Source interface {
	Marketable(ctx context.Context) ([]int32, error)
}

// Config holds catalog configuration.
type Config struct {
	RefreshInterval time.Duration // 0 disables background refresh
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 6 * time.Hour,
	}
}

// Catalog is the current set of marketable item ids.
type Catalog struct {
	cfg    Config
	src    Source
	logger *slog.Logger

	mu         sync.RWMutex
	items      []int32 // Sorted, unique
	lastSyncAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Catalog.
func New(cfg Config, src Source, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		cfg:    cfg,
		src:    src,
		logger: logger.With("component", "catalog"),
	}
}

// Start loads the catalog and begins background refresh. The initial load
// blocks; if it fails, Start returns the error.
func (c *Catalog) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if _, _, err := c.Refresh(c.ctx); err != nil {
		c.cancel()
		return fmt.Errorf("initial catalog load: %w", err)
	}

	if c.cfg.RefreshInterval > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.refreshLoop(c.ctx)
		}()
	}

	c.logger.Info("catalog started", "items", c.Len(), "refresh_interval", c.cfg.RefreshInterval)
	return nil
}

// Stop gracefully shuts down.
func (c *Catalog) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("catalog stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Items returns a copy of the marketable item ids in ascending order.
func (c *Catalog) Items() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Contains reports whether id is marketable.
func (c *Catalog) Contains(id int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := slices.BinarySearch(c.items, id)
	return ok
}

// Len returns the number of known items.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// LastSyncAt returns when the catalog was last loaded.
func (c *Catalog) LastSyncAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSyncAt
}

// Refresh fetches the upstream list and replaces the catalog. It returns how
// many ids appeared and disappeared.
func (c *Catalog) Refresh(ctx context.Context) (added, removed int, err error) {
	start := time.Now()

	ids, err := c.src.Marketable(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(ids) == 0 {
		return 0, 0, ErrEmpty
	}
	next := slices.Clone(ids)
	slices.Sort(next)
	next = slices.Compact(next)

	c.mu.Lock()
	for item := range diff.Slices(c.items, next, diff.Ordered[int32]).All() {
		switch item.Side {
		case diff.Left:
			removed++
		case diff.Right:
			added++
		}
	}
	c.items = next
	c.lastSyncAt = time.Now()
	c.mu.Unlock()

	metrics.CatalogItems.Set(float64(len(next)))

	if added > 0 || removed > 0 {
		c.logger.Info("catalog changed",
			"items", len(next),
			"added", added,
			"removed", removed,
			"duration", time.Since(start),
		)
	} else {
		c.logger.Debug("catalog unchanged", "items", len(next), "duration", time.Since(start))
	}
	return added, removed, nil
}

// refreshLoop periodically reloads the catalog.
func (c *Catalog) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := c.Refresh(ctx); err != nil {
				c.logger.Error("catalog refresh failed", "err", err)
			}
		}
	}
}
