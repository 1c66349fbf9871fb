package recency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/marketsync/internal/api"
	"github.com/rickgao/marketsync/internal/diff"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
	"github.com/rickgao/marketsync/internal/worlds"
)

// Fetcher is the snapshot API surface the detector uses.
type Fetcher interface {
	RecentlyUpdated(ctx context.Context, name string, level worlds.Level, entries int) ([]model.RecentItem, error)
	MarketData(ctx context.Context, worldOrDC string, itemIDs []int32) (*api.MarketView, error)
}

// SnapshotHandler applies pulled market views.
type SnapshotHandler interface {
	ApplyView(ctx context.Context, view *api.MarketView, fallback int32, worldIDs ...int32) error
}

// ItemSource lists every marketable item id.
type ItemSource interface {
	Items() []int32
}

// Config holds detector configuration.
type Config struct {
	Interval      time.Duration // Gap check period (default: 5m)
	Entries       int           // Recently updated entries requested per region (default: 200)
	BatchSize     int           // Items per snapshot request (default: 100)
	Concurrency   int           // Max concurrent snapshot requests (default: 50)
	SweepPacing   time.Duration // Delay between full sweep batches (default: 1s)
	SweepSchedule string        // Cron spec for full sweeps; empty disables
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Minute,
		Entries:     200,
		BatchSize:   api.MaxItemsPerRequest,
		Concurrency: 50,
		SweepPacing: time.Second,
	}
}

// localWindow is how many local records are compared per external entry.
const localWindow = 2

// Detector periodically re-snapshots boards the push feed missed.
type Detector struct {
	cfg     Config
	regions []Region
	fetcher Fetcher
	store   store.RecencyStore
	handler SnapshotHandler
	items   ItemSource
	logger  *slog.Logger

	cron     *cron.Cron
	sweeping atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Detector. items may be nil when full sweeps are not used.
func New(cfg Config, regions []Region, fetcher Fetcher, s store.RecencyStore, handler SnapshotHandler, items ItemSource, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 || cfg.BatchSize > api.MaxItemsPerRequest {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Entries <= 0 {
		cfg.Entries = def.Entries
	}
	return &Detector{
		cfg:     cfg,
		regions: regions,
		fetcher: fetcher,
		store:   s,
		handler: handler,
		items:   items,
		logger:  logger.With("component", "recency"),
	}
}

// Start begins the gap check loop and, if configured, the sweep schedule.
func (d *Detector) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	if d.cfg.SweepSchedule != "" {
		d.cron = cron.New()
		if _, err := d.cron.AddFunc(d.cfg.SweepSchedule, d.scheduledSweep); err != nil {
			d.cancel()
			return fmt.Errorf("sweep schedule %q: %w", d.cfg.SweepSchedule, err)
		}
		d.cron.Start()
	}

	if d.cfg.Interval > 0 {
		d.wg.Add(1)
		go d.run()
	}

	d.logger.Info("recency detector started",
		"regions", len(d.regions),
		"interval", d.cfg.Interval,
		"sweep_schedule", d.cfg.SweepSchedule,
	)
	return nil
}

// Stop gracefully shuts down the detector.
func (d *Detector) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		if d.cron != nil {
			<-d.cron.Stop().Done()
		}
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("recency detector stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the gap check loop.
func (d *Detector) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.CheckAll(d.ctx)

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.CheckAll(d.ctx)
		}
	}
}

// CheckAll runs one gap check per region and returns the number of items
// re-snapshotted.
func (d *Detector) CheckAll(ctx context.Context) int {
	start := time.Now()
	var total, failed int

	for _, r := range d.regions {
		if ctx.Err() != nil {
			return total
		}
		n, err := d.Check(ctx, r)
		total += n
		if err != nil {
			failed++
			metrics.GapChecks.WithLabelValues("error").Inc()
			d.logger.Warn("gap check failed", "region", r.Name, "error", err)
			continue
		}
		metrics.GapChecks.WithLabelValues("ok").Inc()
	}

	d.logger.Info("gap check cycle complete",
		"regions", len(d.regions),
		"missing", total,
		"failed", failed,
		"duration", time.Since(start),
	)
	return total
}

// Check compares the region's recently updated upstream items with the local
// recency records and re-snapshots those with no local record. It returns
// the number of missing items.
func (d *Detector) Check(ctx context.Context, r Region) (int, error) {
	recent, err := d.fetcher.RecentlyUpdated(ctx, r.Name, r.Level, d.cfg.Entries)
	if err != nil {
		return 0, fmt.Errorf("recently updated %s: %w", r.Name, err)
	}
	if len(recent) == 0 {
		return 0, nil
	}

	local, err := d.store.RecentlyUpdated(ctx, r.WorldIDs(), localWindow*len(recent))
	if err != nil {
		return 0, fmt.Errorf("local recency %s: %w", r.Name, err)
	}

	missing := missingItems(local, recent)
	if len(missing) == 0 {
		d.logger.Debug("no gap", "region", r.Name, "upstream", len(recent), "local", len(local))
		return 0, nil
	}

	for _, it := range recent {
		if _, ok := slices.BinarySearch(missing, it.ItemID); ok {
			metrics.GapItems.WithLabelValues(metrics.World(it.WorldID)).Inc()
		}
	}
	d.logger.Info("gap found", "region", r.Name, "missing", len(missing))

	return len(missing), d.fetchItems(ctx, r, missing, "gap")
}

// missingItems returns the sorted item ids present upstream but absent from
// the local records.
func missingItems(local []model.RecencyRecord, recent []model.RecentItem) []int32 {
	localIDs := make([]int32, len(local))
	for i, rec := range local {
		localIDs[i] = rec.ItemID
	}
	upstreamIDs := make([]int32, len(recent))
	for i, it := range recent {
		upstreamIDs[i] = it.ItemID
	}
	slices.Sort(localIDs)
	slices.Sort(upstreamIDs)
	localIDs = slices.Compact(localIDs)
	upstreamIDs = slices.Compact(upstreamIDs)

	var missing []int32
	for item := range diff.Slices(localIDs, upstreamIDs, diff.Ordered[int32]).All() {
		if item.Side == diff.Right {
			missing = append(missing, item.Right)
		}
	}
	return missing
}

// fetchItems pulls itemIDs for region r in batches and applies each batch.
// Batches run concurrently up to the configured limit.
func (d *Detector) fetchItems(ctx context.Context, r Region, itemIDs []int32, trigger string) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(d.cfg.Concurrency)

	for batch := range slices.Chunk(itemIDs, d.cfg.BatchSize) {
		g.Go(func() error {
			if err := d.fetchBatch(ctx, r, batch, trigger); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

// fetchBatch pulls one batch of at most BatchSize items and applies it.
func (d *Detector) fetchBatch(ctx context.Context, r Region, batch []int32, trigger string) error {
	view, err := d.fetcher.MarketData(ctx, r.Name, batch)
	if err != nil {
		metrics.SnapshotBatches.WithLabelValues(trigger, "fetch_error").Inc()
		return fmt.Errorf("market data %s: %w", r.Name, err)
	}
	if err := d.handler.ApplyView(ctx, view, r.Fallback(), r.WorldIDs()...); err != nil {
		metrics.SnapshotBatches.WithLabelValues(trigger, "apply_error").Inc()
		return fmt.Errorf("apply %s: %w", r.Name, err)
	}
	metrics.SnapshotBatches.WithLabelValues(trigger, "ok").Inc()
	return nil
}
