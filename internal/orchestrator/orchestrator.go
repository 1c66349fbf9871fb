package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rickgao/marketsync/internal/bus"
	"github.com/rickgao/marketsync/internal/feed"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/reconcile"
	"github.com/rickgao/marketsync/internal/store"
)

// ErrStopped is returned for snapshot tasks submitted after Stop.
var ErrStopped = errors.New("orchestrator: stopped")

// Task sources, used as the failure metric label.
const (
	SourceFeed     = "feed"
	SourceSnapshot = "snapshot"
)

// Config holds task concurrency settings.
type Config struct {
	Concurrency int           // Max tasks holding a slot at once
	LockShards  int           // Number of per-key mutex shards
	TaskTimeout time.Duration // Upper bound on one task; 0 disables
	SaleWindow  int           // Recent sales compared against for dedup
}

// DefaultConfig returns default settings.
func DefaultConfig() Config {
	return Config{
		Concurrency: 50,
		LockShards:  256,
		TaskTimeout: 30 * time.Second,
		SaleWindow:  reconcile.DefaultSaleWindow,
	}
}

// Stats is a point-in-time view of task counters.
type Stats struct {
	Tasks    int64 // Finished tasks
	Failures int64 // Finished tasks that returned an error
	InFlight int64
	Dropped  int64 // Feed messages not started because of shutdown or cancellation
}

// taskFunc is one board update run under the board's lock.
type taskFunc func(ctx context.Context, key model.Key) error

// Orchestrator applies board updates and publishes what changed. It
// implements router.Handler for the push feed.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	bus      *bus.Bus
	recency  store.RecencyStore
	listings *reconcile.ListingReconciler
	sales    *reconcile.SaleRecorder

	sem   *semaphore.Weighted
	locks *keyLocks

	// Base context of feed tasks, cancelled when Stop times out.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex // Guards stopped against wg.Add
	stopped bool
	wg      sync.WaitGroup

	tasks    atomic.Int64
	failures atomic.Int64
	inFlight atomic.Int64
	dropped  atomic.Int64

	now func() time.Time
}

// New creates an Orchestrator writing to s and publishing to b.
func New(cfg Config, s store.Store, b *bus.Bus, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.LockShards <= 0 {
		cfg.LockShards = def.LockShards
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.With("component", "orchestrator"),
		bus:      b,
		recency:  s,
		listings: reconcile.NewListingReconciler(s, logger),
		sales:    reconcile.NewSaleRecorder(s, cfg.SaleWindow, logger),
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		locks:    newKeyLocks(cfg.LockShards),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Stop refuses new tasks and waits for running ones to finish. If ctx ends
// first, running tasks are cancelled and ctx.Err() is returned.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		o.logger.Info("orchestrator stopped", "tasks", o.tasks.Load(), "failures", o.failures.Load())
		return nil
	case <-ctx.Done():
		o.cancel()
		o.logger.Warn("shutdown timeout, cancelling running tasks", "in_flight", o.inFlight.Load())
		return ctx.Err()
	}
}

// Stats returns current task statistics.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Tasks:    o.tasks.Load(),
		Failures: o.failures.Load(),
		InFlight: o.inFlight.Load(),
		Dropped:  o.dropped.Load(),
	}
}

// -----------------------------------------------------------------------------
// Push feed handlers
// -----------------------------------------------------------------------------

// ListingsAdd treats msg as the full listing set of its board.
func (o *Orchestrator) ListingsAdd(ctx context.Context, msg feed.Message) {
	snaps := msg.ListingSnapshots()
	o.spawn(ctx, "listings_add", msg.Key(), func(ctx context.Context, key model.Key) error {
		return o.applyListings(ctx, key, snaps)
	})
}

// ListingsRemove deletes the stored rows matching msg's listings.
func (o *Orchestrator) ListingsRemove(ctx context.Context, msg feed.Message) {
	snaps := msg.ListingSnapshots()
	o.spawn(ctx, "listings_remove", msg.Key(), func(ctx context.Context, key model.Key) error {
		return o.removeListings(ctx, key, snaps)
	})
}

// SalesAdd records the new sales in msg.
func (o *Orchestrator) SalesAdd(ctx context.Context, msg feed.Message) {
	snaps := msg.SaleSnapshots()
	o.spawn(ctx, "sales_add", msg.Key(), func(ctx context.Context, key model.Key) error {
		return o.applySales(ctx, key, snaps)
	})
}

// SalesRemove is ignored; sales are append-only.
func (o *Orchestrator) SalesRemove(_ context.Context, msg feed.Message) {
	o.logger.Debug("ignoring sales removal",
		"world_id", msg.WorldID,
		"item_id", msg.ItemID,
		"count", len(msg.Sales),
	)
}

// spawn starts fn in its own goroutine once a slot is free. Waiting for the
// slot blocks the caller, which holds the dispatcher back when every slot is
// busy. The board's lock is reserved before the goroutine starts, so tasks
// of one board run in the order the dispatcher handed them over.
func (o *Orchestrator) spawn(ctx context.Context, kind string, key model.Key, fn taskFunc) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.dropped.Add(1)
		o.logger.Warn("task not started", "kind", kind, "key", key.String(), "error", err)
		return
	}
	if !o.track() {
		o.sem.Release(1)
		o.dropped.Add(1)
		o.logger.Warn("orchestrator stopped, dropping task", "kind", kind, "key", key.String())
		return
	}

	turn := o.locks.reserve(key)
	go func() {
		defer o.wg.Done()
		defer o.sem.Release(1)
		o.run(o.ctx, kind, SourceFeed, key, turn, fn)
	}()
}

// track registers a task with the wait group unless Stop has begun.
func (o *Orchestrator) track() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return false
	}
	o.wg.Add(1)
	return true
}

// run waits for turn, executes fn under key's lock and records the outcome.
func (o *Orchestrator) run(parent context.Context, kind, source string, key model.Key, turn func() func(), fn taskFunc) error {
	start := time.Now()
	o.inFlight.Add(1)
	metrics.TasksInFlight.Inc()
	defer func() {
		o.inFlight.Add(-1)
		metrics.TasksInFlight.Dec()
	}()

	ctx, cancel := parent, context.CancelFunc(func() {})
	if o.cfg.TaskTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, o.cfg.TaskTimeout)
	}
	defer cancel()

	unlock := turn()
	err := fn(ctx, key)
	unlock()

	metrics.ReconcileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	o.tasks.Add(1)

	if err != nil {
		o.failures.Add(1)
		metrics.ReconcileTotal.WithLabelValues(kind, "error").Inc()
		metrics.ReconcileFailures.WithLabelValues(source).Inc()
		o.logger.Error("board update failed",
			"kind", kind,
			"source", source,
			"world_id", key.WorldID,
			"item_id", key.ItemID,
			"error", err,
		)
		return err
	}
	metrics.ReconcileTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}

// -----------------------------------------------------------------------------
// Board updates
// -----------------------------------------------------------------------------

func (o *Orchestrator) applyListings(ctx context.Context, key model.Key, snaps []model.ListingSnapshot) error {
	res, err := o.listings.Reconcile(ctx, key.WorldID, key.ItemID, snaps)
	if err != nil {
		return err
	}

	o.publishListings(key, model.Removed, res.Removed)
	o.publishListings(key, model.Added, res.Added)
	metrics.ListingsRemoved.Add(float64(len(res.Removed)))
	metrics.ListingsAdded.Add(float64(len(res.Added)))

	for _, r := range res.Retainers {
		o.bus.Ownership.Publish(model.ChangeEvent[model.RetainerIdentity]{Kind: model.Added, Data: r})
	}
	if res.FloorDropped() {
		o.bus.Alerts.Publish(model.ChangeEvent[model.Alert]{
			Kind: model.Updated,
			Data: model.Alert{
				WorldID:       key.WorldID,
				ItemID:        key.ItemID,
				RetainerName:  res.FloorSeller,
				PreviousFloor: res.PreviousFloor,
				Floor:         res.Floor,
			},
		})
	}

	return o.touch(ctx, key)
}

func (o *Orchestrator) removeListings(ctx context.Context, key model.Key, snaps []model.ListingSnapshot) error {
	removed, err := o.listings.Remove(ctx, key.WorldID, key.ItemID, snaps)
	if err != nil {
		return err
	}
	o.publishListings(key, model.Removed, removed)
	metrics.ListingsRemoved.Add(float64(len(removed)))

	return o.touch(ctx, key)
}

func (o *Orchestrator) applySales(ctx context.Context, key model.Key, snaps []model.SaleSnapshot) error {
	inserted, err := o.sales.RecordSales(ctx, key.WorldID, key.ItemID, snaps)
	if err != nil {
		return err
	}
	if len(inserted) > 0 {
		o.bus.Sales.Publish(model.ChangeEvent[model.SaleBatch]{
			Kind: model.Added,
			Data: model.SaleBatch{ItemID: key.ItemID, WorldID: key.WorldID, Sales: inserted},
		})
		metrics.SalesRecorded.Add(float64(len(inserted)))
	}

	return o.touch(ctx, key)
}

// publishListings publishes rows as one batch. Empty batches are skipped.
func (o *Orchestrator) publishListings(key model.Key, kind model.ChangeKind, rows []model.Listing) {
	if len(rows) == 0 {
		return
	}
	o.bus.Listings.Publish(model.ChangeEvent[model.ListingBatch]{
		Kind: kind,
		Data: model.ListingBatch{ItemID: key.ItemID, WorldID: key.WorldID, Listings: rows},
	})
}

// touch records that key was reconciled now.
func (o *Orchestrator) touch(ctx context.Context, key model.Key) error {
	rec := model.RecencyRecord{
		WorldID:         key.WorldID,
		ItemID:          key.ItemID,
		LastKnownUpdate: o.now().UnixMicro(),
	}
	if err := o.recency.UpsertRecency(ctx, rec); err != nil {
		return fmt.Errorf("upsert recency %s: %w", key, err)
	}
	return nil
}
