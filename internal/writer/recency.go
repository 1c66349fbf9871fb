package writer

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
)

// WriterConfig configures batching.
type WriterConfig struct {
	BatchSize     int           // Flush once this many boards are pending
	FlushInterval time.Duration // Flush at least this often while started
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// WriterMetrics contains flush statistics.
type WriterMetrics struct {
	Records int64 // Records written
	Flushes int64
	Errors  int64
	Pending int // Boards currently buffered
}

// RecencyWriter wraps a store.Store and buffers UpsertRecency calls. All
// other store methods pass straight through.
type RecencyWriter struct {
	store.Store

	cfg    WriterConfig
	logger *slog.Logger

	// Batching
	batchMu sync.Mutex
	pending map[model.Key]int64
	metrics WriterMetrics

	// Serializes writes so a failed batch is merged back before the next
	// flush takes the buffer.
	flushMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecencyWriter creates a RecencyWriter in front of s.
func NewRecencyWriter(cfg WriterConfig, s store.Store, logger *slog.Logger) *RecencyWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &RecencyWriter{
		Store:   s,
		cfg:     cfg,
		logger:  logger.With("component", "recency_writer"),
		pending: make(map[model.Key]int64),
	}
}

// Start begins the periodic flush loop.
func (w *RecencyWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("recency writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the flush loop and writes whatever is still buffered.
func (w *RecencyWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping recency writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("recency writer stop timed out")
	}

	// Final flush
	err := w.Flush(ctx)
	if err != nil {
		w.logger.Error("final recency flush failed", "error", err, "pending", w.Stats().Pending)
	} else {
		w.logger.Info("recency writer stopped")
	}
	return err
}

// Stats returns current metrics.
func (w *RecencyWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	m := w.metrics
	m.Pending = len(w.pending)
	return m
}

// UpsertRecency buffers recs, keeping the newest time per board. It writes
// through once BatchSize boards are pending.
func (w *RecencyWriter) UpsertRecency(ctx context.Context, recs ...model.RecencyRecord) error {
	w.batchMu.Lock()
	w.merge(recs)
	shouldFlush := len(w.pending) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		return w.Flush(ctx)
	}
	return nil
}

// RecentlyUpdated flushes pending records and then reads from the store.
func (w *RecencyWriter) RecentlyUpdated(ctx context.Context, worldIDs []int32, limit int) ([]model.RecencyRecord, error) {
	if err := w.Flush(ctx); err != nil {
		w.logger.Warn("recency flush before read failed", "error", err)
	}
	return w.Store.RecentlyUpdated(ctx, worldIDs, limit)
}

// Flush writes the buffered records. On failure they are kept for the next
// attempt.
func (w *RecencyWriter) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.pending) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := make([]model.RecencyRecord, 0, len(w.pending))
	for k, ts := range w.pending {
		batch = append(batch, model.RecencyRecord{WorldID: k.WorldID, ItemID: k.ItemID, LastKnownUpdate: ts})
	}
	w.pending = make(map[model.Key]int64, w.cfg.BatchSize)
	metrics.RecencyPending.Set(0)
	w.batchMu.Unlock()

	slices.SortFunc(batch, func(a, b model.RecencyRecord) int {
		return cmp.Or(cmp.Compare(a.WorldID, b.WorldID), cmp.Compare(a.ItemID, b.ItemID))
	})

	start := time.Now()
	if err := w.Store.UpsertRecency(ctx, batch...); err != nil {
		w.batchMu.Lock()
		w.merge(batch)
		w.metrics.Errors++
		w.batchMu.Unlock()
		metrics.RecencyFlushes.WithLabelValues("error").Inc()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Records += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()
	metrics.RecencyFlushes.WithLabelValues("ok").Inc()

	w.logger.Debug("flushed recency",
		"count", len(batch),
		"duration", time.Since(start),
	)
	return nil
}

// merge folds recs into pending. Caller holds batchMu.
func (w *RecencyWriter) merge(recs []model.RecencyRecord) {
	for _, r := range recs {
		k := model.Key{WorldID: r.WorldID, ItemID: r.ItemID}
		if cur, ok := w.pending[k]; !ok || r.LastKnownUpdate > cur {
			w.pending[k] = r.LastKnownUpdate
		}
	}
	metrics.RecencyPending.Set(float64(len(w.pending)))
}

// flushLoop periodically flushes the batch.
func (w *RecencyWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.Flush(w.ctx); err != nil && w.ctx.Err() == nil {
				w.logger.Error("recency flush failed", "error", err, "pending", w.Stats().Pending)
			}
		}
	}
}
