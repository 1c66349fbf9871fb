package recency

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrSweepRunning is returned when a full sweep is requested while another
// one is still going.
var ErrSweepRunning = errors.New("recency: full sweep already running")

// ErrNoItems is returned by FullSweep when the item source is empty.
var ErrNoItems = errors.New("recency: no marketable items to sweep")

// FullSweep re-snapshots every marketable item on every region. Regions are
// swept one after another, one batch at a time, with SweepPacing between
// batches. A failed batch is logged and the sweep continues.
func (d *Detector) FullSweep(ctx context.Context) error {
	if !d.sweeping.CompareAndSwap(false, true) {
		return ErrSweepRunning
	}
	defer d.sweeping.Store(false)

	var items []int32
	if d.items != nil {
		items = slices.Clone(d.items.Items())
	}
	if len(items) == 0 {
		return ErrNoItems
	}
	slices.Sort(items)

	start := time.Now()
	d.logger.Info("full sweep started", "regions", len(d.regions), "items", len(items))

	var batches, failed int
	for _, r := range d.regions {
		for batch := range slices.Chunk(items, d.cfg.BatchSize) {
			if batches > 0 && d.cfg.SweepPacing > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(d.cfg.SweepPacing):
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			batches++
			if err := d.fetchBatch(ctx, r, batch, "sweep"); err != nil {
				failed++
				d.logger.Warn("sweep batch failed", "region", r.Name, "first_item", batch[0], "error", err)
			}
		}
		d.logger.Debug("region swept", "region", r.Name)
	}

	d.logger.Info("full sweep complete",
		"batches", batches,
		"failed", failed,
		"duration", time.Since(start),
	)
	if failed > 0 {
		return fmt.Errorf("full sweep: %d of %d batches failed", failed, batches)
	}
	return nil
}

// scheduledSweep is the cron job body.
func (d *Detector) scheduledSweep() {
	err := d.FullSweep(d.ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepRunning):
		d.logger.Info("skipping scheduled sweep, previous one still running")
	case errors.Is(err, context.Canceled):
	default:
		d.logger.Warn("scheduled sweep failed", "error", err)
	}
}
