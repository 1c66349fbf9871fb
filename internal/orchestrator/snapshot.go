package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/marketsync/internal/api"
	"github.com/rickgao/marketsync/internal/model"
)

// ApplyView applies every item of a pulled market view and waits for all of
// them. fallback is the world of listings that carry no world id; worldIDs
// are boards to reconcile even when the view has nothing for them.
func (o *Orchestrator) ApplyView(ctx context.Context, view *api.MarketView, fallback int32, worldIDs ...int32) error {
	if view == nil {
		return nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(o.cfg.Concurrency)

	for _, id := range slices.Sorted(maps.Keys(view.Items)) {
		item := view.Items[id]
		g.Go(func() error {
			if err := o.ApplyItem(ctx, &item, fallback, worldIDs...); err != nil {
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

// ApplyItem reconciles the listings and records the sales of one pulled item
// on each world it covers. Each world board is one task under the same slot
// and lock rules as feed messages, but ApplyItem waits for them and returns
// their joined errors.
func (o *Orchestrator) ApplyItem(ctx context.Context, item *api.MarketItem, fallback int32, worldIDs ...int32) error {
	listings := item.ListingsByWorld(fallback, worldIDs...)
	sales := item.SalesByWorld(fallback)

	boards := slices.Collect(maps.Keys(listings))
	for w := range sales {
		if _, ok := listings[w]; !ok {
			boards = append(boards, w)
		}
	}
	slices.Sort(boards)

	var errs []error
	for _, w := range boards {
		key := model.Key{WorldID: w, ItemID: item.ItemID}
		err := o.runNow(ctx, "snapshot", key, func(ctx context.Context, key model.Key) error {
			if _, ok := listings[key.WorldID]; ok {
				if err := o.applyListings(ctx, key, listings[key.WorldID]); err != nil {
					return err
				}
			}
			return o.applySales(ctx, key, sales[key.WorldID])
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runNow runs fn on the caller's goroutine once a slot is free.
func (o *Orchestrator) runNow(ctx context.Context, kind string, key model.Key, fn taskFunc) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s %s: %w", kind, key, err)
	}
	defer o.sem.Release(1)

	if !o.track() {
		return fmt.Errorf("%s %s: %w", kind, key, ErrStopped)
	}
	defer o.wg.Done()

	return o.run(ctx, kind, SourceSnapshot, key, o.locks.reserve(key), fn)
}
