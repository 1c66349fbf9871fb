// Package reconcile brings the stored listings and sales of one market board
// in line with what the upstream feed reports.
//
// ListingReconciler treats an incoming listing set as the full truth for a
// board: it merge-diffs the sorted snapshot against the sorted stored rows
// and applies only the difference. SaleRecorder treats incoming sales as an
// append-only log and drops entries already stored.
//
// Neither type serializes callers. Two concurrent reconciles of the same
// board can interleave their read and write phases, so the caller must hold
// a per-board lock around each call.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/marketsync/internal/diff"
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
)

// ListingStore is the persistence a ListingReconciler needs.
type ListingStore interface {
	store.IdentityStore
	store.ListingStore
}

// ListingResult describes what one reconcile changed.
type ListingResult struct {
	Added     []model.Listing          // Inserted rows, IDs set
	Removed   []model.Listing          // Deleted rows
	Retainers []model.RetainerIdentity // Retainers created by this call

	// Lowest asking price before and after; 0 when the board was or is empty.
	PreviousFloor int32
	Floor         int32
	FloorSeller   string
}

// Changed reports whether any row was written.
func (r ListingResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// FloorDropped reports whether the lowest asking price went down.
func (r ListingResult) FloorDropped() bool {
	return r.PreviousFloor > 0 && r.Floor > 0 && r.Floor < r.PreviousFloor
}

// ListingReconciler applies full listing snapshots.
type ListingReconciler struct {
	store  ListingStore
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewListingReconciler creates a ListingReconciler.
func NewListingReconciler(s ListingStore, logger *slog.Logger) *ListingReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingReconciler{
		store:  s,
		logger: logger.With("component", "listing_reconciler"),
		now:    time.Now,
	}
}

// Reconcile makes the stored listings for (worldID, itemID) equal, by
// identity tuple, to snapshot. Rows present on both sides are left untouched.
// Calling it twice with the same snapshot writes nothing the second time.
func (r *ListingReconciler) Reconcile(ctx context.Context, worldID, itemID int32, snapshot []model.ListingSnapshot) (ListingResult, error) {
	key := model.Key{WorldID: worldID, ItemID: itemID}

	incoming := slices.Clone(snapshot)
	slices.SortFunc(incoming, func(a, b model.ListingSnapshot) int {
		return a.Identity().Compare(b.Identity())
	})

	retainers, fresh, err := r.resolveRetainers(ctx, worldID, incoming)
	if err != nil {
		return ListingResult{}, fmt.Errorf("reconcile %s: %w", key, err)
	}

	stored, err := r.store.Listings(ctx, key)
	if err != nil {
		return ListingResult{}, fmt.Errorf("reconcile %s: %w", key, err)
	}

	res := ListingResult{Retainers: fresh}
	if len(stored) > 0 {
		res.PreviousFloor = stored[0].PricePerUnit
	}
	if len(incoming) > 0 {
		res.Floor = incoming[0].PricePerUnit
		res.FloorSeller = incoming[0].RetainerName
	}

	now := r.now().UnixMicro()
	var (
		add       []model.Listing
		removeIDs []int64
	)
	for item := range diff.Slices(incoming, stored, compareSnapshot).All() {
		switch item.Side {
		case diff.Left:
			add = append(add, r.toListing(key, item.Left, retainers[item.Left.RetainerName], now))
		case diff.Right:
			removeIDs = append(removeIDs, item.Right.ID)
			res.Removed = append(res.Removed, item.Right)
		}
	}

	if len(add) == 0 && len(removeIDs) == 0 {
		return res, nil
	}

	res.Added, err = r.store.ReplaceListings(ctx, key, removeIDs, add)
	if err != nil {
		return ListingResult{}, fmt.Errorf("reconcile %s: %w", key, err)
	}

	r.logger.Debug("listings reconciled",
		"world_id", worldID,
		"item_id", itemID,
		"added", len(res.Added),
		"removed", len(res.Removed),
	)
	return res, nil
}

// Remove deletes the stored rows of (worldID, itemID) whose identity matches
// one of listings. Each incoming listing removes at most one row. Returns the
// deleted rows.
func (r *ListingReconciler) Remove(ctx context.Context, worldID, itemID int32, listings []model.ListingSnapshot) ([]model.Listing, error) {
	key := model.Key{WorldID: worldID, ItemID: itemID}
	if len(listings) == 0 {
		return nil, nil
	}

	incoming := slices.Clone(listings)
	slices.SortFunc(incoming, func(a, b model.ListingSnapshot) int {
		return a.Identity().Compare(b.Identity())
	})

	stored, err := r.store.Listings(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("remove %s: %w", key, err)
	}

	var (
		removed []model.Listing
		ids     []int64
	)
	for item := range diff.Slices(incoming, stored, compareSnapshot).All() {
		if item.Side == diff.Same {
			removed = append(removed, item.Right)
			ids = append(ids, item.Right.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := r.store.ReplaceListings(ctx, key, ids, nil); err != nil {
		return nil, fmt.Errorf("remove %s: %w", key, err)
	}
	return removed, nil
}

func compareSnapshot(a model.ListingSnapshot, b model.Listing) (int, bool) {
	return a.Identity().Compare(b.Identity()), true
}

func (r *ListingReconciler) toListing(key model.Key, s model.ListingSnapshot, ret model.RetainerIdentity, now int64) model.Listing {
	observed := s.ReviewedAt
	if observed == 0 {
		observed = now
	}
	return model.Listing{
		WorldID:      key.WorldID,
		ItemID:       key.ItemID,
		RetainerID:   ret.ID,
		RetainerName: s.RetainerName,
		PricePerUnit: s.PricePerUnit,
		Quantity:     s.Quantity,
		HQ:           s.HQ,
		ObservedAt:   observed,
	}
}

// resolveRetainers maps every distinct retainer name in snaps to a stored
// identity, creating the unknown ones. The second result holds the identities
// this call created.
func (r *ListingReconciler) resolveRetainers(ctx context.Context, worldID int32, snaps []model.ListingSnapshot) (map[string]model.RetainerIdentity, []model.RetainerIdentity, error) {
	externalIDs := make(map[string]string, len(snaps))
	names := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if _, ok := externalIDs[s.RetainerName]; !ok {
			externalIDs[s.RetainerName] = s.RetainerExternalID
			names = append(names, s.RetainerName)
		}
	}
	if len(names) == 0 {
		return nil, nil, nil
	}

	known, err := r.store.RetainersByName(ctx, worldID, names)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup retainers: %w", err)
	}

	var fresh []model.RetainerIdentity
	for _, name := range names {
		if _, ok := known[name]; ok {
			continue
		}
		ident := model.RetainerIdentity{Name: name, WorldID: worldID, ExternalID: externalIDs[name]}
		got, isNew, err := createOrFetch(ctx, &r.group, fmt.Sprintf("%d/%s", worldID, name),
			func(ctx context.Context) (model.RetainerIdentity, error) {
				return r.store.CreateRetainer(ctx, ident)
			},
			func(ctx context.Context) (model.RetainerIdentity, bool, error) {
				m, err := r.store.RetainersByName(ctx, worldID, []string{name})
				ret, ok := m[name]
				return ret, ok, err
			},
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create retainer %q: %w", name, err)
		}
		known[name] = got
		if isNew {
			fresh = append(fresh, got)
		}
	}
	return known, fresh, nil
}
