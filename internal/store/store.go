// Package store defines the persistence capability the sync engine consumes:
// listing rows, sale rows, retainer and buyer identities, and per-board
// recency timestamps.
//
// Implementations:
//   - postgres: production, backed by a pgx connection pool
//   - memory: tests and local runs without a database
//
// Listings are always returned sorted by model.ListingIdentity.Compare so that
// callers can merge-diff them without depending on database collation.
package store

import (
	"context"
	"errors"
	"slices"

	"github.com/rickgao/marketsync/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an insert violates a uniqueness constraint,
	// typically because a concurrent writer created the same identity first.
	ErrConflict = errors.New("store: conflict")
)

// IdentityStore resolves and creates retainer and buyer identities.
type IdentityStore interface {
	// RetainersByName returns the known retainers on worldID keyed by name.
	// Unknown names are absent from the result.
	RetainersByName(ctx context.Context, worldID int32, names []string) (map[string]model.RetainerIdentity, error)

	// CreateRetainer inserts a retainer and returns it with its ID set.
	// Returns ErrConflict if (world, name) already exists.
	CreateRetainer(ctx context.Context, r model.RetainerIdentity) (model.RetainerIdentity, error)

	// BuyersByName returns the known buyers keyed by name.
	BuyersByName(ctx context.Context, names []string) (map[string]model.BuyerIdentity, error)

	// CreateBuyer inserts a buyer. Returns ErrConflict if the name exists.
	CreateBuyer(ctx context.Context, name string) (model.BuyerIdentity, error)
}

// ListingStore reads and rewrites the listings of one board.
type ListingStore interface {
	// Listings returns the stored listings for key, sorted by identity.
	Listings(ctx context.Context, key model.Key) ([]model.Listing, error)

	// ReplaceListings deletes removeIDs and inserts add for key in a single
	// transaction. Returns the inserted rows with their IDs set.
	ReplaceListings(ctx context.Context, key model.Key, removeIDs []int64, add []model.Listing) ([]model.Listing, error)
}

// SaleStore reads and appends sales.
type SaleStore interface {
	// RecentSales returns up to limit sales for key, newest first.
	RecentSales(ctx context.Context, key model.Key, limit int) ([]model.Sale, error)

	// InsertSales appends sales and returns the rows actually inserted.
	// Exact duplicates already stored are skipped.
	InsertSales(ctx context.Context, sales []model.Sale) ([]model.Sale, error)
}

// RecencyStore tracks when each board was last reconciled.
type RecencyStore interface {
	// UpsertRecency records reconciliation times. A stored time is never
	// moved backwards.
	UpsertRecency(ctx context.Context, recs ...model.RecencyRecord) error

	// RecentlyUpdated returns up to limit records for the given worlds,
	// most recently updated first. Empty worldIDs means every world.
	RecentlyUpdated(ctx context.Context, worldIDs []int32, limit int) ([]model.RecencyRecord, error)
}

// Store is the full persistence capability.
type Store interface {
	IdentityStore
	ListingStore
	SaleStore
	RecencyStore
	Close()
}

// SortListings orders listings by identity, breaking ties by ID.
func SortListings(ls []model.Listing) {
	slices.SortFunc(ls, func(a, b model.Listing) int {
		if c := a.Identity().Compare(b.Identity()); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
