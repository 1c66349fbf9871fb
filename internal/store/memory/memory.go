// Package memory is an in-process store.Store for tests and local runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
)

type retainerKey struct {
	worldID int32
	name    string
}

// Store keeps every table in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	nextID int64

	retainers map[retainerKey]model.RetainerIdentity
	buyers    map[string]model.BuyerIdentity
	listings  map[model.Key][]model.Listing
	sales     map[model.Key][]model.Sale // Append order
	recency   map[model.Key]int64
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		retainers: make(map[retainerKey]model.RetainerIdentity),
		buyers:    make(map[string]model.BuyerIdentity),
		listings:  make(map[model.Key][]model.Listing),
		sales:     make(map[model.Key][]model.Sale),
		recency:   make(map[model.Key]int64),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Close is a no-op.
func (s *Store) Close() {}

// -----------------------------------------------------------------------------
// Identities
// -----------------------------------------------------------------------------

func (s *Store) RetainersByName(_ context.Context, worldID int32, names []string) (map[string]model.RetainerIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.RetainerIdentity, len(names))
	for _, n := range names {
		if r, ok := s.retainers[retainerKey{worldID, n}]; ok {
			out[n] = r
		}
	}
	return out, nil
}

func (s *Store) CreateRetainer(_ context.Context, r model.RetainerIdentity) (model.RetainerIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := retainerKey{r.WorldID, r.Name}
	if _, ok := s.retainers[k]; ok {
		return model.RetainerIdentity{}, store.ErrConflict
	}
	r.ID = s.id()
	s.retainers[k] = r
	return r, nil
}

func (s *Store) BuyersByName(_ context.Context, names []string) (map[string]model.BuyerIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.BuyerIdentity, len(names))
	for _, n := range names {
		if b, ok := s.buyers[n]; ok {
			out[n] = b
		}
	}
	return out, nil
}

func (s *Store) CreateBuyer(_ context.Context, name string) (model.BuyerIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buyers[name]; ok {
		return model.BuyerIdentity{}, store.ErrConflict
	}
	b := model.BuyerIdentity{ID: s.id(), Name: name}
	s.buyers[name] = b
	return b, nil
}

// -----------------------------------------------------------------------------
// Listings
// -----------------------------------------------------------------------------

func (s *Store) Listings(_ context.Context, key model.Key) ([]model.Listing, error) {
	s.mu.RLock()
	out := slices.Clone(s.listings[key])
	s.mu.RUnlock()

	store.SortListings(out)
	return out, nil
}

func (s *Store) ReplaceListings(_ context.Context, key model.Key, removeIDs []int64, add []model.Listing) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.listings[key]
	if len(removeIDs) > 0 {
		rows = slices.DeleteFunc(slices.Clone(rows), func(l model.Listing) bool {
			return slices.Contains(removeIDs, l.ID)
		})
	}

	inserted := make([]model.Listing, 0, len(add))
	for _, l := range add {
		l.ID = s.id()
		l.WorldID, l.ItemID = key.WorldID, key.ItemID
		rows = append(rows, l)
		inserted = append(inserted, l)
	}

	if len(rows) == 0 {
		delete(s.listings, key)
	} else {
		s.listings[key] = rows
	}
	return inserted, nil
}

// -----------------------------------------------------------------------------
// Sales
// -----------------------------------------------------------------------------

func (s *Store) RecentSales(_ context.Context, key model.Key, limit int) ([]model.Sale, error) {
	s.mu.RLock()
	out := slices.Clone(s.sales[key])
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.Sale) int {
		switch {
		case a.SoldAt > b.SoldAt:
			return -1
		case a.SoldAt < b.SoldAt:
			return 1
		}
		return 0
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertSales(_ context.Context, sales []model.Sale) ([]model.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := make([]model.Sale, 0, len(sales))
	for _, sale := range sales {
		key := model.Key{WorldID: sale.WorldID, ItemID: sale.ItemID}
		if slices.ContainsFunc(s.sales[key], func(x model.Sale) bool { return sameSaleRow(x, sale) }) {
			continue
		}
		sale.ID = s.id()
		s.sales[key] = append(s.sales[key], sale)
		inserted = append(inserted, sale)
	}
	return inserted, nil
}

// sameSaleRow mirrors the sales table's unique constraint.
func sameSaleRow(a, b model.Sale) bool {
	return a.BuyerID == b.BuyerID && a.HQ == b.HQ && a.Quantity == b.Quantity && a.SoldAt == b.SoldAt
}

// -----------------------------------------------------------------------------
// Recency
// -----------------------------------------------------------------------------

func (s *Store) UpsertRecency(_ context.Context, recs ...model.RecencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recs {
		k := model.Key{WorldID: r.WorldID, ItemID: r.ItemID}
		if r.LastKnownUpdate > s.recency[k] {
			s.recency[k] = r.LastKnownUpdate
		}
	}
	return nil
}

func (s *Store) RecentlyUpdated(_ context.Context, worldIDs []int32, limit int) ([]model.RecencyRecord, error) {
	s.mu.RLock()
	out := make([]model.RecencyRecord, 0, len(s.recency))
	for k, ts := range s.recency {
		if len(worldIDs) > 0 && !slices.Contains(worldIDs, k.WorldID) {
			continue
		}
		out = append(out, model.RecencyRecord{WorldID: k.WorldID, ItemID: k.ItemID, LastKnownUpdate: ts})
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.RecencyRecord) int {
		switch {
		case a.LastKnownUpdate > b.LastKnownUpdate:
			return -1
		case a.LastKnownUpdate < b.LastKnownUpdate:
			return 1
		case a.WorldID != b.WorldID:
			return int(a.WorldID - b.WorldID)
		}
		return int(a.ItemID - b.ItemID)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
