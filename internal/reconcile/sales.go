package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
)

// DefaultSaleWindow is how many recent stored sales incoming sales are
// checked against.
const DefaultSaleWindow = 50

// SaleStore is the persistence a SaleRecorder needs.
type SaleStore interface {
	store.IdentityStore
	store.SaleStore
}

// SaleRecorder appends new sales, skipping those already stored.
type SaleRecorder struct {
	store  SaleStore
	window int
	logger *slog.Logger
	group  singleflight.Group
}

// NewSaleRecorder creates a SaleRecorder comparing against the last window
// stored sales. window <= 0 uses DefaultSaleWindow.
func NewSaleRecorder(s SaleStore, window int, logger *slog.Logger) *SaleRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultSaleWindow
	}
	return &SaleRecorder{
		store:  s,
		window: window,
		logger: logger.With("component", "sale_recorder"),
	}
}

// RecordSales stores the entries of incoming that are new for
// (worldID, itemID) and returns them. A sale is new when its
// (hq, buyer, quantity, sold_at second) tuple matches neither a recently
// stored sale nor an earlier entry of the same batch.
//
// Survivors that share a timestamp are nudged forward by 1µs so stored
// times are strictly increasing within the batch.
func (r *SaleRecorder) RecordSales(ctx context.Context, worldID, itemID int32, incoming []model.SaleSnapshot) ([]model.Sale, error) {
	key := model.Key{WorldID: worldID, ItemID: itemID}
	if len(incoming) == 0 {
		return nil, nil
	}

	buyers, err := r.resolveBuyers(ctx, incoming)
	if err != nil {
		return nil, fmt.Errorf("record sales %s: %w", key, err)
	}

	recent, err := r.store.RecentSales(ctx, key, r.window)
	if err != nil {
		return nil, fmt.Errorf("record sales %s: %w", key, err)
	}

	seen := make(map[model.SaleIdentity]struct{}, len(recent)+len(incoming))
	for _, s := range recent {
		seen[s.Identity()] = struct{}{}
	}

	ordered := slices.Clone(incoming)
	slices.SortStableFunc(ordered, func(a, b model.SaleSnapshot) int {
		switch {
		case a.SoldAt < b.SoldAt:
			return -1
		case a.SoldAt > b.SoldAt:
			return 1
		}
		return 0
	})

	fresh := make([]model.Sale, 0, len(ordered))
	for _, s := range ordered {
		id := s.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		fresh = append(fresh, model.Sale{
			WorldID:      worldID,
			ItemID:       itemID,
			BuyerID:      buyers[s.BuyerName].ID,
			BuyerName:    s.BuyerName,
			PricePerUnit: s.PricePerUnit,
			Quantity:     s.Quantity,
			HQ:           s.HQ,
			SoldAt:       s.SoldAt,
		})
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	for i := 1; i < len(fresh); i++ {
		if fresh[i].SoldAt <= fresh[i-1].SoldAt {
			fresh[i].SoldAt = fresh[i-1].SoldAt + 1
		}
	}

	inserted, err := r.store.InsertSales(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("record sales %s: %w", key, err)
	}

	r.logger.Debug("sales recorded",
		"world_id", worldID,
		"item_id", itemID,
		"incoming", len(incoming),
		"inserted", len(inserted),
	)
	return inserted, nil
}

func (r *SaleRecorder) resolveBuyers(ctx context.Context, sales []model.SaleSnapshot) (map[string]model.BuyerIdentity, error) {
	names := make([]string, 0, len(sales))
	for _, s := range sales {
		if !slices.Contains(names, s.BuyerName) {
			names = append(names, s.BuyerName)
		}
	}

	known, err := r.store.BuyersByName(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("lookup buyers: %w", err)
	}

	for _, name := range names {
		if _, ok := known[name]; ok {
			continue
		}
		got, _, err := createOrFetch(ctx, &r.group, name,
			func(ctx context.Context) (model.BuyerIdentity, error) {
				return r.store.CreateBuyer(ctx, name)
			},
			func(ctx context.Context) (model.BuyerIdentity, bool, error) {
				m, err := r.store.BuyersByName(ctx, []string{name})
				b, ok := m[name]
				return b, ok, err
			},
		)
		if err != nil {
			return nil, fmt.Errorf("create buyer %q: %w", name, err)
		}
		known[name] = got
	}
	return known, nil
}
