package api

import (
	"time"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/worlds"
)

// SecondsToMicro converts unix seconds to microseconds since epoch.
// Returns 0 for non-positive input.
func SecondsToMicro(s int64) int64 {
	if s <= 0 {
		return 0
	}
	return s * int64(time.Second/time.Microsecond)
}

// MillisToMicro converts unix milliseconds to microseconds since epoch.
func MillisToMicro(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return ms * int64(time.Millisecond/time.Microsecond)
}

// ToSnapshot converts a ListingView to a model.ListingSnapshot.
func (l *ListingView) ToSnapshot() model.ListingSnapshot {
	return model.ListingSnapshot{
		RetainerName:       l.RetainerName,
		RetainerExternalID: l.RetainerID,
		PricePerUnit:       l.PricePerUnit,
		Quantity:           l.Quantity,
		HQ:                 l.HQ,
		ReviewedAt:         SecondsToMicro(l.LastReviewTime),
	}
}

// ToSnapshot converts a SaleView to a model.SaleSnapshot.
func (s *SaleView) ToSnapshot() model.SaleSnapshot {
	return model.SaleSnapshot{
		BuyerName:    s.BuyerName,
		PricePerUnit: s.PricePerUnit,
		Quantity:     s.Quantity,
		HQ:           s.HQ,
		SoldAt:       SecondsToMicro(s.Timestamp),
	}
}

// ToModel converts a WorldItemRecency to a model.RecentItem.
func (w *WorldItemRecency) ToModel() model.RecentItem {
	return model.RecentItem{
		WorldID:    w.WorldID,
		ItemID:     w.ItemID,
		UploadedAt: MillisToMicro(w.LastUploadTime),
	}
}

// ListingsByWorld groups the item's listings by world. Listings without a
// world id, as returned by single-world queries, go to fallback.
//
// Every world in worldIDs gets an entry even when it has no listings, so a
// board that emptied upstream is reconciled to empty.
func (m *MarketItem) ListingsByWorld(fallback int32, worldIDs ...int32) map[int32][]model.ListingSnapshot {
	out := make(map[int32][]model.ListingSnapshot, len(worldIDs)+1)
	for _, w := range worldIDs {
		out[w] = nil
	}
	if len(worldIDs) == 0 {
		out[fallback] = nil
	}
	for i := range m.Listings {
		w := fallback
		if m.Listings[i].WorldID != nil {
			w = *m.Listings[i].WorldID
		}
		out[w] = append(out[w], m.Listings[i].ToSnapshot())
	}
	return out
}

// SalesByWorld groups the item's recent sales by world.
func (m *MarketItem) SalesByWorld(fallback int32) map[int32][]model.SaleSnapshot {
	out := make(map[int32][]model.SaleSnapshot)
	for i := range m.RecentHistory {
		w := fallback
		if m.RecentHistory[i].WorldID != nil {
			w = *m.RecentHistory[i].WorldID
		}
		out[w] = append(out[w], m.RecentHistory[i].ToSnapshot())
	}
	return out
}

// BuildDataset assembles a hierarchy from the /data-centers and /worlds
// responses. Regions and datacenters have no upstream ids, so they are
// numbered from 1 in first-seen order. Worlds missing from either response
// are left out.
func BuildDataset(dcs []DataCenterView, ws []WorldView) worlds.Dataset {
	names := make(map[int32]string, len(ws))
	for _, w := range ws {
		names[w.ID] = w.Name
	}

	var ds worlds.Dataset
	regionIDs := make(map[string]int32)
	placed := make(map[int32]bool)

	for _, dc := range dcs {
		rid, ok := regionIDs[dc.Region]
		if !ok {
			rid = int32(len(regionIDs) + 1)
			regionIDs[dc.Region] = rid
			ds.Regions = append(ds.Regions, worlds.Region{ID: rid, Name: dc.Region})
		}

		dcID := int32(len(ds.Datacenters) + 1)
		ds.Datacenters = append(ds.Datacenters, worlds.Datacenter{ID: dcID, Name: dc.Name, RegionID: rid})

		for _, wid := range dc.Worlds {
			name, ok := names[wid]
			if !ok || placed[wid] {
				continue
			}
			placed[wid] = true
			ds.Worlds = append(ds.Worlds, worlds.World{ID: wid, Name: name, DatacenterID: dcID})
		}
	}
	return ds
}
