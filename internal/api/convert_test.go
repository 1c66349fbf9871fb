package api

import (
	"testing"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/worlds"
)

func int32p(v int32) *int32 { return &v }

func TestSecondsToMicro(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{0, 0},
		{-5, 0},
		{1, 1_000_000},
		{1700000000, 1700000000_000_000},
	}

	for _, tt := range tests {
		if got := SecondsToMicro(tt.in); got != tt.want {
			t.Errorf("SecondsToMicro(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMillisToMicro(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{0, 0},
		{-1, 0},
		{1, 1_000},
		{1700000000123, 1700000000123_000},
	}

	for _, tt := range tests {
		if got := MillisToMicro(tt.in); got != tt.want {
			t.Errorf("MillisToMicro(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestListingView_ToSnapshot(t *testing.T) {
	l := ListingView{
		LastReviewTime: 1700000000,
		PricePerUnit:   1200,
		Quantity:       3,
		HQ:             true,
		RetainerID:     "ext-1",
		RetainerName:   "Ret-A",
	}

	got := l.ToSnapshot()
	want := model.ListingSnapshot{
		RetainerName:       "Ret-A",
		RetainerExternalID: "ext-1",
		PricePerUnit:       1200,
		Quantity:           3,
		HQ:                 true,
		ReviewedAt:         1700000000_000_000,
	}
	if got != want {
		t.Errorf("ToSnapshot() = %+v, want %+v", got, want)
	}
}

func TestSaleView_ToSnapshot(t *testing.T) {
	s := SaleView{PricePerUnit: 40, Quantity: 2, Timestamp: 1700000100, BuyerName: "Buyer"}

	got := s.ToSnapshot()
	if got.BuyerName != "Buyer" || got.PricePerUnit != 40 || got.Quantity != 2 {
		t.Errorf("ToSnapshot() = %+v", got)
	}
	if got.SoldAt != 1700000100_000_000 {
		t.Errorf("SoldAt = %d, want %d", got.SoldAt, int64(1700000100_000_000))
	}
}

func TestListingsByWorld(t *testing.T) {
	t.Run("datacenter query groups by world", func(t *testing.T) {
		m := MarketItem{
			ItemID: 5,
			Listings: []ListingView{
				{PricePerUnit: 10, WorldID: int32p(73), RetainerName: "A"},
				{PricePerUnit: 20, WorldID: int32p(79), RetainerName: "B"},
				{PricePerUnit: 30, WorldID: int32p(73), RetainerName: "C"},
			},
		}

		got := m.ListingsByWorld(0, 73, 79, 80)
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if len(got[73]) != 2 {
			t.Errorf("len(got[73]) = %d, want 2", len(got[73]))
		}
		if len(got[79]) != 1 {
			t.Errorf("len(got[79]) = %d, want 1", len(got[79]))
		}
		if l, ok := got[80]; !ok || len(l) != 0 {
			t.Errorf("got[80] = %v, %v; want present and empty", l, ok)
		}
	})

	t.Run("world query uses fallback", func(t *testing.T) {
		m := MarketItem{
			ItemID:   5,
			Listings: []ListingView{{PricePerUnit: 10, RetainerName: "A"}},
		}

		got := m.ListingsByWorld(73)
		if len(got[73]) != 1 {
			t.Errorf("len(got[73]) = %d, want 1", len(got[73]))
		}
	})

	t.Run("empty board still reports fallback", func(t *testing.T) {
		m := MarketItem{ItemID: 5}
		got := m.ListingsByWorld(73)
		if _, ok := got[73]; !ok {
			t.Error("fallback world should be present")
		}
	})
}

func TestSalesByWorld(t *testing.T) {
	m := MarketItem{
		RecentHistory: []SaleView{
			{BuyerName: "X", WorldID: int32p(79)},
			{BuyerName: "Y"},
		},
	}

	got := m.SalesByWorld(73)
	if len(got[79]) != 1 || got[79][0].BuyerName != "X" {
		t.Errorf("got[79] = %+v", got[79])
	}
	if len(got[73]) != 1 || got[73][0].BuyerName != "Y" {
		t.Errorf("got[73] = %+v", got[73])
	}
}

func TestBuildDataset(t *testing.T) {
	dcs := []DataCenterView{
		{Name: "Aether", Region: "North-America", Worlds: []int32{73, 79}},
		{Name: "Crystal", Region: "North-America", Worlds: []int32{91, 73}},
		{Name: "Light", Region: "Europe", Worlds: []int32{33}},
	}
	ws := []WorldView{
		{ID: 73, Name: "Adamantoise"},
		{ID: 79, Name: "Cactuar"},
		{ID: 91, Name: "Balmung"},
		{ID: 33, Name: "Twintania"},
	}

	ds := BuildDataset(dcs, ws)

	if len(ds.Regions) != 2 {
		t.Fatalf("len(Regions) = %d, want 2", len(ds.Regions))
	}
	if ds.Regions[0].Name != "North-America" || ds.Regions[0].ID != 1 {
		t.Errorf("Regions[0] = %+v", ds.Regions[0])
	}
	if ds.Regions[1].Name != "Europe" || ds.Regions[1].ID != 2 {
		t.Errorf("Regions[1] = %+v", ds.Regions[1])
	}
	if len(ds.Datacenters) != 3 {
		t.Fatalf("len(Datacenters) = %d, want 3", len(ds.Datacenters))
	}
	if ds.Datacenters[1].RegionID != 1 || ds.Datacenters[2].RegionID != 2 {
		t.Errorf("Datacenters = %+v", ds.Datacenters)
	}

	// 73 appears twice; only the first placement counts.
	if len(ds.Worlds) != 4 {
		t.Fatalf("len(Worlds) = %d, want 4", len(ds.Worlds))
	}
	for _, w := range ds.Worlds {
		if w.ID == 73 && w.DatacenterID != 1 {
			t.Errorf("world 73 DatacenterID = %d, want 1", w.DatacenterID)
		}
	}
}

func TestBuildDataset_RegionNamedLikeDatacenter(t *testing.T) {
	dcs := []DataCenterView{
		{Name: "Aether", Region: "North-America", Worlds: []int32{73}},
		{Name: "한국", Region: "한국", Worlds: []int32{2075, 2076}},
	}
	ws := []WorldView{
		{ID: 73, Name: "Adamantoise"},
		{ID: 2075, Name: "카벙클"},
		{ID: 2076, Name: "초코보"},
	}

	cache, err := worlds.New(BuildDataset(dcs, ws))
	if err != nil {
		t.Fatalf("worlds.New() error = %v", err)
	}

	ref, err := cache.Resolve("한국")
	if err != nil {
		t.Fatalf("Resolve(한국) error = %v", err)
	}
	if ref.Level != worlds.LevelRegion {
		t.Errorf("Resolve(한국).Level = %v, want region", ref.Level)
	}
	if got := len(cache.AllWorldsUnder(ref)); got != 2 {
		t.Errorf("len(AllWorldsUnder(한국)) = %d, want 2", got)
	}
	dc, ok := cache.ByNameAt("한국", worlds.LevelDatacenter)
	if !ok || !cache.IsIn(worlds.WorldRef(2076), dc) {
		t.Errorf("ByNameAt(한국, datacenter) = %+v, %v", dc, ok)
	}
}
