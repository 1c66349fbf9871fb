package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
	pg "github.com/rickgao/marketsync/internal/store/postgres"
)

const testSchema = `
CREATE TEMP TABLE retainers (
	id          BIGSERIAL PRIMARY KEY,
	world_id    INT NOT NULL,
	name        TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	UNIQUE (world_id, name)
);
CREATE TEMP TABLE buyers (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TEMP TABLE listings (
	id             BIGSERIAL PRIMARY KEY,
	world_id       INT NOT NULL,
	item_id        INT NOT NULL,
	retainer_id    BIGINT NOT NULL,
	price_per_unit INT NOT NULL,
	quantity       INT NOT NULL,
	hq             BOOLEAN NOT NULL,
	observed_at    BIGINT NOT NULL
);
CREATE TEMP TABLE sales (
	id             BIGSERIAL PRIMARY KEY,
	world_id       INT NOT NULL,
	item_id        INT NOT NULL,
	buyer_id       BIGINT NOT NULL,
	price_per_unit INT NOT NULL,
	quantity       INT NOT NULL,
	hq             BOOLEAN NOT NULL,
	sold_at        BIGINT NOT NULL,
	UNIQUE (world_id, item_id, buyer_id, hq, quantity, sold_at)
);
CREATE TEMP TABLE recency (
	world_id          INT NOT NULL,
	item_id           INT NOT NULL,
	last_known_update BIGINT NOT NULL,
	PRIMARY KEY (world_id, item_id)
);
`

// newTestStore connects to MARKETSYNC_TEST_DSN with a single connection so
// the temp tables are visible to every query.
func newTestStore(t *testing.T) *pg.Store {
	t.Helper()
	dsn := os.Getenv("MARKETSYNC_TEST_DSN")
	if dsn == "" {
		t.Skip("MARKETSYNC_TEST_DSN not set; integration test skipped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	s := pg.New(pool)
	t.Cleanup(s.Close)
	return s
}

func TestStore_Identities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.CreateRetainer(ctx, model.RetainerIdentity{Name: "Ret-A", WorldID: 73, ExternalID: "x1"})
	require.NoError(t, err)
	assert.NotZero(t, r.ID)

	_, err = s.CreateRetainer(ctx, model.RetainerIdentity{Name: "Ret-A", WorldID: 73})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.RetainersByName(ctx, 73, []string{"Ret-A", "Missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.RetainerIdentity{"Ret-A": r}, got)

	b, err := s.CreateBuyer(ctx, "Buyer")
	require.NoError(t, err)
	_, err = s.CreateBuyer(ctx, "Buyer")
	assert.ErrorIs(t, err, store.ErrConflict)

	buyers, err := s.BuyersByName(ctx, []string{"Buyer"})
	require.NoError(t, err)
	assert.Equal(t, b, buyers["Buyer"])
}

func TestStore_ReplaceListings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := model.Key{WorldID: 73, ItemID: 5}

	ra, err := s.CreateRetainer(ctx, model.RetainerIdentity{Name: "A", WorldID: 73})
	require.NoError(t, err)
	rb, err := s.CreateRetainer(ctx, model.RetainerIdentity{Name: "B", WorldID: 73})
	require.NoError(t, err)

	ins, err := s.ReplaceListings(ctx, key, nil, []model.Listing{
		{RetainerID: rb.ID, RetainerName: "B", PricePerUnit: 200, Quantity: 1},
		{RetainerID: ra.ID, RetainerName: "A", PricePerUnit: 100, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, ins, 2)

	got, err := s.Listings(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].RetainerName)

	_, err = s.ReplaceListings(ctx, key, []int64{got[0].ID}, nil)
	require.NoError(t, err)

	got, err = s.Listings(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].RetainerName)
}

func TestStore_SalesAndRecency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := model.Key{WorldID: 73, ItemID: 5}

	b, err := s.CreateBuyer(ctx, "Buyer")
	require.NoError(t, err)

	sale := model.Sale{WorldID: 73, ItemID: 5, BuyerID: b.ID, PricePerUnit: 10, Quantity: 1, SoldAt: 1_000_000}
	ins, err := s.InsertSales(ctx, []model.Sale{sale})
	require.NoError(t, err)
	require.Len(t, ins, 1)

	ins, err = s.InsertSales(ctx, []model.Sale{sale})
	require.NoError(t, err)
	assert.Empty(t, ins)

	recent, err := s.RecentSales(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Buyer", recent[0].BuyerName)

	require.NoError(t, s.UpsertRecency(ctx, model.RecencyRecord{WorldID: 73, ItemID: 5, LastKnownUpdate: 200}))
	require.NoError(t, s.UpsertRecency(ctx, model.RecencyRecord{WorldID: 73, ItemID: 5, LastKnownUpdate: 100}))

	recs, err := s.RecentlyUpdated(ctx, []int32{73}, 10)
	require.NoError(t, err)
	assert.Equal(t, []model.RecencyRecord{{WorldID: 73, ItemID: 5, LastKnownUpdate: 200}}, recs)
}
