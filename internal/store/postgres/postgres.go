// Package postgres implements store.Store on PostgreSQL via pgx.
//
// Tables (created by Migrate from schema.sql):
//   - retainers (id, world_id, name, external_id), unique (world_id, name)
//   - buyers (id, name), unique (name)
//   - listings (id, world_id, item_id, retainer_id, price_per_unit, quantity, hq, observed_at)
//   - sales (id, world_id, item_id, buyer_id, price_per_unit, quantity, hq, sold_at),
//     unique (world_id, item_id, buyer_id, hq, quantity, sold_at)
//   - recency (world_id, item_id, last_known_update), primary key (world_id, item_id)
//
// Timestamps are stored as integer microseconds since epoch.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
)

const uniqueViolation = "23505"

// Store is a store.Store backed by a pgx pool.
type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool. The store takes ownership and closes it on Close.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.db.Close()
}

// Ping verifies the pool is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Schema is the DDL applied by Migrate.
//
//go:embed schema.sql
var Schema string

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// -----------------------------------------------------------------------------
// Identities
// -----------------------------------------------------------------------------

func (s *Store) RetainersByName(ctx context.Context, worldID int32, names []string) (map[string]model.RetainerIdentity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, world_id, external_id
		FROM retainers
		WHERE world_id = $1 AND name = ANY($2)
	`, worldID, names)
	if err != nil {
		return nil, fmt.Errorf("query retainers: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RetainerIdentity, error) {
		var r model.RetainerIdentity
		err := row.Scan(&r.ID, &r.Name, &r.WorldID, &r.ExternalID)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan retainers: %w", err)
	}

	out := make(map[string]model.RetainerIdentity, len(list))
	for _, r := range list {
		out[r.Name] = r
	}
	return out, nil
}

func (s *Store) CreateRetainer(ctx context.Context, r model.RetainerIdentity) (model.RetainerIdentity, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO retainers (world_id, name, external_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, r.WorldID, r.Name, r.ExternalID).Scan(&r.ID)
	if err != nil {
		return model.RetainerIdentity{}, fmt.Errorf("insert retainer: %w", classify(err))
	}
	return r, nil
}

func (s *Store) BuyersByName(ctx context.Context, names []string) (map[string]model.BuyerIdentity, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM buyers WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("query buyers: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.BuyerIdentity])
	if err != nil {
		return nil, fmt.Errorf("scan buyers: %w", err)
	}

	out := make(map[string]model.BuyerIdentity, len(list))
	for _, b := range list {
		out[b.Name] = b
	}
	return out, nil
}

func (s *Store) CreateBuyer(ctx context.Context, name string) (model.BuyerIdentity, error) {
	b := model.BuyerIdentity{Name: name}
	err := s.db.QueryRow(ctx, `INSERT INTO buyers (name) VALUES ($1) RETURNING id`, name).Scan(&b.ID)
	if err != nil {
		return model.BuyerIdentity{}, fmt.Errorf("insert buyer: %w", classify(err))
	}
	return b, nil
}

// -----------------------------------------------------------------------------
// Listings
// -----------------------------------------------------------------------------

func (s *Store) Listings(ctx context.Context, key model.Key) ([]model.Listing, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.id, l.world_id, l.item_id, l.retainer_id, r.name,
		       l.price_per_unit, l.quantity, l.hq, l.observed_at
		FROM listings l
		JOIN retainers r ON r.id = l.retainer_id
		WHERE l.world_id = $1 AND l.item_id = $2
	`, key.WorldID, key.ItemID)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Listing])
	if err != nil {
		return nil, fmt.Errorf("scan listings: %w", err)
	}

	// Sorted in Go so ordering matches the diff comparator regardless of
	// the database collation.
	store.SortListings(out)
	return out, nil
}

func (s *Store) ReplaceListings(ctx context.Context, key model.Key, removeIDs []int64, add []model.Listing) (inserted []model.Listing, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if len(removeIDs) > 0 {
		if _, err = tx.Exec(ctx, `
			DELETE FROM listings
			WHERE world_id = $1 AND item_id = $2 AND id = ANY($3)
		`, key.WorldID, key.ItemID, removeIDs); err != nil {
			return nil, fmt.Errorf("delete listings: %w", err)
		}
	}

	if len(add) > 0 {
		batch := &pgx.Batch{}
		for _, l := range add {
			batch.Queue(`
				INSERT INTO listings (world_id, item_id, retainer_id, price_per_unit, quantity, hq, observed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, key.WorldID, key.ItemID, l.RetainerID, l.PricePerUnit, l.Quantity, l.HQ, l.ObservedAt)
		}

		results := tx.SendBatch(ctx, batch)
		inserted = make([]model.Listing, 0, len(add))
		for _, l := range add {
			l.WorldID, l.ItemID = key.WorldID, key.ItemID
			if err = results.QueryRow().Scan(&l.ID); err != nil {
				_ = results.Close()
				return nil, fmt.Errorf("insert listing: %w", err)
			}
			inserted = append(inserted, l)
		}
		if err = results.Close(); err != nil {
			return nil, fmt.Errorf("close batch: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// -----------------------------------------------------------------------------
// Sales
// -----------------------------------------------------------------------------

func (s *Store) RecentSales(ctx context.Context, key model.Key, limit int) ([]model.Sale, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.world_id, s.item_id, s.buyer_id, b.name,
		       s.price_per_unit, s.quantity, s.hq, s.sold_at
		FROM sales s
		JOIN buyers b ON b.id = s.buyer_id
		WHERE s.world_id = $1 AND s.item_id = $2
		ORDER BY s.sold_at DESC
		LIMIT $3
	`, key.WorldID, key.ItemID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Sale])
	if err != nil {
		return nil, fmt.Errorf("scan sales: %w", err)
	}
	return out, nil
}

// InsertSales uses pgx.Batch with ON CONFLICT DO NOTHING. Conflicting rows
// return no id and are left out of the result.
func (s *Store) InsertSales(ctx context.Context, sales []model.Sale) ([]model.Sale, error) {
	if len(sales) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, r := range sales {
		batch.Queue(`
			INSERT INTO sales (world_id, item_id, buyer_id, price_per_unit, quantity, hq, sold_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (world_id, item_id, buyer_id, hq, quantity, sold_at) DO NOTHING
			RETURNING id
		`, r.WorldID, r.ItemID, r.BuyerID, r.PricePerUnit, r.Quantity, r.HQ, r.SoldAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := make([]model.Sale, 0, len(sales))
	for _, r := range sales {
		err := results.QueryRow().Scan(&r.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert sale: %w", err)
		}
		inserted = append(inserted, r)
	}
	return inserted, nil
}

// -----------------------------------------------------------------------------
// Recency
// -----------------------------------------------------------------------------

func (s *Store) UpsertRecency(ctx context.Context, recs ...model.RecencyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(`
			INSERT INTO recency (world_id, item_id, last_known_update)
			VALUES ($1, $2, $3)
			ON CONFLICT (world_id, item_id) DO UPDATE
			SET last_known_update = GREATEST(recency.last_known_update, EXCLUDED.last_known_update)
		`, r.WorldID, r.ItemID, r.LastKnownUpdate)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range recs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert recency: %w", err)
		}
	}
	return nil
}

func (s *Store) RecentlyUpdated(ctx context.Context, worldIDs []int32, limit int) ([]model.RecencyRecord, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(worldIDs) == 0 {
		rows, err = s.db.Query(ctx, `
			SELECT world_id, item_id, last_known_update
			FROM recency
			ORDER BY last_known_update DESC, world_id, item_id
			LIMIT $1
		`, limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT world_id, item_id, last_known_update
			FROM recency
			WHERE world_id = ANY($1)
			ORDER BY last_known_update DESC, world_id, item_id
			LIMIT $2
		`, worldIDs, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query recency: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.RecencyRecord])
	if err != nil {
		return nil, fmt.Errorf("scan recency: %w", err)
	}
	return out, nil
}
