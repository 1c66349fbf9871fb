package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/worlds"
)

// MaxItemsPerRequest is the upstream cap on item ids per market data request.
const MaxItemsPerRequest = 100

var (
	// ErrNoItems is returned when a market data request names no items.
	ErrNoItems = errors.New("no item ids")

	// ErrTooManyItems is returned when a request exceeds MaxItemsPerRequest.
	ErrTooManyItems = errors.New("too many item ids")

	// ErrUnsupportedLevel is returned for a recently updated query on a
	// region.
	ErrUnsupportedLevel = errors.New("recently updated accepts a world or datacenter")
)

// MarketData fetches current listings and recent sales for itemIDs on a
// world, datacenter or region.
func (c *Client) MarketData(ctx context.Context, worldOrDC string, itemIDs []int32) (*MarketView, error) {
	switch {
	case len(itemIDs) == 0:
		return nil, ErrNoItems
	case len(itemIDs) > MaxItemsPerRequest:
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(itemIDs), MaxItemsPerRequest)
	}

	ids := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		ids[i] = strconv.FormatInt(int64(id), 10)
	}
	path := "/" + url.PathEscape(worldOrDC) + "/" + strings.Join(ids, ",")

	body, err := c.doWithRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get market data %s: %w", worldOrDC, err)
	}

	// A single id returns the bare item rather than the multi-item shape.
	if len(itemIDs) == 1 {
		var item MarketItem
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, fmt.Errorf("unmarshal market data: %w", err)
		}
		return &MarketView{
			ItemIDs: []int32{item.ItemID},
			Items:   map[int32]MarketItem{item.ItemID: item},
		}, nil
	}

	var view MarketView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("unmarshal market data: %w", err)
	}
	return &view, nil
}

// RecentlyUpdated fetches the boards most recently uploaded on a world or
// datacenter, newest first. level selects the query filter; the zero Level
// means a world. Upstream has no region filter. entries is capped upstream
// at 200.
func (c *Client) RecentlyUpdated(ctx context.Context, name string, level worlds.Level, entries int) ([]model.RecentItem, error) {
	query := url.Values{}
	switch level {
	case 0, worlds.LevelWorld:
		query.Set("world", name)
	case worlds.LevelDatacenter:
		query.Set("datacenter", name)
	default:
		return nil, fmt.Errorf("recently updated %s: %w", name, ErrUnsupportedLevel)
	}
	if entries > 0 {
		query.Set("entries", strconv.Itoa(entries))
	}

	var resp RecentlyUpdatedResponse
	if err := c.get(ctx, "/extra/stats/most-recently-updated", query, &resp); err != nil {
		return nil, fmt.Errorf("get recently updated %s: %w", name, err)
	}

	out := make([]model.RecentItem, len(resp.Items))
	for i, it := range resp.Items {
		out[i] = it.ToModel()
	}
	return out, nil
}

// Marketable fetches every item id that can be listed on a market board.
func (c *Client) Marketable(ctx context.Context) ([]int32, error) {
	var ids []int32
	if err := c.get(ctx, "/marketable", nil, &ids); err != nil {
		return nil, fmt.Errorf("get marketable: %w", err)
	}
	return ids, nil
}
