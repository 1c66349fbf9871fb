package api

import (
	"context"
	"fmt"

	"github.com/rickgao/marketsync/internal/worlds"
)

// DataCenters fetches every datacenter with its region and world ids.
func (c *Client) DataCenters(ctx context.Context) ([]DataCenterView, error) {
	var resp []DataCenterView
	if err := c.get(ctx, "/data-centers", nil, &resp); err != nil {
		return nil, fmt.Errorf("get data centers: %w", err)
	}
	return resp, nil
}

// Worlds fetches every world id and name.
func (c *Client) Worlds(ctx context.Context) ([]WorldView, error) {
	var resp []WorldView
	if err := c.get(ctx, "/worlds", nil, &resp); err != nil {
		return nil, fmt.Errorf("get worlds: %w", err)
	}
	return resp, nil
}

// Dataset builds the world hierarchy from /data-centers and /worlds, so a
// Client can serve as a worlds.Source.
func (c *Client) Dataset(ctx context.Context) (worlds.Dataset, error) {
	dcs, err := c.DataCenters(ctx)
	if err != nil {
		return worlds.Dataset{}, err
	}
	ws, err := c.Worlds(ctx)
	if err != nil {
		return worlds.Dataset{}, err
	}
	return BuildDataset(dcs, ws), nil
}
