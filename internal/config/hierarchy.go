package config

import (
	"context"

	"github.com/rickgao/marketsync/internal/worlds"
)

// Dataset flattens the statically configured hierarchy. It lets a
// HierarchyConfig serve as a worlds.Source.
func (h HierarchyConfig) Dataset(context.Context) (worlds.Dataset, error) {
	var ds worlds.Dataset
	for _, r := range h.Regions {
		ds.Regions = append(ds.Regions, worlds.Region{ID: r.ID, Name: r.Name})
		for _, dc := range r.Datacenters {
			ds.Datacenters = append(ds.Datacenters, worlds.Datacenter{ID: dc.ID, Name: dc.Name, RegionID: r.ID})
			for _, w := range dc.Worlds {
				ds.Worlds = append(ds.Worlds, worlds.World{ID: w.ID, Name: w.Name, DatacenterID: dc.ID})
			}
		}
	}
	return ds, nil
}
