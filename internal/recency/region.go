package recency

import (
	"fmt"

	"github.com/rickgao/marketsync/internal/worlds"
)

// Region is a tracked upstream query target: a world or datacenter and the
// worlds it covers.
type Region struct {
	Name   string
	Level  worlds.Level // World or datacenter; zero means world
	Worlds []int32
}

// WorldIDs returns the worlds the region covers.
func (r Region) WorldIDs() []int32 {
	return r.Worlds
}

// Fallback is the world assigned to snapshot rows that carry no world id,
// which only happens for single-world queries.
func (r Region) Fallback() int32 {
	if len(r.Worlds) == 0 {
		return 0
	}
	return r.Worlds[0]
}

// Regions resolves configured names against the hierarchy. With no names,
// every world is tracked as its own region. A name that resolves to a
// hierarchy region is tracked as one target per datacenter under it, since
// the recently updated endpoint only filters by world or datacenter.
func Regions(cache *worlds.Cache, names []string) ([]Region, error) {
	if len(names) == 0 {
		all := cache.Worlds()
		out := make([]Region, len(all))
		for i, w := range all {
			out[i] = Region{Name: w.Name, Level: worlds.LevelWorld, Worlds: []int32{w.ID}}
		}
		return out, nil
	}

	out := make([]Region, 0, len(names))
	for _, name := range names {
		ref, err := cache.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("recency region %q: %w", name, err)
		}
		if ref.Level == worlds.LevelRegion {
			for _, dc := range cache.DatacentersUnder(ref) {
				out = append(out, target(cache, worlds.Ref{Level: worlds.LevelDatacenter, ID: dc.ID}))
			}
			continue
		}
		out = append(out, target(cache, ref))
	}
	return out, nil
}

func target(cache *worlds.Cache, ref worlds.Ref) Region {
	name, _ := cache.Name(ref)
	ws := cache.AllWorldsUnder(ref)
	ids := make([]int32, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	return Region{Name: name, Level: ref.Level, Worlds: ids}
}
