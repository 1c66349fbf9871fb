// Package worlds holds the read-only Region → Datacenter → World hierarchy.
//
// The hierarchy is stored as three flat arenas that reference each other by
// index. A Cache is built once from a Dataset and never mutated afterwards,
// so any number of goroutines may read it without locking.
package worlds

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/cases"
)

// Sentinel errors.
var (
	ErrNotFound       = errors.New("worlds: not found")
	ErrInvalidDataset = errors.New("worlds: invalid dataset")
)

// Level is the depth of a node in the hierarchy.
type Level uint8

const (
	LevelRegion Level = iota + 1
	LevelDatacenter
	LevelWorld
)

func (l Level) String() string {
	switch l {
	case LevelRegion:
		return "region"
	case LevelDatacenter:
		return "datacenter"
	case LevelWorld:
		return "world"
	default:
		return "unknown"
	}
}

// Ref names a node by level and stable id.
type Ref struct {
	Level Level
	ID    int32
}

// WorldRef is shorthand for a world reference.
func WorldRef(id int32) Ref { return Ref{Level: LevelWorld, ID: id} }

// Region is a top-level node.
type Region struct {
	ID   int32
	Name string
}

// Datacenter groups worlds within a region.
type Datacenter struct {
	ID       int32
	Name     string
	RegionID int32
}

// World is a leaf node.
type World struct {
	ID           int32
	Name         string
	DatacenterID int32
}

// Dataset is the flat input a Cache is built from.
type Dataset struct {
	Regions     []Region
	Datacenters []Datacenter
	Worlds      []World
}

// Source produces the reference dataset.
type Source interface {
	Dataset(ctx context.Context) (Dataset, error)
}

type regionNode struct {
	Region
	datacenters []int
	worlds      []int
}

type datacenterNode struct {
	Datacenter
	region int
	worlds []int
}

type worldNode struct {
	World
	datacenter int
}

// Cache is the immutable hierarchy.
type Cache struct {
	regions     []regionNode
	datacenters []datacenterNode
	worlds      []worldNode

	regionIdx     map[int32]int
	datacenterIdx map[int32]int
	worldIdx      map[int32]int

	// Case-folded names, one map per level. Upstream reuses a name across
	// levels (the Korean region and its only datacenter), so names are only
	// unique within a level.
	names [LevelWorld + 1]map[string]int32
}

// Load fetches a dataset from src and builds a Cache from it.
func Load(ctx context.Context, src Source) (*Cache, error) {
	ds, err := src.Dataset(ctx)
	if err != nil {
		return nil, fmt.Errorf("load world dataset: %w", err)
	}
	return New(ds)
}

// New builds a Cache. Ids and case-folded names must be unique per level, and
// every parent reference must resolve. The same name may appear on different
// levels.
func New(ds Dataset) (*Cache, error) {
	c := &Cache{
		regions:       make([]regionNode, 0, len(ds.Regions)),
		datacenters:   make([]datacenterNode, 0, len(ds.Datacenters)),
		worlds:        make([]worldNode, 0, len(ds.Worlds)),
		regionIdx:     make(map[int32]int, len(ds.Regions)),
		datacenterIdx: make(map[int32]int, len(ds.Datacenters)),
		worldIdx:      make(map[int32]int, len(ds.Worlds)),
	}
	c.names[LevelRegion] = make(map[string]int32, len(ds.Regions))
	c.names[LevelDatacenter] = make(map[string]int32, len(ds.Datacenters))
	c.names[LevelWorld] = make(map[string]int32, len(ds.Worlds))
	fold := cases.Fold()

	addName := func(name string, ref Ref) error {
		key := fold.String(name)
		if key == "" {
			return fmt.Errorf("%w: %s %d has no name", ErrInvalidDataset, ref.Level, ref.ID)
		}
		names := c.names[ref.Level]
		if prev, ok := names[key]; ok {
			return fmt.Errorf("%w: name %q used by %s %d and %s %d",
				ErrInvalidDataset, name, ref.Level, prev, ref.Level, ref.ID)
		}
		names[key] = ref.ID
		return nil
	}

	for _, r := range ds.Regions {
		if _, dup := c.regionIdx[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate region id %d", ErrInvalidDataset, r.ID)
		}
		if err := addName(r.Name, Ref{LevelRegion, r.ID}); err != nil {
			return nil, err
		}
		c.regionIdx[r.ID] = len(c.regions)
		c.regions = append(c.regions, regionNode{Region: r})
	}

	for _, d := range ds.Datacenters {
		if _, dup := c.datacenterIdx[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate datacenter id %d", ErrInvalidDataset, d.ID)
		}
		ri, ok := c.regionIdx[d.RegionID]
		if !ok {
			return nil, fmt.Errorf("%w: datacenter %q references unknown region %d", ErrInvalidDataset, d.Name, d.RegionID)
		}
		if err := addName(d.Name, Ref{LevelDatacenter, d.ID}); err != nil {
			return nil, err
		}
		di := len(c.datacenters)
		c.datacenterIdx[d.ID] = di
		c.datacenters = append(c.datacenters, datacenterNode{Datacenter: d, region: ri})
		c.regions[ri].datacenters = append(c.regions[ri].datacenters, di)
	}

	for _, w := range ds.Worlds {
		if _, dup := c.worldIdx[w.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate world id %d", ErrInvalidDataset, w.ID)
		}
		di, ok := c.datacenterIdx[w.DatacenterID]
		if !ok {
			return nil, fmt.Errorf("%w: world %q references unknown datacenter %d", ErrInvalidDataset, w.Name, w.DatacenterID)
		}
		if err := addName(w.Name, Ref{LevelWorld, w.ID}); err != nil {
			return nil, err
		}
		wi := len(c.worlds)
		c.worldIdx[w.ID] = wi
		c.worlds = append(c.worlds, worldNode{World: w, datacenter: di})
		c.datacenters[di].worlds = append(c.datacenters[di].worlds, wi)
		ri := c.datacenters[di].region
		c.regions[ri].worlds = append(c.regions[ri].worlds, wi)
	}

	return c, nil
}

// Region looks up a region by id.
func (c *Cache) Region(id int32) (Region, bool) {
	i, ok := c.regionIdx[id]
	if !ok {
		return Region{}, false
	}
	return c.regions[i].Region, true
}

// Datacenter looks up a datacenter by id.
func (c *Cache) Datacenter(id int32) (Datacenter, bool) {
	i, ok := c.datacenterIdx[id]
	if !ok {
		return Datacenter{}, false
	}
	return c.datacenters[i].Datacenter, true
}

// World looks up a world by id.
func (c *Cache) World(id int32) (World, bool) {
	i, ok := c.worldIdx[id]
	if !ok {
		return World{}, false
	}
	return c.worlds[i].World, true
}

// Contains reports whether ref names a node in the cache.
func (c *Cache) Contains(ref Ref) bool {
	_, ok := c.index(ref)
	return ok
}

// Name returns the display name of ref.
func (c *Cache) Name(ref Ref) (string, bool) {
	i, ok := c.index(ref)
	if !ok {
		return "", false
	}
	switch ref.Level {
	case LevelRegion:
		return c.regions[i].Name, true
	case LevelDatacenter:
		return c.datacenters[i].Name, true
	default:
		return c.worlds[i].Name, true
	}
}

// ByName finds a node by case-insensitive name. A name used on several
// levels resolves to the highest one: region, then datacenter, then world.
func (c *Cache) ByName(name string) (Ref, bool) {
	key := cases.Fold().String(name)
	for level := LevelRegion; level <= LevelWorld; level++ {
		if id, ok := c.names[level][key]; ok {
			return Ref{Level: level, ID: id}, true
		}
	}
	return Ref{}, false
}

// ByNameAt finds a node of the given level by case-insensitive name.
func (c *Cache) ByNameAt(name string, level Level) (Ref, bool) {
	if level < LevelRegion || level > LevelWorld {
		return Ref{}, false
	}
	id, ok := c.names[level][cases.Fold().String(name)]
	if !ok {
		return Ref{}, false
	}
	return Ref{Level: level, ID: id}, true
}

// Resolve is ByName with an error for unknown names.
func (c *Cache) Resolve(name string) (Ref, error) {
	ref, ok := c.ByName(name)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return ref, nil
}

// AllWorldsUnder returns every world at or below ref, in dataset order.
func (c *Cache) AllWorldsUnder(ref Ref) []World {
	i, ok := c.index(ref)
	if !ok {
		return nil
	}
	var idx []int
	switch ref.Level {
	case LevelRegion:
		idx = c.regions[i].worlds
	case LevelDatacenter:
		idx = c.datacenters[i].worlds
	default:
		return []World{c.worlds[i].World}
	}
	out := make([]World, len(idx))
	for n, wi := range idx {
		out[n] = c.worlds[wi].World
	}
	return out
}

// DatacentersUnder returns the datacenters at or below ref. A world yields
// the datacenter it belongs to.
func (c *Cache) DatacentersUnder(ref Ref) []Datacenter {
	i, ok := c.index(ref)
	if !ok {
		return nil
	}
	switch ref.Level {
	case LevelRegion:
		out := make([]Datacenter, len(c.regions[i].datacenters))
		for n, di := range c.regions[i].datacenters {
			out[n] = c.datacenters[di].Datacenter
		}
		return out
	case LevelDatacenter:
		return []Datacenter{c.datacenters[i].Datacenter}
	default:
		return []Datacenter{c.datacenters[c.worlds[i].datacenter].Datacenter}
	}
}

// RegionOf returns the region containing ref.
func (c *Cache) RegionOf(ref Ref) (Region, bool) {
	i, ok := c.index(ref)
	if !ok {
		return Region{}, false
	}
	switch ref.Level {
	case LevelRegion:
		return c.regions[i].Region, true
	case LevelDatacenter:
		return c.regions[c.datacenters[i].region].Region, true
	default:
		di := c.worlds[i].datacenter
		return c.regions[c.datacenters[di].region].Region, true
	}
}

// IsIn reports whether a equals b or is a descendant of b. It is false when
// either side does not resolve.
func (c *Cache) IsIn(a, b Ref) bool {
	ai, ok := c.index(a)
	if !ok {
		return false
	}
	bi, ok := c.index(b)
	if !ok {
		return false
	}
	if a.Level < b.Level {
		return false
	}

	// Walk a up to b's level, then compare positions.
	level, pos := a.Level, ai
	for level > b.Level {
		switch level {
		case LevelWorld:
			pos = c.worlds[pos].datacenter
		case LevelDatacenter:
			pos = c.datacenters[pos].region
		}
		level--
	}
	return pos == bi
}

// Regions returns every region in dataset order.
func (c *Cache) Regions() []Region {
	out := make([]Region, len(c.regions))
	for i := range c.regions {
		out[i] = c.regions[i].Region
	}
	return out
}

// Worlds returns every world in dataset order.
func (c *Cache) Worlds() []World {
	out := make([]World, len(c.worlds))
	for i := range c.worlds {
		out[i] = c.worlds[i].World
	}
	return out
}

func (c *Cache) index(ref Ref) (int, bool) {
	var (
		i  int
		ok bool
	)
	switch ref.Level {
	case LevelRegion:
		i, ok = c.regionIdx[ref.ID]
	case LevelDatacenter:
		i, ok = c.datacenterIdx[ref.ID]
	case LevelWorld:
		i, ok = c.worldIdx[ref.ID]
	}
	return i, ok
}
