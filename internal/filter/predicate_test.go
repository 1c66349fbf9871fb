package filter

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/worlds"
)

func testCache(t *testing.T) *worlds.Cache {
	t.Helper()
	c, err := worlds.New(worlds.Dataset{
		Regions:     []worlds.Region{{ID: 1, Name: "North-America"}, {ID: 2, Name: "Japan"}},
		Datacenters: []worlds.Datacenter{{ID: 10, Name: "Aether", RegionID: 1}, {ID: 20, Name: "Elemental", RegionID: 2}},
		Worlds: []worlds.World{
			{ID: 73, Name: "Adamantoise", DatacenterID: 10},
			{ID: 79, Name: "Cactuar", DatacenterID: 10},
			{ID: 45, Name: "Carbuncle", DatacenterID: 20},
		},
	})
	require.NoError(t, err)
	return c
}

func listing(world int32, price int32, retainer string) Listing {
	return Listing(model.Listing{WorldID: world, ItemID: 5, PricePerUnit: price, Quantity: 1, RetainerName: retainer})
}

func TestEvaluate_DatacenterAndPrice(t *testing.T) {
	e := NewEvaluator(testCache(t))
	p := And(ScopeIn(Selector{Level: worlds.LevelDatacenter, ID: 10}), PriceAtMost(500))

	assert.True(t, e.Evaluate(p, listing(73, 400, "Ret-A")))
	assert.False(t, e.Evaluate(p, listing(73, 600, "Ret-A")))
	assert.False(t, e.Evaluate(p, listing(45, 400, "Ret-A")))
}

func TestEvaluate_Price(t *testing.T) {
	e := NewEvaluator(nil)

	assert.True(t, e.Evaluate(PriceAtLeast(100), listing(73, 100, "")))
	assert.False(t, e.Evaluate(PriceAtLeast(100), listing(73, 99, "")))
	assert.True(t, e.Evaluate(PriceAtMost(100), listing(73, 100, "")))
	assert.False(t, e.Evaluate(PriceAtMost(100), listing(73, 101, "")))
}

func TestEvaluate_ScopeByName(t *testing.T) {
	e := NewEvaluator(testCache(t))

	assert.True(t, e.Evaluate(ScopeIn(Selector{Name: "north-america"}), listing(79, 1, "")))
	assert.False(t, e.Evaluate(ScopeIn(Selector{Name: "Japan"}), listing(79, 1, "")))
	assert.True(t, e.Evaluate(ScopeIn(Selector{Level: worlds.LevelWorld, Name: "Cactuar"}), listing(79, 1, "")))
}

func TestEvaluate_UnresolvableScopeDefaultsTrue(t *testing.T) {
	e := NewEvaluator(testCache(t))

	assert.True(t, e.Evaluate(ScopeIn(Selector{Name: "Nowhere"}), listing(73, 1, "")))
	assert.True(t, e.Evaluate(ScopeIn(Selector{Level: worlds.LevelRegion, ID: 99}), listing(73, 1, "")))
	assert.True(t, e.Evaluate(ScopeIn(Selector{Level: worlds.LevelRegion, ID: 2}), listing(9999, 1, "")))
	// Level mismatch on a named selector does not resolve.
	assert.True(t, e.Evaluate(ScopeIn(Selector{Level: worlds.LevelRegion, Name: "Aether"}), listing(45, 1, "")))
	assert.True(t, NewEvaluator(nil).Evaluate(ScopeIn(Selector{Name: "Japan"}), listing(73, 1, "")))
}

func TestEvaluate_MissingFieldsDefaultTrue(t *testing.T) {
	e := NewEvaluator(nil)
	sale := Sale(model.Sale{WorldID: 73, ItemID: 5, BuyerName: "Some Buyer", PricePerUnit: 10})

	assert.True(t, e.Evaluate(RetainerEquals("Ret-A"), sale))
	assert.True(t, e.Evaluate(CharacterEquals("Some Buyer"), sale))
	assert.False(t, e.Evaluate(CharacterEquals("Someone Else"), sale))

	assert.True(t, e.Evaluate(CharacterEquals("Anyone"), listing(73, 1, "Ret-A")))
	assert.True(t, e.Evaluate(RetainerEquals("Ret-A"), listing(73, 1, "Ret-A")))
	assert.False(t, e.Evaluate(RetainerEquals("Ret-B"), listing(73, 1, "Ret-A")))
}

// panicSubject panics if its price is read.
type panicSubject struct{ Listing }

func (panicSubject) Price() int32 { panic("short-circuit expected") }

func TestEvaluate_ShortCircuit(t *testing.T) {
	e := NewEvaluator(nil)
	subj := panicSubject{listing(73, 1, "")}

	assert.False(t, e.Evaluate(And(ItemEquals(6), PriceAtMost(1)), subj))
	assert.True(t, e.Evaluate(Or(ItemEquals(5), PriceAtMost(1)), subj))
}

func TestEvaluate_NilPredicate(t *testing.T) {
	assert.True(t, NewEvaluator(nil).Evaluate(nil, listing(1, 1, "")))
}

func TestFilter_PerRow(t *testing.T) {
	e := NewEvaluator(nil)
	rows := []model.Listing{
		{PricePerUnit: 100, RetainerName: "A"},
		{PricePerUnit: 600, RetainerName: "B"},
		{PricePerUnit: 300, RetainerName: "C"},
	}

	got := Filter(e, PriceAtMost(500), rows, func(l model.Listing) Subject { return Listing(l) })
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].RetainerName)
	assert.Equal(t, "C", got[1].RetainerName)

	assert.Len(t, Filter(e, nil, rows, func(l model.Listing) Subject { return Listing(l) }), 3)
	assert.Empty(t, Filter(e, PriceAtMost(1), rows, func(l model.Listing) Subject { return Listing(l) }))
}

func TestSpec_JSON(t *testing.T) {
	raw := `{"and":[{"scope_in":{"datacenter":"Aether"}},{"price_at_most":500},{"or":[{"item_equals":6},{"retainer_equals":"Ret-A"}]}]}`

	var s Spec
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	p, err := s.Build()
	require.NoError(t, err)

	require.Equal(t, OpAnd, p.Op)
	require.Equal(t, OpAnd, p.Left.Op)
	assert.Equal(t, Selector{Level: worlds.LevelDatacenter, Name: "Aether"}, p.Left.Left.Scope)
	assert.Equal(t, int32(500), p.Left.Right.Price)
	assert.Equal(t, OpOr, p.Right.Op)

	e := NewEvaluator(testCache(t))
	assert.True(t, e.Evaluate(p, listing(73, 400, "Ret-A")))
	assert.False(t, e.Evaluate(p, listing(73, 400, "Ret-Z")))

	// Round trip through ToSpec.
	b, err := json.Marshal(ToSpec(p))
	require.NoError(t, err)
	var again Spec
	require.NoError(t, json.Unmarshal(b, &again))
	p2, err := again.Build()
	require.NoError(t, err)
	assert.Equal(t, p, p2)
}

func TestSpec_NumericSelector(t *testing.T) {
	var s Spec
	require.NoError(t, json.Unmarshal([]byte(`{"scope_in":{"world":73}}`), &s))
	p, err := s.Build()
	require.NoError(t, err)
	assert.Equal(t, Selector{Level: worlds.LevelWorld, ID: 73}, p.Scope)
}

func TestSpec_CBOR(t *testing.T) {
	id := int32(5)
	in := Spec{And: []Spec{
		{ScopeIn: &ScopeSpec{Region: &NameOrID{ID: 1}}},
		{ItemEquals: &id},
	}}

	b, err := cbor.Marshal(in)
	require.NoError(t, err)

	var out Spec
	require.NoError(t, cbor.Unmarshal(b, &out))
	p, err := out.Build()
	require.NoError(t, err)
	assert.Equal(t, And(ScopeIn(Selector{Level: worlds.LevelRegion, ID: 1}), ItemEquals(5)), p)
}

func TestSpec_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":           `{}`,
		"two operators":   `{"item_equals":1,"price_at_most":2}`,
		"single operand":  `{"and":[{"item_equals":1}]}`,
		"empty and":       `{"and":[]}`,
		"two scopes":      `{"scope_in":{"world":1,"region":2}}`,
		"empty scope":     `{"scope_in":{}}`,
		"bad selector":    `{"scope_in":{"world":true}}`,
		"out of range id": `{"scope_in":{"world":4294967296}}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			var s Spec
			err := json.Unmarshal([]byte(raw), &s)
			if err == nil {
				_, err = s.Build()
			}
			assert.True(t, errors.Is(err, ErrInvalidPredicate), "err = %v", err)
		})
	}
}

func TestSpec_DepthLimit(t *testing.T) {
	raw := `{"item_equals":1}`
	for i := 0; i < MaxDepth; i++ {
		raw = `{"or":[` + raw + `,{"item_equals":2}]}`
	}

	var s Spec
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	_, err := s.Build()
	assert.True(t, errors.Is(err, ErrInvalidPredicate))
	assert.True(t, strings.Contains(err.Error(), "deeper"))
}
