package filter

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/rickgao/marketsync/internal/worlds"
)

// ErrInvalidPredicate is returned when a wire predicate cannot be built.
var ErrInvalidPredicate = errors.New("filter: invalid predicate")

// MaxDepth bounds the nesting of wire predicates.
const MaxDepth = 16

// Spec is the wire form of a Predicate. Exactly one field must be set.
//
//	{"and":[{"scope_in":{"datacenter":"Aether"}},{"price_at_most":500}]}
type Spec struct {
	ScopeIn         *ScopeSpec `json:"scope_in,omitempty" cbor:"scope_in,omitempty"`
	ItemEquals      *int32     `json:"item_equals,omitempty" cbor:"item_equals,omitempty"`
	PriceAtLeast    *int32     `json:"price_at_least,omitempty" cbor:"price_at_least,omitempty"`
	PriceAtMost     *int32     `json:"price_at_most,omitempty" cbor:"price_at_most,omitempty"`
	RetainerEquals  *string    `json:"retainer_equals,omitempty" cbor:"retainer_equals,omitempty"`
	CharacterEquals *string    `json:"character_equals,omitempty" cbor:"character_equals,omitempty"`
	And             []Spec     `json:"and,omitempty" cbor:"and,omitempty"`
	Or              []Spec     `json:"or,omitempty" cbor:"or,omitempty"`
}

// ScopeSpec selects one hierarchy node. Exactly one field must be set.
type ScopeSpec struct {
	World      *NameOrID `json:"world,omitempty" cbor:"world,omitempty"`
	Datacenter *NameOrID `json:"datacenter,omitempty" cbor:"datacenter,omitempty"`
	Region     *NameOrID `json:"region,omitempty" cbor:"region,omitempty"`
}

// NameOrID holds either a numeric id or a name.
type NameOrID struct {
	ID   int32
	Name string
}

func (n NameOrID) MarshalJSON() ([]byte, error) {
	if n.Name != "" {
		return json.Marshal(n.Name)
	}
	return json.Marshal(n.ID)
}

func (n *NameOrID) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return n.set(v)
}

func (n NameOrID) MarshalCBOR() ([]byte, error) {
	if n.Name != "" {
		return cbor.Marshal(n.Name)
	}
	return cbor.Marshal(n.ID)
}

func (n *NameOrID) UnmarshalCBOR(b []byte) error {
	var v any
	if err := cbor.Unmarshal(b, &v); err != nil {
		return err
	}
	return n.set(v)
}

func (n *NameOrID) set(v any) error {
	switch x := v.(type) {
	case string:
		*n = NameOrID{Name: x}
	case float64:
		if x != float64(int32(x)) {
			return fmt.Errorf("%w: id %v out of range", ErrInvalidPredicate, x)
		}
		*n = NameOrID{ID: int32(x)}
	case uint64:
		if x > 1<<31-1 {
			return fmt.Errorf("%w: id %d out of range", ErrInvalidPredicate, x)
		}
		*n = NameOrID{ID: int32(x)}
	case int64:
		if x != int64(int32(x)) {
			return fmt.Errorf("%w: id %d out of range", ErrInvalidPredicate, x)
		}
		*n = NameOrID{ID: int32(x)}
	default:
		return fmt.Errorf("%w: selector must be a number or a string", ErrInvalidPredicate)
	}
	return nil
}

// Build validates s and converts it to a Predicate.
func (s Spec) Build() (*Predicate, error) {
	return s.build(1)
}

func (s Spec) build(depth int) (*Predicate, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: nested deeper than %d", ErrInvalidPredicate, MaxDepth)
	}

	set := 0
	var p *Predicate
	if s.ScopeIn != nil {
		set++
		sel, err := s.ScopeIn.selector()
		if err != nil {
			return nil, err
		}
		p = ScopeIn(sel)
	}
	if s.ItemEquals != nil {
		set++
		p = ItemEquals(*s.ItemEquals)
	}
	if s.PriceAtLeast != nil {
		set++
		p = PriceAtLeast(*s.PriceAtLeast)
	}
	if s.PriceAtMost != nil {
		set++
		p = PriceAtMost(*s.PriceAtMost)
	}
	if s.RetainerEquals != nil {
		set++
		p = RetainerEquals(*s.RetainerEquals)
	}
	if s.CharacterEquals != nil {
		set++
		p = CharacterEquals(*s.CharacterEquals)
	}
	if s.And != nil {
		set++
		folded, err := fold(s.And, depth, And)
		if err != nil {
			return nil, err
		}
		p = folded
	}
	if s.Or != nil {
		set++
		folded, err := fold(s.Or, depth, Or)
		if err != nil {
			return nil, err
		}
		p = folded
	}

	if set != 1 {
		return nil, fmt.Errorf("%w: expected exactly one operator, got %d", ErrInvalidPredicate, set)
	}
	return p, nil
}

// fold combines two or more operands left to right.
func fold(specs []Spec, depth int, join func(l, r *Predicate) *Predicate) (*Predicate, error) {
	if len(specs) < 2 {
		return nil, fmt.Errorf("%w: and/or needs at least two operands", ErrInvalidPredicate)
	}
	acc, err := specs[0].build(depth + 1)
	if err != nil {
		return nil, err
	}
	for _, s := range specs[1:] {
		next, err := s.build(depth + 1)
		if err != nil {
			return nil, err
		}
		acc = join(acc, next)
	}
	return acc, nil
}

func (s ScopeSpec) selector() (Selector, error) {
	var (
		sel Selector
		set int
	)
	pick := func(v *NameOrID, level worlds.Level) {
		if v == nil {
			return
		}
		set++
		sel = Selector{Level: level, ID: v.ID, Name: v.Name}
	}
	pick(s.World, worlds.LevelWorld)
	pick(s.Datacenter, worlds.LevelDatacenter)
	pick(s.Region, worlds.LevelRegion)

	if set != 1 {
		return Selector{}, fmt.Errorf("%w: scope_in needs exactly one of world, datacenter, region", ErrInvalidPredicate)
	}
	return sel, nil
}

// ToSpec converts a Predicate back to its wire form.
func ToSpec(p *Predicate) Spec {
	if p == nil {
		return Spec{}
	}
	switch p.Op {
	case OpScopeIn:
		v := &NameOrID{ID: p.Scope.ID, Name: p.Scope.Name}
		var sc ScopeSpec
		switch p.Scope.Level {
		case worlds.LevelRegion:
			sc.Region = v
		case worlds.LevelDatacenter:
			sc.Datacenter = v
		default:
			sc.World = v
		}
		return Spec{ScopeIn: &sc}
	case OpItemEquals:
		return Spec{ItemEquals: &p.Item}
	case OpPriceAtLeast:
		return Spec{PriceAtLeast: &p.Price}
	case OpPriceAtMost:
		return Spec{PriceAtMost: &p.Price}
	case OpRetainerEquals:
		return Spec{RetainerEquals: &p.Name}
	case OpCharacterEquals:
		return Spec{CharacterEquals: &p.Name}
	case OpAnd:
		return Spec{And: []Spec{ToSpec(p.Left), ToSpec(p.Right)}}
	case OpOr:
		return Spec{Or: []Spec{ToSpec(p.Left), ToSpec(p.Right)}}
	}
	return Spec{}
}
