// Package filter evaluates subscriber predicates against change rows.
//
// A Predicate is a closed tagged tree. Evaluation is pure, short-circuits
// And/Or, and never fails: anything that cannot be decided (an unresolvable
// scope, a field the row does not carry) evaluates to true.
package filter

import (
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/worlds"
)

// Op tags a Predicate node.
type Op uint8

const (
	OpScopeIn Op = iota + 1
	OpItemEquals
	OpPriceAtLeast
	OpPriceAtMost
	OpRetainerEquals
	OpCharacterEquals
	OpAnd
	OpOr
)

// Selector names a hierarchy node by id or by name. Name wins when set.
type Selector struct {
	Level worlds.Level
	ID    int32
	Name  string
}

// Predicate is one node of a filter tree. Only the fields used by Op are set.
type Predicate struct {
	Op    Op
	Scope Selector
	Item  int32
	Price int32
	Name  string
	Left  *Predicate
	Right *Predicate
}

// Constructors, one per node kind.
func ScopeIn(sel Selector) *Predicate        { return &Predicate{Op: OpScopeIn, Scope: sel} }
func ItemEquals(id int32) *Predicate         { return &Predicate{Op: OpItemEquals, Item: id} }
func PriceAtLeast(v int32) *Predicate        { return &Predicate{Op: OpPriceAtLeast, Price: v} }
func PriceAtMost(v int32) *Predicate         { return &Predicate{Op: OpPriceAtMost, Price: v} }
func RetainerEquals(name string) *Predicate  { return &Predicate{Op: OpRetainerEquals, Name: name} }
func CharacterEquals(name string) *Predicate { return &Predicate{Op: OpCharacterEquals, Name: name} }
func And(l, r *Predicate) *Predicate         { return &Predicate{Op: OpAnd, Left: l, Right: r} }
func Or(l, r *Predicate) *Predicate          { return &Predicate{Op: OpOr, Left: l, Right: r} }

// Subject is the view of a change row that predicates inspect.
type Subject interface {
	World() int32
	Item() int32
	Price() int32
	// Retainer reports the selling retainer, if the row has one.
	Retainer() (string, bool)
	// Character reports the player character, if the row has one.
	Character() (string, bool)
}

// Listing adapts a listing row to Subject.
type Listing model.Listing

func (l Listing) World() int32              { return l.WorldID }
func (l Listing) Item() int32               { return l.ItemID }
func (l Listing) Price() int32              { return l.PricePerUnit }
func (l Listing) Retainer() (string, bool)  { return l.RetainerName, true }
func (l Listing) Character() (string, bool) { return "", false }

// Sale adapts a sale row to Subject.
type Sale model.Sale

func (s Sale) World() int32              { return s.WorldID }
func (s Sale) Item() int32               { return s.ItemID }
func (s Sale) Price() int32              { return s.PricePerUnit }
func (s Sale) Retainer() (string, bool)  { return "", false }
func (s Sale) Character() (string, bool) { return s.BuyerName, true }

// Evaluator resolves scopes against a hierarchy cache.
type Evaluator struct {
	worlds *worlds.Cache
}

// NewEvaluator returns an Evaluator. A nil cache makes every scope
// unresolvable, so ScopeIn always passes.
func NewEvaluator(cache *worlds.Cache) *Evaluator {
	return &Evaluator{worlds: cache}
}

// Evaluate reports whether subj satisfies p. A nil predicate matches
// everything.
func (e *Evaluator) Evaluate(p *Predicate, subj Subject) bool {
	if p == nil {
		return true
	}
	switch p.Op {
	case OpScopeIn:
		return e.scopeIn(p.Scope, subj.World())
	case OpItemEquals:
		return subj.Item() == p.Item
	case OpPriceAtLeast:
		return subj.Price() >= p.Price
	case OpPriceAtMost:
		return subj.Price() <= p.Price
	case OpRetainerEquals:
		name, ok := subj.Retainer()
		return !ok || name == p.Name
	case OpCharacterEquals:
		name, ok := subj.Character()
		return !ok || name == p.Name
	case OpAnd:
		return e.Evaluate(p.Left, subj) && e.Evaluate(p.Right, subj)
	case OpOr:
		return e.Evaluate(p.Left, subj) || e.Evaluate(p.Right, subj)
	default:
		return true
	}
}

// Filter returns the elements of rows that satisfy p, preserving order.
func Filter[T any](e *Evaluator, p *Predicate, rows []T, subject func(T) Subject) []T {
	if p == nil {
		return rows
	}
	var out []T
	for _, row := range rows {
		if e.Evaluate(p, subject(row)) {
			out = append(out, row)
		}
	}
	return out
}

func (e *Evaluator) scopeIn(sel Selector, worldID int32) bool {
	if e.worlds == nil {
		return true
	}
	target, ok := e.resolve(sel)
	if !ok {
		return true
	}
	own := worlds.WorldRef(worldID)
	if !e.worlds.Contains(own) {
		return true
	}
	return e.worlds.IsIn(own, target) || e.worlds.IsIn(target, own)
}

func (e *Evaluator) resolve(sel Selector) (worlds.Ref, bool) {
	if sel.Name != "" {
		if sel.Level != 0 {
			return e.worlds.ByNameAt(sel.Name, sel.Level)
		}
		return e.worlds.ByName(sel.Name)
	}
	ref := worlds.Ref{Level: sel.Level, ID: sel.ID}
	return ref, e.worlds.Contains(ref)
}
