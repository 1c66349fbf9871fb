// Package diff merges two ascending sequences into a three-way classification.
//
// Both inputs must be sorted by the same key. The merge is lazy and makes a
// single forward pass, buffering one element from each side at a time.
package diff

import (
	"iter"
	"slices"
)

// Side tags an Item.
type Side uint8

const (
	// Left means the element exists only in the left sequence.
	Left Side = iota + 1
	// Right means the element exists only in the right sequence.
	Right
	// Same means both sequences hold a key-equal element.
	Same
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	case Same:
		return "same"
	default:
		return "unknown"
	}
}

// Item is one classified output of the merge. Only the fields matching Side
// are meaningful.
type Item[A, B any] struct {
	Side  Side
	Left  A
	Right B
}

// CompareFunc orders a against b: negative when a sorts first, positive when b
// does, zero when key-equal. ok reports whether the pair is comparable at
// all; incomparable pairs are treated as equal.
type CompareFunc[A, B any] func(a A, b B) (c int, ok bool)

// Iterator walks the merge of two sorted sequences. It is not restartable.
type Iterator[A, B any] struct {
	cmp CompareFunc[A, B]

	nextL func() (A, bool)
	stopL func()
	nextR func() (B, bool)
	stopR func()

	l   A
	r   B
	lok bool
	rok bool

	primed bool
	done   bool
}

// New returns an iterator over the merge of left and right.
func New[A, B any](left iter.Seq[A], right iter.Seq[B], cmp CompareFunc[A, B]) *Iterator[A, B] {
	nextL, stopL := iter.Pull(left)
	nextR, stopR := iter.Pull(right)
	return &Iterator[A, B]{
		cmp:   cmp,
		nextL: nextL,
		stopL: stopL,
		nextR: nextR,
		stopR: stopR,
	}
}

// Slices is New over two slices.
func Slices[A, B any](left []A, right []B, cmp CompareFunc[A, B]) *Iterator[A, B] {
	return New(slices.Values(left), slices.Values(right), cmp)
}

// Next returns the next classified item, or false once both sides are
// exhausted.
func (it *Iterator[A, B]) Next() (Item[A, B], bool) {
	if it.done {
		return Item[A, B]{}, false
	}
	if !it.primed {
		it.l, it.lok = it.nextL()
		it.r, it.rok = it.nextR()
		it.primed = true
	}

	var item Item[A, B]
	switch {
	case it.lok && it.rok:
		c, ok := it.cmp(it.l, it.r)
		if !ok {
			c = 0
		}
		switch {
		case c < 0:
			item = Item[A, B]{Side: Left, Left: it.l}
			it.l, it.lok = it.nextL()
		case c > 0:
			item = Item[A, B]{Side: Right, Right: it.r}
			it.r, it.rok = it.nextR()
		default:
			item = Item[A, B]{Side: Same, Left: it.l, Right: it.r}
			it.l, it.lok = it.nextL()
			it.r, it.rok = it.nextR()
		}
	case it.lok:
		item = Item[A, B]{Side: Left, Left: it.l}
		it.l, it.lok = it.nextL()
	case it.rok:
		item = Item[A, B]{Side: Right, Right: it.r}
		it.r, it.rok = it.nextR()
	default:
		it.Stop()
		return Item[A, B]{}, false
	}
	return item, true
}

// Stop releases both input sequences. Further calls to Next return false.
func (it *Iterator[A, B]) Stop() {
	if it.done {
		return
	}
	it.done = true
	it.stopL()
	it.stopR()
}

// All adapts the iterator to a range-over-func sequence. Breaking out of the
// loop stops the iterator.
func (it *Iterator[A, B]) All() iter.Seq[Item[A, B]] {
	return func(yield func(Item[A, B]) bool) {
		defer it.Stop()
		for {
			item, ok := it.Next()
			if !ok || !yield(item) {
				return
			}
		}
	}
}

// Ordered compares two values of the same ordered type.
func Ordered[T int | int32 | int64 | string](a, b T) (int, bool) {
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}
