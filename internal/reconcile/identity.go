package reconcile

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/marketsync/internal/store"
)

type created[T any] struct {
	value T
	fresh bool // true if this call inserted the row
}

// createOrFetch inserts an identity, coalescing concurrent creations of the
// same key within the process. A uniqueness conflict means another writer got
// there first, so the row is re-read instead.
func createOrFetch[T any](
	ctx context.Context,
	g *singleflight.Group,
	key string,
	create func(context.Context) (T, error),
	fetch func(context.Context) (T, bool, error),
) (T, bool, error) {
	v, err, _ := g.Do(key, func() (any, error) {
		val, err := create(ctx)
		if err == nil {
			return created[T]{value: val, fresh: true}, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}

		val, ok, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("re-fetch after conflict: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("re-fetch after conflict: %w", store.ErrNotFound)
		}
		return created[T]{value: val}, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	c := v.(created[T])
	return c.value, c.fresh, nil
}
