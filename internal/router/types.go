package router

import (
	"context"

	"github.com/rickgao/marketsync/internal/feed"
)

// Handler receives decoded push feed messages, one method per event.
// Methods are called from the routing goroutine in arrival order and may
// block to apply backpressure.
type Handler interface {
	ListingsAdd(ctx context.Context, msg feed.Message)
	ListingsRemove(ctx context.Context, msg feed.Message)
	SalesAdd(ctx context.Context, msg feed.Message)
	SalesRemove(ctx context.Context, msg feed.Message)
}

// HandlerFunc handles every event with one function.
type HandlerFunc func(ctx context.Context, msg feed.Message)

func (f HandlerFunc) ListingsAdd(ctx context.Context, msg feed.Message)    { f(ctx, msg) }
func (f HandlerFunc) ListingsRemove(ctx context.Context, msg feed.Message) { f(ctx, msg) }
func (f HandlerFunc) SalesAdd(ctx context.Context, msg feed.Message)       { f(ctx, msg) }
func (f HandlerFunc) SalesRemove(ctx context.Context, msg feed.Message)    { f(ctx, msg) }

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	ByEvent          map[feed.Event]int64
}
