// Package router decodes raw push feed frames and routes each message to the
// Handler method for its event.
package router

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"

	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/feed"
	"github.com/rickgao/marketsync/internal/metrics"
)

// Router parses raw WebSocket frames and routes them to a Handler.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	logger  *slog.Logger
	handler Handler

	// Input from the connection Manager
	input <-chan connection.RawMessage

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.RWMutex
	received        int64
	routed          int64
	parseErrors     int64
	unknownMessages int64
	byEvent         map[feed.Event]int64
}

// NewRouter creates a new Router.
func NewRouter(input <-chan connection.RawMessage, handler Handler, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		logger:  logger.With("component", "router"),
		handler: handler,
		input:   input,
		byEvent: make(map[feed.Event]int64),
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started")
	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	return nil
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		ByEvent:          maps.Clone(r.byEvent),
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(raw)
		}
	}
}

// route decodes and routes a single frame. Frames that fail to decode are
// logged and dropped.
func (r *router) route(raw connection.RawMessage) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	msg, err := feed.Decode(raw.Data)
	if err != nil {
		metrics.FeedDecodeErrors.Inc()
		r.mu.Lock()
		if errors.Is(err, feed.ErrUnknownEvent) {
			r.unknownMessages++
		} else {
			r.parseErrors++
		}
		r.mu.Unlock()
		r.logger.Warn("dropping undecodable frame",
			"conn_id", raw.ConnID,
			"size", len(raw.Data),
			"error", err,
		)
		return
	}

	metrics.FeedMessages.WithLabelValues(string(msg.Event), metrics.World(msg.WorldID)).Inc()

	switch msg.Event {
	case feed.EventListingsAdd:
		r.handler.ListingsAdd(r.ctx, msg)
	case feed.EventListingsRemove:
		r.handler.ListingsRemove(r.ctx, msg)
	case feed.EventSalesAdd:
		r.handler.SalesAdd(r.ctx, msg)
	case feed.EventSalesRemove:
		r.handler.SalesRemove(r.ctx, msg)
	}

	r.mu.Lock()
	r.routed++
	r.byEvent[msg.Event]++
	r.mu.Unlock()
}
