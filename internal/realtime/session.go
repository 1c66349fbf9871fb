package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/marketsync/internal/bus"
	"github.com/rickgao/marketsync/internal/filter"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
)

// session is one connected subscriber. It owns the read loop and one pump
// goroutine per active subscription.
type session struct {
	id     string
	conn   *websocket.Conn
	srv    *Server
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu    sync.Mutex
	codec codec
	subs  map[Category]*subscription
	pumps sync.WaitGroup
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(id string, conn *websocket.Conn, srv *Server) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:     id,
		conn:   conn,
		srv:    srv,
		logger: srv.logger.With("session", id),
		ctx:    ctx,
		cancel: cancel,
		codec:  jsonCodec{},
		subs:   make(map[Category]*subscription),
	}
}

// run serves the session until the client disconnects or the server closes.
func (s *session) run() {
	defer s.close()

	s.conn.SetReadLimit(s.srv.cfg.ReadLimit)
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	if err := s.send(ServerMessage{Type: TypeConnected, Session: s.id}); err != nil {
		s.logger.Debug("failed to greet subscriber", "error", err)
		return
	}

	go s.keepalive()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, context.Canceled) {
				s.logger.Debug("subscriber read ended", "error", err)
			}
			return
		}
		s.extendReadDeadline()

		c, err := codecFor(msgType)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.codec = c
		s.mu.Unlock()

		var msg ClientMessage
		if err := c.unmarshal(data, &msg); err != nil {
			s.sendError("malformed frame: " + err.Error())
			continue
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg ClientMessage) {
	req, err := msg.validate()
	if err != nil {
		s.sendError(err.Error())
		return
	}

	switch req.typ {
	case TypeAddSubscribe:
		s.subscribe(req.category, req.predicate)
		s.send(ServerMessage{Type: TypeSubscriptionCreated, Category: req.category})
		s.logger.Info("subscription created", "category", req.category)

	case TypeRemoveSubscribe:
		s.unsubscribe(req.category)
		s.send(ServerMessage{Type: TypeSubscriptionRemoved, Category: req.category})
		s.logger.Info("subscription removed", "category", req.category)
	}
}

// subscribe starts a pump for category, replacing any existing one.
func (s *session) subscribe(category Category, pred *filter.Predicate) {
	s.unsubscribe(category)

	ctx, cancel := context.WithCancel(s.ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.subs[category] = sub
	s.mu.Unlock()

	eval := s.srv.eval
	s.pumps.Add(1)
	switch category {
	case CategoryListings:
		cur := s.srv.bus.Listings.Subscribe()
		go pump(ctx, s, sub, category, cur, func(b model.ListingBatch) (model.ListingBatch, bool) {
			b.Listings = filter.Filter(eval, pred, b.Listings, func(l model.Listing) filter.Subject { return filter.Listing(l) })
			return b, len(b.Listings) > 0
		})
	case CategorySales:
		cur := s.srv.bus.Sales.Subscribe()
		go pump(ctx, s, sub, category, cur, func(b model.SaleBatch) (model.SaleBatch, bool) {
			b.Sales = filter.Filter(eval, pred, b.Sales, func(x model.Sale) filter.Subject { return filter.Sale(x) })
			return b, len(b.Sales) > 0
		})
	}
}

// unsubscribe stops the pump for category and waits for it to release its
// cursor.
func (s *session) unsubscribe(category Category) {
	s.mu.Lock()
	sub, ok := s.subs[category]
	delete(s.subs, category)
	s.mu.Unlock()

	if ok {
		sub.cancel()
		<-sub.done
	}
}

// pump forwards one topic to the session until ctx ends or a write fails.
func pump[T any](ctx context.Context, s *session, sub *subscription, category Category, cur *bus.Cursor[model.ChangeEvent[T]], keep func(T) (T, bool)) {
	defer s.pumps.Done()
	defer close(sub.done)
	defer cur.Close()

	msgType := TypeListings
	if category == CategorySales {
		msgType = TypeSales
	}

	for {
		ev, skipped, err := cur.Recv(ctx)
		if skipped > 0 {
			if s.send(ServerMessage{Type: TypeLagged, Category: category, Skipped: skipped}) != nil {
				return
			}
		}
		if err != nil {
			return
		}

		data, ok := keep(ev.Data)
		if !ok {
			continue
		}
		if err := s.send(ServerMessage{Type: msgType, Change: ev.Kind, Data: data}); err != nil {
			s.logger.Debug("subscriber write failed", "error", err)
			s.cancel()
			s.conn.Close()
			return
		}
	}
}

// keepalive pings the client until the session ends.
func (s *session) keepalive() {
	if s.srv.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.srv.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.srv.cfg.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

func (s *session) extendReadDeadline() {
	if s.srv.cfg.PingInterval > 0 {
		s.conn.SetReadDeadline(time.Now().Add(2 * s.srv.cfg.PingInterval))
	}
}

// send encodes msg with the session's current codec and writes it.
func (s *session) send(msg ServerMessage) error {
	s.mu.Lock()
	c := s.codec
	s.mu.Unlock()

	data, err := c.marshal(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(c.frameType(), data); err != nil {
		return err
	}
	metrics.SubscriberFrames.WithLabelValues(string(msg.Type)).Inc()
	return nil
}

func (s *session) sendError(message string) {
	s.send(ServerMessage{Type: TypeError, Message: message})
}

// close stops every pump and releases the connection.
func (s *session) close() {
	s.cancel()
	s.pumps.Wait()
	s.conn.Close()
}
