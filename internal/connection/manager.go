package connection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/marketsync/internal/feed"
	"github.com/rickgao/marketsync/internal/metrics"
)

// Manager keeps the push feed connected and subscribed.
type Manager interface {
	// Start connects in the background and keeps reconnecting until Stop.
	Start(ctx context.Context) error

	// Stop closes the connection and the Messages channel.
	Stop(ctx context.Context) error

	// Subscribe adds a channel. It is sent now if connected and replayed
	// after every reconnect.
	Subscribe(ch feed.Channel) error

	// Unsubscribe removes a channel.
	Unsubscribe(ch feed.Channel) error

	// Messages returns the channel of raw frames for the dispatcher.
	Messages() <-chan RawMessage

	// Stats returns current connection and subscription statistics.
	Stats() ManagerStats
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Connected     bool
	Subscriptions int
	Reconnects    int64
	Received      int64
	Stalled       int64 // Frames that waited for a full Messages channel
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	out chan RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards the live client and the subscription set together, so a
	// Subscribe racing a reconnect is either replayed or sent, never lost.
	mu     sync.Mutex
	client Client
	subs   map[feed.Channel]struct{}

	reconnects atomic.Int64
	received   atomic.Int64
	stalled    atomic.Int64
}

// NewManager creates a new connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:    cfg,
		logger: logger.With("component", "feed_connection"),
		out:    make(chan RawMessage, cfg.MessageBufferSize),
		subs:   make(map[feed.Channel]struct{}),
	}
}

// Start begins the connection loop.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("connection manager started", "url", m.cfg.Client.URL)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	m.mu.Lock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, leaving message channel open")
		return ctx.Err()
	}

	close(m.out)

	m.logger.Info("connection manager stopped")
	return nil
}

// Messages returns the output channel.
func (m *manager) Messages() <-chan RawMessage {
	return m.out
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	connected := m.client != nil && m.client.IsConnected()
	subs := len(m.subs)
	m.mu.Unlock()

	return ManagerStats{
		Connected:     connected,
		Subscriptions: subs,
		Reconnects:    m.reconnects.Load(),
		Received:      m.received.Load(),
		Stalled:       m.stalled.Load(),
	}
}

// Subscribe adds ch to the tracked set and sends it if connected.
func (m *manager) Subscribe(ch feed.Channel) error {
	return m.update(feed.ModeSubscribe, ch)
}

// Unsubscribe removes ch from the tracked set and sends it if connected.
func (m *manager) Unsubscribe(ch feed.Channel) error {
	return m.update(feed.ModeUnsubscribe, ch)
}

func (m *manager) update(mode feed.Mode, ch feed.Channel) error {
	if !ch.Event.Valid() {
		return fmt.Errorf("%w: %q", feed.ErrInvalidChannel, ch.Event)
	}
	frame, err := feed.EncodeControl(feed.Control{Mode: mode, Channel: ch})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == feed.ModeSubscribe {
		m.subs[ch] = struct{}{}
	} else {
		delete(m.subs, ch)
	}

	if m.client == nil {
		return nil
	}
	if err := m.client.Send(frame); err != nil {
		if errors.Is(err, ErrNotConnected) {
			// Replayed on reconnect
			return nil
		}
		return fmt.Errorf("%s %s: %w", mode, ch, err)
	}

	m.logger.Info("subscription update", "mode", mode, "channel", ch.String())
	return nil
}

// run connects, serves the connection until it fails, and reconnects with
// exponential backoff.
func (m *manager) run() {
	defer m.wg.Done()

	wait := m.cfg.ReconnectBaseWait
	maxWait := m.cfg.ReconnectMaxWait

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			m.logger.Warn("socket terminated, waiting before retry", "wait", wait)
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		c, id, err := m.connect(attempt > 0)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Warn("connection failed", "error", err)

			// Exponential backoff
			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}
		wait = m.cfg.ReconnectBaseWait

		m.serve(c, id)
		if m.ctx.Err() != nil {
			return
		}
	}
}

// connect dials a fresh client, pings it and replays the subscription set
// before publishing it as the live client.
func (m *manager) connect(reconnect bool) (Client, string, error) {
	id := uuid.NewString()
	c := NewClient(m.cfg.Client, m.logger.With("conn_id", id))
	if err := c.Connect(m.ctx); err != nil {
		return nil, "", fmt.Errorf("dial: %w", err)
	}

	if err := c.Ping(); err != nil {
		m.logger.Warn("error writing ping", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.resendSubscriptions(c); err != nil {
		c.Close()
		return nil, "", fmt.Errorf("resend subscriptions: %w", err)
	}
	m.client = c

	if reconnect {
		m.reconnects.Add(1)
		metrics.FeedReconnects.Inc()
	}
	metrics.FeedConnected.Set(1)
	m.logger.Info("connected", "conn_id", id, "reconnect", reconnect)
	return c, id, nil
}

// resendSubscriptions sends every tracked channel. Must be called with mu held.
func (m *manager) resendSubscriptions(c Client) error {
	if len(m.subs) == 0 {
		m.logger.Warn("no subscriptions to resend, feed will not get any data")
		return nil
	}
	for _, ch := range m.sortedSubs() {
		frame, err := feed.EncodeControl(feed.Control{Mode: feed.ModeSubscribe, Channel: ch})
		if err != nil {
			return err
		}
		if err := c.Send(frame); err != nil {
			return err
		}
		m.logger.Debug("resent subscription", "channel", ch.String())
	}
	return nil
}

func (m *manager) sortedSubs() []feed.Channel {
	out := make([]feed.Channel, 0, len(m.subs))
	for ch := range m.subs {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b feed.Channel) int {
		return cmp.Or(cmp.Compare(a.Event, b.Event), cmp.Compare(a.WorldID, b.WorldID))
	})
	return out
}

// serve forwards frames from c until it fails or the manager stops. A full
// output channel blocks forwarding, and through it the client's socket read,
// so a slow dispatcher slows the feed down instead of losing frames.
func (m *manager) serve(c Client, id string) {
	defer func() {
		m.mu.Lock()
		if m.client == c {
			m.client = nil
		}
		m.mu.Unlock()
		c.Close()
		metrics.FeedConnected.Set(0)
	}()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-c.Errors():
			m.logger.Warn("connection error", "error", err)
			return

		case msg, ok := <-c.Messages():
			if !ok {
				return
			}
			m.received.Add(1)

			raw := RawMessage{
				Data:       msg.Data,
				ConnID:     id,
				ReceivedAt: msg.ReceivedAt,
			}

			select {
			case m.out <- raw:
				continue
			default:
			}

			m.stalled.Add(1)
			metrics.FeedStalls.Inc()
			select {
			case m.out <- raw:
			case <-m.ctx.Done():
				return
			}
		}
	}
}
