package realtime

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/marketsync/internal/bus"
	"github.com/rickgao/marketsync/internal/filter"
	"github.com/rickgao/marketsync/internal/metrics"
)

// Config holds subscriber connection settings.
type Config struct {
	WriteTimeout time.Duration // Per-frame write deadline
	PingInterval time.Duration // Server ping period; the client must answer within twice this
	ReadLimit    int64         // Max control frame size in bytes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		PingInterval: 60 * time.Second,
		ReadLimit:    64 * 1024,
	}
}

// Server upgrades HTTP requests to subscriber sessions.
type Server struct {
	cfg      Config
	bus      *bus.Bus
	eval     *filter.Evaluator
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a Server reading from b and filtering with eval.
func NewServer(cfg Config, b *bus.Bus, eval *filter.Evaluator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	return &Server{
		cfg:    cfg,
		bus:    b,
		eval:   eval,
		logger: logger.With("component", "realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// ServeHTTP upgrades the request and serves the session until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newSession(uuid.NewString(), conn, s)
	if !s.register(sess) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer s.unregister(sess)

	s.logger.Info("subscriber connected", "session", sess.id, "remote", r.RemoteAddr)
	sess.run()
	s.logger.Info("subscriber disconnected", "session", sess.id)
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	metrics.Subscribers.Inc()
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	metrics.Subscribers.Dec()
	s.wg.Done()
}

// Sessions returns the number of connected subscribers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close disconnects every subscriber and waits for their sessions to end.
// Later connections are refused.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.cancel()
		sess.conn.Close()
	}
	s.wg.Wait()
	s.logger.Info("realtime server closed", "sessions", len(open))
}
