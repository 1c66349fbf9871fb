package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a frame from the Manager to the dispatcher.
type RawMessage struct {
	Data       []byte    // BSON document
	ConnID     string    // Connection generation that received the frame
	ReceivedAt time.Time // Local timestamp when the Client received the frame
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://universalis.app/api/ws)
	UserAgent    string        // Sent on the handshake
	PingInterval time.Duration // How often we ping the server
	PingTimeout  time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 60 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   1000,
	}
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	Client            ClientConfig
	ReconnectBaseWait time.Duration // Cooldown before the first reconnect attempt
	ReconnectMaxWait  time.Duration // Max wait between reconnect attempts
	MessageBufferSize int           // Buffer size for output message channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:            DefaultClientConfig(),
		ReconnectBaseWait: 2 * time.Second,
		ReconnectMaxWait:  5 * time.Minute,
		MessageBufferSize: 10000,
	}
}
