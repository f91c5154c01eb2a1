package connection

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/tradeflow/internal/adapter"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/subscription"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrClosed          = errors.New("connection closed")
	ErrReleased        = errors.New("connection released")
	ErrNotSubscribed   = errors.New("not subscribed")
	ErrNotStarted      = errors.New("manager not started")
	ErrUnknownExchange = errors.New("unknown exchange")
)

// Released is returned by Unsubscribe when removing the consumer tore down
// the whole connection.
const Released = -1

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL; filled from the exchange adapter
	HandshakeTimeout time.Duration // Dial handshake limit
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// Dialer builds a Client; tests substitute fakes.
type Dialer func(cfg ClientConfig, logger *slog.Logger) Client

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client    ClientConfig                      // Shared by every exchange connection
	Adapters  map[model.Exchange]adapter.Options // Per-exchange adapter options
	Retention string                            // Initial retention spec for new connections
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:    DefaultClientConfig(),
		Adapters:  make(map[model.Exchange]adapter.Options),
		Retention: "10m",
	}
}

// State is the lifecycle state of a Conn.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closed // terminal
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// ConnStats provides statistics about one exchange connection.
type ConnStats struct {
	Exchange      model.Exchange       `json:"exchange"`
	State         string               `json:"state"`
	DriftMs       int64                `json:"drift_ms"`
	Retention     string               `json:"retention"`
	Received      int64                `json:"received"`
	Ignored       int64                `json:"ignored"`
	Applied       int64                `json:"applied"`
	Subscriptions []subscription.Stats `json:"subscriptions"`
}
