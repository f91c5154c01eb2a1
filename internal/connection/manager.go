package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/tradeflow/internal/adapter"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/retention"
	"github.com/rickgao/tradeflow/internal/subscription"
)

// Manager owns at most one live Conn per exchange and routes consumer
// subscriptions to it.
type Manager interface {
	// Start enables the manager. ctx bounds every connection it opens.
	Start(ctx context.Context) error

	// Stop closes all connections and waits for their goroutines.
	Stop(ctx context.Context) error

	// Subscribe attaches consumer to symbol on exchange, opening the
	// exchange connection if needed. It returns the symbol's consumer count.
	Subscribe(ctx context.Context, exchange model.Exchange, symbol string, consumer *subscription.Consumer) (int, error)

	// Unsubscribe detaches consumer. It returns the remaining consumer count,
	// or Released when the exchange connection was torn down.
	Unsubscribe(exchange model.Exchange, symbol string, consumer *subscription.Consumer) (int, error)

	// SetRetention changes the retention spec for exchange.
	SetRetention(exchange model.Exchange, spec string) error

	// Retention returns the retention spec for exchange.
	Retention(exchange model.Exchange) string

	// Drift returns the clock drift estimate of a live exchange connection.
	Drift(exchange model.Exchange) (int64, bool)

	// Stats returns per-exchange statistics for live connections.
	Stats() []ConnStats
}

// Subscribe retries this many times when it races a connection release.
const maxSubscribeAttempts = 3

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	dial   Dialer
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	stopped   bool
	conns     map[model.Exchange]*Conn
	retention map[model.Exchange]retention.Spec
}

// ManagerOption configures a Manager.
type ManagerOption func(*manager)

// WithClientDialer replaces the WebSocket client constructor for every Conn.
func WithClientDialer(d Dialer) ManagerOption {
	return func(m *manager) {
		if d != nil {
			m.dial = d
		}
	}
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &manager{
		cfg:       cfg,
		dial:      NewClient,
		logger:    logger,
		conns:     make(map[model.Exchange]*Conn),
		retention: make(map[model.Exchange]retention.Spec),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start enables the manager.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrAlreadyClosed
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.logger.Info("connection manager started", "retention", m.cfg.Retention)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	m.mu.Lock()
	m.stopped = true
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[model.Exchange]*Conn)
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	if m.cancel != nil {
		m.cancel()
	}

	for _, c := range conns {
		if err := c.Wait(ctx); err != nil {
			m.logger.Warn("shutdown timeout, forcing close")
			break
		}
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// Subscribe attaches consumer to symbol on exchange.
func (m *manager) Subscribe(ctx context.Context, exchange model.Exchange, symbol string, consumer *subscription.Consumer) (int, error) {
	var err error
	for range maxSubscribeAttempts {
		var conn *Conn
		conn, err = m.acquire(exchange)
		if err != nil {
			return 0, err
		}

		var count int
		count, err = conn.Subscribe(ctx, symbol, consumer)
		if errors.Is(err, ErrReleased) {
			// The last consumer left between acquire and subscribe.
			continue
		}
		return count, err
	}
	return 0, err
}

// acquire returns the live Conn for exchange, creating and opening one if
// there is none.
func (m *manager) acquire(exchange model.Exchange) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrClosed
	}
	if m.ctx == nil {
		return nil, ErrNotStarted
	}
	if c, ok := m.conns[exchange]; ok && c.State() != Closed {
		return c, nil
	}

	a, err := adapter.New(exchange, m.cfg.Adapters[exchange])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownExchange, err)
	}

	c := NewConn(a, m.cfg.Client, m.retentionLocked(exchange), m.logger,
		WithDialer(m.dial),
		WithOnClose(m.release),
	)
	m.conns[exchange] = c
	c.Open(m.ctx)

	return c, nil
}

// release forgets a closed Conn so the next Subscribe opens a fresh one.
func (m *manager) release(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.conns[c.Exchange()]; ok && cur == c {
		delete(m.conns, c.Exchange())
		m.logger.Debug("connection released", "exchange", c.Exchange().String())
	}
}

func (m *manager) live(exchange model.Exchange) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[exchange]
}

// Unsubscribe detaches consumer from symbol on exchange.
func (m *manager) Unsubscribe(exchange model.Exchange, symbol string, consumer *subscription.Consumer) (int, error) {
	c := m.live(exchange)
	if c == nil {
		return 0, ErrNotSubscribed
	}
	return c.Unsubscribe(symbol, consumer)
}

// SetRetention validates and stores spec; a live connection picks it up for
// its next merge.
func (m *manager) SetRetention(exchange model.Exchange, spec string) error {
	if !retention.Valid(spec) {
		return fmt.Errorf("invalid retention spec %q", spec)
	}
	parsed := retention.Parse(spec)

	m.mu.Lock()
	m.retention[exchange] = parsed
	c := m.conns[exchange]
	m.mu.Unlock()

	if c != nil {
		c.SetRetention(parsed)
	}
	m.logger.Info("retention changed", "exchange", exchange.String(), "retention", spec)
	return nil
}

// Retention returns the retention spec for exchange.
func (m *manager) Retention(exchange model.Exchange) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retentionLocked(exchange).String()
}

func (m *manager) retentionLocked(exchange model.Exchange) retention.Spec {
	if spec, ok := m.retention[exchange]; ok {
		return spec
	}
	return retention.Parse(m.cfg.Retention)
}

// Drift returns the clock drift estimate of a live exchange connection.
func (m *manager) Drift(exchange model.Exchange) (int64, bool) {
	c := m.live(exchange)
	if c == nil {
		return 0, false
	}
	return c.Drift(), true
}

// Stats returns current statistics, ordered by exchange.
func (m *manager) Stats() []ConnStats {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, ex := range model.Exchanges() {
		if c, ok := m.conns[ex]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.Unlock()

	out := make([]ConnStats, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Stats())
	}
	return out
}
