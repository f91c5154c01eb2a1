package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tradeflow/internal/adapter"
	"github.com/rickgao/tradeflow/internal/drift"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/retention"
	"github.com/rickgao/tradeflow/internal/subscription"
)

// Conn is the single physical connection to one exchange and the
// subscriptions multiplexed over it.
//
// Lifecycle: Disconnected -> Connecting -> Open -> Closed. Closed is
// terminal; a Conn is never reopened.
type Conn struct {
	adapter adapter.Adapter
	cfg     ClientConfig
	dial    Dialer
	logger  *slog.Logger
	onClose func(*Conn)

	ready *Ready
	drift drift.Estimator
	done  chan struct{}
	wg    sync.WaitGroup

	// Guards everything below. The dispatch goroutine holds it while parsing
	// and merging, never while calling consumers.
	mu        sync.Mutex
	idle      *sync.Cond // signaled when draining ends
	state     State
	reason    error // why the Conn closed
	client    Client
	registry  *subscription.Registry
	retention retention.Spec

	received int64
	ignored  int64
	applied  int64

	// Snapshots waiting to be handed to consumers, in the order they were
	// built. At most one goroutine drains at a time.
	outbox   []subscription.Delivery
	draining bool
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithDialer replaces the WebSocket client constructor.
func WithDialer(d Dialer) ConnOption {
	return func(c *Conn) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithOnClose registers a hook run once after the Conn closes.
func WithOnClose(fn func(*Conn)) ConnOption {
	return func(c *Conn) { c.onClose = fn }
}

// NewConn creates a disconnected Conn for the adapter's exchange.
func NewConn(a adapter.Adapter, cfg ClientConfig, spec retention.Spec, logger *slog.Logger, opts ...ConnOption) *Conn {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		adapter:   a,
		cfg:       cfg,
		dial:      NewClient,
		logger:    logger.With("exchange", a.Exchange().String()),
		ready:     NewReady(),
		done:      make(chan struct{}),
		registry:  subscription.NewRegistry(),
		retention: spec,
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange returns the exchange this Conn serves.
func (c *Conn) Exchange() model.Exchange {
	return c.adapter.Exchange()
}

// Ready returns the Conn's readiness cell.
func (c *Conn) Ready() *Ready {
	return c.ready
}

// Done is closed once the Conn has closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the Conn closed, or nil while it is live.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Drift returns the current clock drift estimate in milliseconds.
func (c *Conn) Drift() int64 {
	return c.drift.Value()
}

// Retention returns the active retention spec.
func (c *Conn) Retention() retention.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retention
}

// SetRetention replaces the retention spec. It applies from the next merge on.
func (c *Conn) SetRetention(spec retention.Spec) {
	c.mu.Lock()
	c.retention = spec
	c.mu.Unlock()
}

// Open starts dialing in the background. Only the first call on a
// Disconnected Conn has any effect. ctx bounds the Conn's whole lifetime.
func (c *Conn) Open(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Disconnected {
		return
	}

	cfg := c.cfg
	cfg.URL = c.adapter.URL()
	c.client = c.dial(cfg, c.logger)
	c.state = Connecting

	c.logger.Info("connecting", "url", cfg.URL)

	c.wg.Add(1)
	go c.run(ctx, c.client)
}

// Close tears the Conn down. Closing a closed or never-opened Conn is a no-op.
func (c *Conn) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Wait blocks until the dispatch goroutine has exited or ctx is done.
func (c *Conn) Wait(ctx context.Context) error {
	exited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe attaches consumer to symbol, waiting for the Conn to open first.
// The physical subscribe command goes out only when the symbol gains its
// first consumer. The consumer receives the current snapshot ahead of any
// later trade: before Subscribe returns, or, when a delivery is already in
// progress on this Conn (as when called from a handler), right after it.
// It returns the symbol's consumer count.
func (c *Conn) Subscribe(ctx context.Context, symbol string, consumer *subscription.Consumer) (int, error) {
	symbol = model.NormalizeSymbol(symbol)

	if err := c.ready.Wait(ctx); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.state != Open {
		err := c.reason
		c.mu.Unlock()
		if err == nil {
			err = ErrNotConnected
		}
		return 0, err
	}

	count, created := c.registry.Add(symbol, consumer)
	if created {
		if handle, ok := c.adapter.Channel(symbol); ok {
			c.registry.Bind(symbol, handle)
		}
		if err := c.sendSubscribe(symbol); err != nil {
			c.registry.Remove(symbol, consumer)
			c.mu.Unlock()
			return 0, fmt.Errorf("subscribe %s: %w", symbol, err)
		}
		c.logger.Info("subscribed", "symbol", symbol)
	}
	c.logger.Debug("consumer attached", "symbol", symbol, "consumer_id", consumer.ID().String(), "consumers", count)

	snapshot, _ := c.registry.Snapshot(symbol, consumer)
	c.outbox = append(c.outbox, snapshot)
	c.mu.Unlock()

	c.flush(false)
	return count, nil
}

func (c *Conn) sendSubscribe(symbol string) error {
	cmd, err := c.adapter.SubscribeCommand(symbol)
	if err != nil {
		return err
	}
	return c.client.Send(cmd)
}

// Unsubscribe detaches consumer from symbol. The physical release command goes
// out when the symbol loses its last consumer, and the Conn closes when it
// loses its last subscription. It returns the symbol's remaining consumer
// count, or Released if the Conn was torn down.
func (c *Conn) Unsubscribe(symbol string, consumer *subscription.Consumer) (int, error) {
	symbol = model.NormalizeSymbol(symbol)

	c.mu.Lock()
	switch c.state {
	case Open:
	case Closed:
		c.mu.Unlock()
		return 0, ErrClosed
	default:
		c.mu.Unlock()
		return 0, ErrNotSubscribed
	}

	rm, ok := c.registry.Remove(symbol, consumer)
	if !ok {
		c.mu.Unlock()
		return 0, ErrNotSubscribed
	}
	c.logger.Debug("consumer detached", "symbol", symbol, "consumer_id", consumer.ID().String(), "consumers", rm.Count)
	if !rm.Destroyed {
		c.mu.Unlock()
		return rm.Count, nil
	}

	if err := c.sendUnsubscribe(symbol, rm.Handle); err != nil {
		c.logger.Warn("failed to send unsubscribe", "symbol", symbol, "error", err)
	}
	c.logger.Info("unsubscribed", "symbol", symbol)

	if c.registry.Len() > 0 {
		c.mu.Unlock()
		return 0, nil
	}

	client, closed := c.closeLocked(ErrReleased)
	c.mu.Unlock()
	if closed {
		c.finish(client, ErrReleased)
	}
	return Released, nil
}

func (c *Conn) sendUnsubscribe(symbol, handle string) error {
	cmd, err := c.adapter.UnsubscribeCommand(symbol, handle)
	if err != nil {
		return err
	}
	return c.client.Send(cmd)
}

// Stats returns a snapshot of the Conn's counters and subscriptions.
func (c *Conn) Stats() ConnStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ConnStats{
		Exchange:      c.adapter.Exchange(),
		State:         c.state.String(),
		DriftMs:       c.drift.Value(),
		Retention:     c.retention.String(),
		Received:      c.received,
		Ignored:       c.ignored,
		Applied:       c.applied,
		Subscriptions: c.registry.Stats(),
	}
}

// run connects and then dispatches inbound frames until the Conn closes.
func (c *Conn) run(ctx context.Context, client Client) {
	defer c.wg.Done()

	if err := client.Connect(ctx); err != nil {
		c.shutdown(fmt.Errorf("connect %s: %w", c.adapter.Exchange(), err))
		return
	}

	c.mu.Lock()
	if c.state != Connecting {
		// Closed while dialing.
		c.mu.Unlock()
		client.Close()
		return
	}
	c.state = Open
	c.mu.Unlock()

	c.ready.Resolve()
	c.logger.Info("connected")

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.shutdown(ctx.Err())
			return
		case err := <-client.Errors():
			c.shutdown(err)
			return
		case msg := <-client.Messages():
			c.handle(msg)
		}
	}
}

// handle runs one inbound frame through parse, drift, merge and prune, then
// delivers the resulting snapshots outside the lock.
func (c *Conn) handle(msg TimestampedMessage) {
	now := msg.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}

	c.mu.Lock()
	if c.state != Open {
		c.mu.Unlock()
		return
	}
	c.received++

	res := c.adapter.Parse(msg.Data, c.registry)
	switch res.Kind {
	case adapter.Bind:
		if c.registry.Bind(res.Binding.Symbol, res.Binding.Handle) {
			c.logger.Debug("channel bound", "symbol", res.Binding.Symbol, "channel", res.Binding.Handle)
		} else {
			c.ignored++
		}
	case adapter.Trades:
		for _, t := range res.Trades {
			c.drift.Update(t.Time, now.UnixMilli())
			if d, ok := c.registry.Apply(t, c.retention); ok {
				c.applied++
				c.outbox = append(c.outbox, d)
			}
		}
	default:
		c.ignored++
	}
	c.mu.Unlock()

	c.flush(true)
}

// flush hands queued snapshots to consumers in queue order, with mu released.
// If another call is already draining, flush leaves the queue to it, or with
// wait set blocks until it is done so the dispatch goroutine cannot outrun
// slow consumers.
func (c *Conn) flush(wait bool) {
	c.mu.Lock()
	if c.draining && !wait {
		c.mu.Unlock()
		return
	}
	for c.draining {
		c.idle.Wait()
	}

	c.draining = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()

		for _, d := range batch {
			d.Dispatch()
		}

		c.mu.Lock()
	}
	c.draining = false
	c.idle.Broadcast()
	c.mu.Unlock()
}

// shutdown closes the Conn for reason unless it is already closed.
func (c *Conn) shutdown(reason error) {
	c.mu.Lock()
	client, closed := c.closeLocked(reason)
	c.mu.Unlock()

	if closed {
		c.finish(client, reason)
	}
}

// closeLocked moves the Conn to Closed. It must be called with mu held and
// reports whether this call did the transition.
func (c *Conn) closeLocked(reason error) (Client, bool) {
	if c.state == Closed {
		return nil, false
	}
	c.state = Closed
	c.reason = reason
	return c.client, true
}

// finish releases resources after closeLocked. It runs exactly once.
func (c *Conn) finish(client Client, reason error) {
	close(c.done)
	c.ready.Reject(reason)

	if client != nil {
		if err := client.Close(); err != nil {
			c.logger.Debug("error closing websocket", "error", err)
		}
	}

	switch {
	case errors.Is(reason, ErrClosed), errors.Is(reason, ErrReleased):
		c.logger.Info("connection closed", "reason", reason)
	case websocket.IsCloseError(reason, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Info("connection closed by exchange", "reason", reason)
	default:
		c.logger.Warn("connection failed", "error", reason)
	}

	if c.onClose != nil {
		c.onClose(c)
	}
}
