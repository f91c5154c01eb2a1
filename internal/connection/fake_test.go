package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/subscription"
)

// fakeClient is an in-memory Client. Tests push inbound frames with push and
// read outbound frames with sent.
type fakeClient struct {
	url        string
	connectErr error
	gate       chan struct{} // Connect blocks until closed, if set

	messages chan TimestampedMessage
	errors   chan error
	stop     chan struct{}

	mu        sync.Mutex
	out       []string
	connected bool
	closed    bool
}

func newFakeClient(url string) *fakeClient {
	return &fakeClient{
		url:      url,
		messages: make(chan TimestampedMessage),
		errors:   make(chan error, 1),
		stop:     make(chan struct{}),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.stop:
			return ErrAlreadyClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.connectErr != nil {
		return f.connectErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrAlreadyClosed
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.stop)
	}
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.out = append(f.out, string(data))
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }

func (f *fakeClient) Errors() <-chan error { return f.errors }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.out...)
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// push hands a frame to the dispatch goroutine and returns once it has been
// picked up.
func (f *fakeClient) push(raw string) {
	f.messages <- TimestampedMessage{Data: []byte(raw), ReceivedAt: time.Now()}
}

// fakeDialer hands out fakeClients and remembers them.
type fakeDialer struct {
	prepare func(*fakeClient)

	mu      sync.Mutex
	clients []*fakeClient
}

func (d *fakeDialer) dial(cfg ClientConfig, _ *slog.Logger) Client {
	c := newFakeClient(cfg.URL)
	if d.prepare != nil {
		d.prepare(c)
	}

	d.mu.Lock()
	d.clients = append(d.clients, c)
	d.mu.Unlock()
	return c
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) last() *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

// recorder collects every snapshot its consumer receives. Handlers run on the
// dispatch goroutine, so access is locked.
type recorder struct {
	mu    sync.Mutex
	calls [][]model.Trade
}

func (r *recorder) consumer() *subscription.Consumer {
	return subscription.NewConsumer(func(trades []model.Trade) {
		r.mu.Lock()
		r.calls = append(r.calls, trades)
		r.mu.Unlock()
	})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() []model.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

// match builds a GDAX match frame at ms past a fixed second.
func match(product string, ms int, side, size, price string) string {
	return fmt.Sprintf(
		`{"type":"match","product_id":%q,"time":"2024-01-02T03:04:05.%03dZ","side":%q,"size":%q,"price":%q}`,
		product, ms, side, size, price)
}

// matchMillis is the epoch time produced by match(_, ms, ...).
func matchMillis(ms int) int64 {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli() + int64(ms)
}
