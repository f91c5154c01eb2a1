package connection

import (
	"context"
	"sync"
)

// Ready is a one-shot readiness cell. It starts pending and settles exactly
// once, either ready or failed with an error. Later transitions are ignored.
type Ready struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	err     error
}

// NewReady returns a pending cell.
func NewReady() *Ready {
	return &Ready{done: make(chan struct{})}
}

// Resolve marks the cell ready. It reports whether this call settled it.
func (r *Ready) Resolve() bool {
	return r.settle(nil)
}

// Reject marks the cell failed with err. It reports whether this call settled it.
func (r *Ready) Reject(err error) bool {
	return r.settle(err)
}

func (r *Ready) settle(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled {
		return false
	}
	r.settled = true
	r.err = err
	close(r.done)
	return true
}

// Done is closed once the cell settles.
func (r *Ready) Done() <-chan struct{} {
	return r.done
}

// Err returns the failure, or nil if the cell is pending or ready.
func (r *Ready) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until the cell settles or ctx is done.
func (r *Ready) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
