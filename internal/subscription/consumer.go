package subscription

import (
	"github.com/google/uuid"

	"github.com/rickgao/tradeflow/internal/model"
)

// Handler receives a newest-first snapshot of a symbol's trades.
// The slice is owned by the handler and may be retained.
type Handler func(trades []model.Trade)

// Consumer is an identity-bearing handler. Registries key consumers by ID, so
// the same Consumer attached twice to a symbol counts once. One Consumer may
// be attached to any number of symbols.
type Consumer struct {
	id     uuid.UUID
	handle Handler
}

// NewConsumer wraps h with a fresh identity.
func NewConsumer(h Handler) *Consumer {
	return &Consumer{id: uuid.New(), handle: h}
}

// ID returns the consumer's identity.
func (c *Consumer) ID() uuid.UUID {
	return c.id
}

func (c *Consumer) deliver(trades []model.Trade) {
	c.handle(trades)
}
