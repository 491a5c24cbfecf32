// Package dispatch routes inbound transport messages to the first handler
// that claims them: quick-reply taps, plain text, then media placeholders.
package dispatch

import (
	"context"

	"github.com/pasarlink/gateway/pkg/logger"
	"github.com/pasarlink/gateway/pkg/transport"
)

const component = "dispatch"

// Handler processes one kind of inbound message.
type Handler interface {
	// CanHandle reports whether this handler claims the message.
	CanHandle(msg transport.Message) bool
	// Handle processes the message. A returned error is logged and isolated;
	// it never aborts the rest of the batch.
	Handle(ctx context.Context, msg transport.Message) error
}

// Dispatcher walks an ordered handler chain for every inbound message.
// Self-echoed messages are filtered before any handler sees them.
type Dispatcher struct {
	handlers []Handler
}

// NewDispatcher builds a dispatcher over an ordered handler chain. Order
// matters: the first handler whose CanHandle returns true wins.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Dispatch routes one inbound batch. Each message is handled independently;
// a failing handler is logged and the batch continues.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []transport.Message) {
	for _, msg := range batch {
		if msg.FromMe {
			continue
		}
		d.route(ctx, msg)
	}
}

func (d *Dispatcher) route(ctx context.Context, msg transport.Message) {
	for _, h := range d.handlers {
		if !h.CanHandle(msg) {
			continue
		}
		if err := h.Handle(ctx, msg); err != nil {
			logger.ErrorCF(component, "handler failed", map[string]interface{}{
				"kind":  msg.Kind,
				"from":  msg.From,
				"error": err.Error(),
			})
		}
		return
	}
	logger.DebugCF(component, "no handler for message kind, dropping", map[string]interface{}{
		"kind": msg.Kind,
		"from": msg.From,
	})
}
