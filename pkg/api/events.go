// Event bridge — wires the domain event bus into the WebSocket hub. Every
// gateway event (QR, connection status, messages, orders, AI activity) fans
// out to all connected observers; a missing observer loses nothing the
// gateway depends on.
package api

import (
	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/logger"
)

// EventBridge forwards domain events to WebSocket clients.
type EventBridge struct {
	bus domain.EventBus
	hub *WSHub
}

// NewEventBridge creates a bridge over the event bus.
func NewEventBridge(bus domain.EventBus, hub *WSHub) *EventBridge {
	return &EventBridge{bus: bus, hub: hub}
}

// Run subscribes the bridge to every event type. Subscription is synchronous;
// the hub's buffered broadcast channel decouples observers from publishers.
func (eb *EventBridge) Run() {
	eb.bus.SubscribeAll(func(event domain.Event) {
		eb.hub.Broadcast(string(event.EventType()), map[string]interface{}{
			"aggregate_id": string(event.AggregateID()),
			"occurred_at":  event.OccurredAt(),
			"data":         event.Payload(),
		})
	})
	logger.InfoC("events", "event bridge started — forwarding domain events to WebSocket")
}
