package eventbus

import (
	"testing"

	"github.com/pasarlink/gateway/pkg/domain"
)

func TestPublishRoutesByType(t *testing.T) {
	bus := New()

	var typed, all int
	bus.Subscribe(domain.EventOrderCreated, func(e domain.Event) { typed++ })
	bus.SubscribeAll(func(e domain.Event) { all++ })

	bus.Publish(domain.NewEvent(domain.EventOrderCreated, "o1", nil))
	bus.Publish(domain.NewEvent(domain.EventOrderCancelled, "o1", nil))

	if typed != 1 {
		t.Errorf("typed handler calls = %d, want 1", typed)
	}
	if all != 2 {
		t.Errorf("all handler calls = %d, want 2", all)
	}
}

func TestPanickingObserverIsolated(t *testing.T) {
	bus := New()

	var reached bool
	bus.SubscribeAll(func(e domain.Event) { panic("observer bug") })
	bus.SubscribeAll(func(e domain.Event) { reached = true })

	bus.Publish(domain.NewEvent(domain.EventMessageSent, "s1", nil))

	if !reached {
		t.Error("panicking observer blocked the next handler")
	}
}

func TestClosedBusDropsEvents(t *testing.T) {
	bus := New()

	var calls int
	bus.SubscribeAll(func(e domain.Event) { calls++ })
	bus.Close()
	bus.Publish(domain.NewEvent(domain.EventMessageSent, "s1", nil))

	if calls != 0 {
		t.Errorf("handler calls after Close = %d, want 0", calls)
	}
}

func TestHandlerCount(t *testing.T) {
	bus := New()
	bus.Subscribe(domain.EventOrderCreated, func(e domain.Event) {})
	bus.Subscribe(domain.EventOrderCreated, func(e domain.Event) {})
	bus.SubscribeAll(func(e domain.Event) {})

	if got := bus.HandlerCount(); got != 3 {
		t.Errorf("HandlerCount = %d, want 3", got)
	}
}
