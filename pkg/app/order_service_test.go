package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/infrastructure/eventbus"
	"github.com/pasarlink/gateway/pkg/infrastructure/persistence"
)

func newService(t *testing.T) (*OrderService, *persistence.MemoryOrderRepository, *eventRecorder) {
	t.Helper()
	repo := persistence.NewMemoryOrderRepository()
	bus := eventbus.New()
	rec := &eventRecorder{}
	bus.SubscribeAll(rec.record)
	return NewOrderService(repo, bus, "62"), repo, rec
}

type eventRecorder struct {
	types []domain.EventType
}

func (r *eventRecorder) record(e domain.Event) { r.types = append(r.types, e.EventType()) }

func (r *eventRecorder) has(t domain.EventType) bool {
	for _, got := range r.types {
		if got == t {
			return true
		}
	}
	return false
}

func items(t *testing.T) []order.Item {
	t.Helper()
	item, err := order.NewItem("lele", 5, "kg", 0)
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	return []order.Item{item}
}

func TestCreatePendingOrderAssignsID(t *testing.T) {
	svc, _, rec := newService(t)

	o, err := svc.CreatePendingOrder("081234567890", items(t), "antar sore")
	if err != nil {
		t.Fatalf("CreatePendingOrder: %v", err)
	}
	if o.ID().IsZero() {
		t.Error("saved order has no ID")
	}
	if o.CustomerPhone != "6281234567890" {
		t.Errorf("CustomerPhone = %q, want normalized form", o.CustomerPhone)
	}
	if o.Notes != "antar sore" {
		t.Errorf("Notes = %q", o.Notes)
	}
	if !rec.has(domain.EventOrderCreated) {
		t.Error("order.created not published")
	}
}

func TestCreatePendingOrderRejectsInvalidItems(t *testing.T) {
	svc, repo, rec := newService(t)

	bad := []order.Item{{Name: "lele", Qty: 0, Unit: "kg"}}
	if _, err := svc.CreatePendingOrder("081234567890", bad, ""); !errors.Is(err, order.ErrNonPositiveQty) {
		t.Fatalf("err = %v, want %v", err, order.ErrNonPositiveQty)
	}
	if _, err := repo.FindPendingByCustomerPhone("6281234567890"); !errors.Is(err, order.ErrNoPendingOrder) {
		t.Errorf("rejected order was persisted: %v", err)
	}
	if rec.has(domain.EventOrderCreated) {
		t.Error("order.created published for a rejected order")
	}

	// A rejected extraction leaves an existing draft untouched.
	if _, err := svc.CreatePendingOrder("081234567890", items(t), ""); err != nil {
		t.Fatalf("CreatePendingOrder: %v", err)
	}
	if _, err := svc.CreatePendingOrder("081234567890", bad, ""); err == nil {
		t.Fatal("invalid items accepted")
	}
	pending, err := repo.FindPendingByCustomerPhone("6281234567890")
	if err != nil {
		t.Fatalf("draft lost after rejected replacement: %v", err)
	}
	if pending.Items[0].Name != "lele" {
		t.Errorf("surviving draft items = %+v", pending.Items)
	}
}

func TestCreatePendingOrderReplacesExisting(t *testing.T) {
	svc, repo, _ := newService(t)

	first, err := svc.CreatePendingOrder("081234567890", items(t), "")
	if err != nil {
		t.Fatalf("first CreatePendingOrder: %v", err)
	}

	newItem, _ := order.NewItem("ayam", 2, "ekor", 0)
	second, err := svc.CreatePendingOrder("+6281234567890", []order.Item{newItem}, "")
	if err != nil {
		t.Fatalf("second CreatePendingOrder: %v", err)
	}

	if second.ID() == first.ID() {
		t.Error("replacement reused the old ID")
	}
	if _, err := repo.FindByID(first.ID()); !errors.Is(err, order.ErrNotFound) {
		t.Errorf("old pending order still present: %v", err)
	}

	pending, err := repo.FindPendingByCustomerPhone("6281234567890")
	if err != nil {
		t.Fatalf("FindPendingByCustomerPhone: %v", err)
	}
	if pending.Items[0].Name != "ayam" {
		t.Errorf("surviving pending order has items %+v", pending.Items)
	}
}

func TestConfirmOrder(t *testing.T) {
	svc, repo, rec := newService(t)

	created, err := svc.CreatePendingOrder("081234567890", items(t), "")
	if err != nil {
		t.Fatalf("CreatePendingOrder: %v", err)
	}

	confirmed, err := svc.ConfirmOrder("081234567890")
	if err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}
	if confirmed.Status != order.StatusConfirmed {
		t.Errorf("Status = %v, want %v", confirmed.Status, order.StatusConfirmed)
	}

	stored, _ := repo.FindByID(created.ID())
	if stored.Status != order.StatusConfirmed {
		t.Errorf("persisted status = %v, want %v", stored.Status, order.StatusConfirmed)
	}
	if !rec.has(domain.EventOrderConfirmed) {
		t.Error("order.confirmed not published")
	}
}

func TestConfirmWithoutPending(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.ConfirmOrder("081234567890")
	if !errors.Is(err, order.ErrNoPendingOrder) {
		t.Errorf("err = %v, want %v", err, order.ErrNoPendingOrder)
	}
}

func TestCancelOrder(t *testing.T) {
	svc, _, rec := newService(t)

	if _, err := svc.CreatePendingOrder("081234567890", items(t), ""); err != nil {
		t.Fatalf("CreatePendingOrder: %v", err)
	}
	cancelled, err := svc.CancelOrder("081234567890")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != order.StatusCancelled {
		t.Errorf("Status = %v, want %v", cancelled.Status, order.StatusCancelled)
	}
	if !rec.has(domain.EventOrderCancelled) {
		t.Error("order.cancelled not published")
	}

	// The cancelled order no longer counts as pending.
	if _, err := svc.CancelOrder("081234567890"); !errors.Is(err, order.ErrNoPendingOrder) {
		t.Errorf("second cancel err = %v, want %v", err, order.ErrNoPendingOrder)
	}
}

func TestExpireOrderPublishesExpired(t *testing.T) {
	svc, _, rec := newService(t)

	o, err := svc.CreatePendingOrder("081234567890", items(t), "")
	if err != nil {
		t.Fatalf("CreatePendingOrder: %v", err)
	}
	if err := svc.ExpireOrder(o); err != nil {
		t.Fatalf("ExpireOrder: %v", err)
	}
	if !rec.has(domain.EventOrderExpired) {
		t.Error("order.expired not published")
	}
	if rec.has(domain.EventOrderCancelled) {
		t.Error("expiry must not publish order.cancelled")
	}
}

func TestSummaryText(t *testing.T) {
	svc, _, _ := newService(t)

	lele, _ := order.NewItem("lele", 5, "kg", 0)
	ayam, _ := order.NewItem("ayam", 2.5, "ekor", 0)
	o, err := order.New("6281234567890", []order.Item{lele, ayam})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := svc.SummaryText(o)
	want := "1. lele 5 kg\n2. ayam 2.5 ekor"
	if got != want {
		t.Errorf("SummaryText = %q, want %q", got, want)
	}
}

func TestSummaryTextWithNotesAndTotal(t *testing.T) {
	svc, _, _ := newService(t)

	lele, _ := order.NewItem("lele", 5, "kg", 20000)
	o, err := order.New("6281234567890", []order.Item{lele})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o.Notes = "antar sore"

	got := svc.SummaryText(o)
	if !strings.Contains(got, "1. lele 5 kg") {
		t.Errorf("missing item line: %q", got)
	}
	if !strings.Contains(got, "Catatan: antar sore") {
		t.Errorf("missing notes line: %q", got)
	}
	if !strings.Contains(got, "Total: 100000") {
		t.Errorf("missing total line: %q", got)
	}
}
