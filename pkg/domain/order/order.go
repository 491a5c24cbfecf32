// Package order defines the Order bounded context.
// An Order is an aggregate root representing one customer's in-progress
// purchase, keyed by their normalized phone number. The context enforces the
// order state machine and the at-most-one-pending-order-per-customer
// invariant (the latter together with the application service).
package order

import (
	"fmt"
	"strings"

	"github.com/pasarlink/gateway/pkg/domain"
)

// ---------------------------------------------------------------------------
// Order aggregate root
// ---------------------------------------------------------------------------

// Status represents the order lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

// Terminal returns true when no further status mutation is permitted.
func (s Status) Terminal() bool { return s == StatusCompleted }

// Order is the aggregate root for the ordering context.
type Order struct {
	domain.AggregateRoot

	CustomerPhone string  `json:"customer_phone"` // always normalized
	Items         []Item  `json:"items"`
	Status        Status  `json:"status"`
	TotalAmount   float64 `json:"total_amount"`
	Notes         string  `json:"notes,omitempty"`

	CreatedAt   domain.Timestamp `json:"created_at"`
	ConfirmedAt domain.Timestamp `json:"confirmed_at,omitzero"`
	CancelledAt domain.Timestamp `json:"cancelled_at,omitzero"`
}

// New constructs a PENDING order for a normalized phone. The items list must
// be non-empty and every item must satisfy its own invariants. The total is
// derived from the items unless an explicit total is set afterwards via
// SetTotal. The ID stays zero until the repository assigns one on Save.
func New(normalizedPhone string, items []Item) (*Order, error) {
	if normalizedPhone == "" {
		return nil, ErrEmptyPhone
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	copied := make([]Item, len(items))
	copy(copied, items)
	for i := range copied {
		copied[i].Name = strings.TrimSpace(copied[i].Name)
		if copied[i].Unit == "" {
			copied[i].Unit = DefaultUnit
		}
		if err := copied[i].validate(); err != nil {
			return nil, err
		}
	}

	return &Order{
		CustomerPhone: normalizedPhone,
		Items:         copied,
		Status:        StatusPending,
		TotalAmount:   subtotalSum(copied),
		CreatedAt:     domain.Now(),
	}, nil
}

// SetTotal overrides the derived total with an explicitly supplied amount.
func (o *Order) SetTotal(amount float64) {
	o.TotalAmount = amount
}

// Confirm transitions PENDING → CONFIRMED and stamps ConfirmedAt.
func (o *Order) Confirm() error {
	if o.Status != StatusPending {
		return StateError(fmt.Sprintf("cannot confirm order in status %s", o.Status))
	}
	o.Status = StatusConfirmed
	o.ConfirmedAt = domain.Now()
	return nil
}

// Cancel transitions any non-COMPLETED status to CANCELLED and stamps
// CancelledAt. COMPLETED is terminal.
func (o *Order) Cancel() error {
	if o.Status.Terminal() {
		return StateError("cannot cancel a completed order")
	}
	o.Status = StatusCancelled
	o.CancelledAt = domain.Now()
	return nil
}

// Complete transitions CONFIRMED → COMPLETED (admin/backend action).
func (o *Order) Complete() error {
	if o.Status != StatusConfirmed {
		return StateError(fmt.Sprintf("cannot complete order in status %s", o.Status))
	}
	o.Status = StatusCompleted
	return nil
}

// ---------------------------------------------------------------------------
// Item value object
// ---------------------------------------------------------------------------

// DefaultUnit is assumed when an extracted item carries no unit.
const DefaultUnit = "kg"

// Item is one line of an order. Immutable once constructed; an Order is
// rebuilt rather than mutated item-by-item when its lines change.
type Item struct {
	Name  string  `json:"name"`
	Qty   float64 `json:"qty"`
	Unit  string  `json:"unit"`
	Price float64 `json:"price,omitempty"`
}

// NewItem validates and constructs an order line. The name is trimmed and
// must be non-empty; qty must be positive; an empty unit defaults to
// DefaultUnit.
func NewItem(name string, qty float64, unit string, price float64) (Item, error) {
	if unit == "" {
		unit = DefaultUnit
	}
	item := Item{Name: strings.TrimSpace(name), Qty: qty, Unit: unit, Price: price}
	if err := item.validate(); err != nil {
		return Item{}, err
	}
	return item, nil
}

// validate enforces the line invariants; Order construction re-applies it so
// items built outside NewItem cannot slip through.
func (i Item) validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyItemName
	}
	if i.Qty <= 0 {
		return ErrNonPositiveQty
	}
	if i.Price < 0 {
		return ErrNegativePrice
	}
	return nil
}

// Subtotal is qty × price when a price is present, else 0.
func (i Item) Subtotal() float64 {
	if i.Price <= 0 {
		return 0
	}
	return i.Qty * i.Price
}

func subtotalSum(items []Item) float64 {
	var total float64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// ---------------------------------------------------------------------------
// Repository interface — persistence port
// ---------------------------------------------------------------------------

// Repository defines persistence operations for Order aggregates. The
// backing store assigns the order ID on first Save when the aggregate's ID
// is accepted as-is or replaced by a store-generated one.
type Repository interface {
	Save(o *Order) error
	FindByID(id domain.EntityID) (*Order, error)
	FindByCustomerPhone(phone string) ([]*Order, error)
	FindPendingByCustomerPhone(phone string) (*Order, error)
	FindByStatus(status Status) ([]*Order, error)
	UpdateStatus(o *Order) error
	Delete(id domain.EntityID) error
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

// ValidationError rejects malformed input at the workflow boundary.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// StateError rejects an operation that is illegal in the current state.
type StateError string

func (e StateError) Error() string { return string(e) }

const (
	ErrEmptyPhone     ValidationError = "customer phone cannot be empty"
	ErrNoItems        ValidationError = "order must contain at least one item"
	ErrEmptyItemName  ValidationError = "item name cannot be empty"
	ErrNonPositiveQty ValidationError = "item quantity must be positive"
	ErrNegativePrice  ValidationError = "item price cannot be negative"

	ErrNoPendingOrder StateError = "no pending order for this customer"
	ErrNotFound       StateError = "order not found"
)
