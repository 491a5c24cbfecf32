// Package app hosts the application services that coordinate the domain
// aggregates, their repositories, and the event bus.
package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/logger"
)

const orderComponent = "order_service"

// OrderService is the workflow engine for the ordering context. It enforces
// the at-most-one-pending-order-per-customer invariant with replace
// semantics and publishes order lifecycle events after persistence.
type OrderService struct {
	repo        order.Repository
	bus         domain.EventBus
	countryCode string
}

// NewOrderService wires the workflow engine.
func NewOrderService(repo order.Repository, bus domain.EventBus, countryCode string) *OrderService {
	return &OrderService{repo: repo, bus: bus, countryCode: countryCode}
}

// CreatePendingOrder replaces any existing pending order for the customer
// with a fresh PENDING one built from the extracted items. Returns the saved
// aggregate with its store-assigned ID.
func (s *OrderService) CreatePendingOrder(customerPhone string, items []order.Item, notes string) (*order.Order, error) {
	phone := order.NormalizePhone(customerPhone, s.countryCode)

	// Build the replacement first; a rejected extraction must not destroy
	// the draft it would have superseded.
	o, err := order.New(phone, items)
	if err != nil {
		return nil, err
	}
	o.Notes = strings.TrimSpace(notes)

	// Replace semantics: a new extraction supersedes the previous draft.
	if existing, err := s.repo.FindPendingByCustomerPhone(phone); err == nil {
		if err := s.repo.Delete(existing.ID()); err != nil {
			return nil, fmt.Errorf("replace pending order: %w", err)
		}
		logger.InfoCF(orderComponent, "replaced existing pending order", map[string]interface{}{
			"customer_phone": phone,
			"order_id":       string(existing.ID()),
		})
	} else if !errors.Is(err, order.ErrNoPendingOrder) {
		return nil, err
	}

	if err := s.repo.Save(o); err != nil {
		return nil, fmt.Errorf("save pending order: %w", err)
	}

	s.publish(domain.EventOrderCreated, o)
	return o, nil
}

// ConfirmOrder moves the customer's pending order to CONFIRMED.
// Returns order.ErrNoPendingOrder when there is nothing to confirm.
func (s *OrderService) ConfirmOrder(customerPhone string) (*order.Order, error) {
	phone := order.NormalizePhone(customerPhone, s.countryCode)

	o, err := s.repo.FindPendingByCustomerPhone(phone)
	if err != nil {
		return nil, err
	}
	if err := o.Confirm(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(o); err != nil {
		return nil, fmt.Errorf("persist confirmation: %w", err)
	}

	s.publish(domain.EventOrderConfirmed, o)
	return o, nil
}

// CancelOrder cancels the customer's pending order.
// Returns order.ErrNoPendingOrder when there is nothing to cancel.
func (s *OrderService) CancelOrder(customerPhone string) (*order.Order, error) {
	phone := order.NormalizePhone(customerPhone, s.countryCode)

	o, err := s.repo.FindPendingByCustomerPhone(phone)
	if err != nil {
		return nil, err
	}
	if err := o.Cancel(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(o); err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}

	s.publish(domain.EventOrderCancelled, o)
	return o, nil
}

// ExpireOrder cancels a stale pending order on behalf of the sweeper and
// publishes order.expired instead of order.cancelled.
func (s *OrderService) ExpireOrder(o *order.Order) error {
	if err := o.Cancel(); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(o); err != nil {
		return fmt.Errorf("persist expiry: %w", err)
	}
	s.publish(domain.EventOrderExpired, o)
	return nil
}

// ListOrders returns orders filtered by status, or all orders for a customer
// when phone is set. Used by the admin query surface.
func (s *OrderService) ListOrders(phone string, status order.Status) ([]*order.Order, error) {
	if phone != "" {
		return s.repo.FindByCustomerPhone(order.NormalizePhone(phone, s.countryCode))
	}
	if status != "" {
		return s.repo.FindByStatus(status)
	}
	return s.repo.FindByStatus(order.StatusPending)
}

// SummaryText renders the order lines for a chat message, one numbered line
// per item: "1. lele 5 kg".
func (s *OrderService) SummaryText(o *order.Order) string {
	var b strings.Builder
	for i, item := range o.Items {
		fmt.Fprintf(&b, "%d. %s %s %s\n", i+1, item.Name, trimFloat(item.Qty), item.Unit)
	}
	if o.Notes != "" {
		fmt.Fprintf(&b, "Catatan: %s\n", o.Notes)
	}
	if o.TotalAmount > 0 {
		fmt.Fprintf(&b, "Total: %s\n", trimFloat(o.TotalAmount))
	}
	return strings.TrimRight(b.String(), "\n")
}

// trimFloat formats a quantity without a trailing ".0" for whole numbers.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (s *OrderService) publish(eventType domain.EventType, o *order.Order) {
	s.bus.Publish(domain.NewEvent(eventType, o.ID(), map[string]interface{}{
		"customer_phone": o.CustomerPhone,
		"status":         o.Status.String(),
		"total_amount":   o.TotalAmount,
		"items":          len(o.Items),
	}))
}
