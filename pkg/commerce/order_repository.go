package commerce

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/order"
)

// orderDTO is the wire shape of an order on the backend.
type orderDTO struct {
	ID            string     `json:"id,omitempty"`
	CustomerPhone string     `json:"customer_phone"`
	Items         []itemDTO  `json:"items"`
	Status        string     `json:"status"`
	TotalAmount   float64    `json:"total_amount"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitzero"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

type itemDTO struct {
	Name  string  `json:"name"`
	Qty   float64 `json:"qty"`
	Unit  string  `json:"unit"`
	Price float64 `json:"price,omitempty"`
}

// OrderRepository persists orders through the commerce backend's REST API.
// The backend assigns order IDs on create.
type OrderRepository struct {
	client *Client
}

// NewOrderRepository wraps a commerce client as an order repository.
func NewOrderRepository(client *Client) *OrderRepository {
	return &OrderRepository{client: client}
}

// Save creates the order on the backend and adopts the assigned ID. Orders
// that already carry a backend ID are updated in place.
func (r *OrderRepository) Save(o *order.Order) error {
	dto := toDTO(o)

	var saved orderDTO
	req := r.client.http.R().
		SetContext(context.Background()).
		SetBody(dto).
		SetResult(&saved)

	var resp *resty.Response
	var err error
	if o.ID().IsZero() {
		resp, err = req.Post("/api/orders")
	} else {
		resp, err = req.Put("/api/orders/" + o.ID().String())
	}
	if err != nil {
		return fmt.Errorf("commerce: save order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("commerce: save order: status %d", resp.StatusCode())
	}
	if saved.ID != "" {
		o.SetID(domain.EntityID(saved.ID))
	}
	return nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(id domain.EntityID) (*order.Order, error) {
	var dto orderDTO
	resp, err := r.client.http.R().
		SetContext(context.Background()).
		SetResult(&dto).
		Get("/api/orders/" + id.String())
	if err != nil {
		return nil, fmt.Errorf("commerce: find order: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, order.ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("commerce: find order: status %d", resp.StatusCode())
	}
	return fromDTO(dto), nil
}

// FindByCustomerPhone lists every order for a normalized phone.
func (r *OrderRepository) FindByCustomerPhone(phone string) ([]*order.Order, error) {
	return r.query(map[string]string{"phone": phone})
}

// FindPendingByCustomerPhone returns the single PENDING order for a phone,
// or order.ErrNoPendingOrder.
func (r *OrderRepository) FindPendingByCustomerPhone(phone string) (*order.Order, error) {
	matches, err := r.query(map[string]string{
		"phone":  phone,
		"status": order.StatusPending.String(),
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, order.ErrNoPendingOrder
	}
	return matches[0], nil
}

// FindByStatus lists orders in a given status.
func (r *OrderRepository) FindByStatus(status order.Status) ([]*order.Order, error) {
	return r.query(map[string]string{"status": status.String()})
}

// UpdateStatus pushes a status transition (with its timestamps) to the
// backend.
func (r *OrderRepository) UpdateStatus(o *order.Order) error {
	body := map[string]interface{}{"status": o.Status.String()}
	if !o.ConfirmedAt.IsZero() {
		body["confirmed_at"] = o.ConfirmedAt.Time
	}
	if !o.CancelledAt.IsZero() {
		body["cancelled_at"] = o.CancelledAt.Time
	}

	resp, err := r.client.http.R().
		SetContext(context.Background()).
		SetBody(body).
		Patch("/api/orders/" + o.ID().String() + "/status")
	if err != nil {
		return fmt.Errorf("commerce: update status: %w", err)
	}
	if resp.StatusCode() == 404 {
		return order.ErrNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("commerce: update status: status %d", resp.StatusCode())
	}
	return nil
}

// Delete removes an order (used by the pending-order replace step).
func (r *OrderRepository) Delete(id domain.EntityID) error {
	resp, err := r.client.http.R().
		SetContext(context.Background()).
		Delete("/api/orders/" + id.String())
	if err != nil {
		return fmt.Errorf("commerce: delete order: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return fmt.Errorf("commerce: delete order: status %d", resp.StatusCode())
	}
	return nil
}

func (r *OrderRepository) query(params map[string]string) ([]*order.Order, error) {
	var dtos []orderDTO
	resp, err := r.client.http.R().
		SetContext(context.Background()).
		SetQueryParams(params).
		SetResult(&dtos).
		Get("/api/orders")
	if err != nil {
		return nil, fmt.Errorf("commerce: query orders: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("commerce: query orders: status %d", resp.StatusCode())
	}

	orders := make([]*order.Order, 0, len(dtos))
	for _, dto := range dtos {
		orders = append(orders, fromDTO(dto))
	}
	return orders, nil
}

// --- mapping ---

func toDTO(o *order.Order) orderDTO {
	items := make([]itemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemDTO{Name: it.Name, Qty: it.Qty, Unit: it.Unit, Price: it.Price}
	}
	return orderDTO{
		ID:            o.ID().String(),
		CustomerPhone: o.CustomerPhone,
		Items:         items,
		Status:        o.Status.String(),
		TotalAmount:   o.TotalAmount,
		Notes:         o.Notes,
		CreatedAt:     o.CreatedAt.Time,
	}
}

func fromDTO(dto orderDTO) *order.Order {
	items := make([]order.Item, len(dto.Items))
	for i, it := range dto.Items {
		items[i] = order.Item{Name: it.Name, Qty: it.Qty, Unit: it.Unit, Price: it.Price}
	}
	o := &order.Order{
		CustomerPhone: dto.CustomerPhone,
		Items:         items,
		Status:        order.Status(dto.Status),
		TotalAmount:   dto.TotalAmount,
		Notes:         dto.Notes,
		CreatedAt:     domain.TimestampFrom(dto.CreatedAt),
	}
	if dto.ConfirmedAt != nil {
		o.ConfirmedAt = domain.TimestampFrom(*dto.ConfirmedAt)
	}
	if dto.CancelledAt != nil {
		o.CancelledAt = domain.TimestampFrom(*dto.CancelledAt)
	}
	o.SetID(domain.EntityID(dto.ID))
	return o
}

// Ensure OrderRepository implements the persistence port.
var _ order.Repository = (*OrderRepository)(nil)
