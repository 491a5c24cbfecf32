package persistence

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/conversation"
	"github.com/pasarlink/gateway/pkg/domain/order"
)

// ---------------------------------------------------------------------------
// In-memory order repository
// ---------------------------------------------------------------------------

// MemoryOrderRepository keeps orders in a process-local map. It backs the
// gateway when no commerce base URL is configured and doubles as the test
// repository. IDs are assigned on first Save, mirroring the backend's
// behavior.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[domain.EntityID]*order.Order
}

// NewMemoryOrderRepository creates an empty repository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[domain.EntityID]*order.Order)}
}

func (r *MemoryOrderRepository) Save(o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID().IsZero() {
		o.SetID(domain.EntityID(uuid.NewString()))
	}
	copied := *o
	r.orders[o.ID()] = &copied
	return nil
}

func (r *MemoryOrderRepository) FindByID(id domain.EntityID) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *MemoryOrderRepository) FindByCustomerPhone(phone string) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*order.Order
	for _, o := range r.orders {
		if o.CustomerPhone == phone {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *MemoryOrderRepository) FindPendingByCustomerPhone(phone string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.CustomerPhone == phone && o.Status == order.StatusPending {
			copied := *o
			return &copied, nil
		}
	}
	return nil, order.ErrNoPendingOrder
}

func (r *MemoryOrderRepository) FindByStatus(status order.Status) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*order.Order
	for _, o := range r.orders {
		if o.Status == status {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *MemoryOrderRepository) UpdateStatus(o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID()]
	if !ok {
		return order.ErrNotFound
	}
	stored.Status = o.Status
	stored.ConfirmedAt = o.ConfirmedAt
	stored.CancelledAt = o.CancelledAt
	return nil
}

func (r *MemoryOrderRepository) Delete(id domain.EntityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
	return nil
}

// Compile-time verification
var _ order.Repository = (*MemoryOrderRepository)(nil)

// ---------------------------------------------------------------------------
// In-memory conversation repository
// ---------------------------------------------------------------------------

// MemoryConversationRepository keeps dialogue logs in a process-local map.
// Used by tests and as a fallback when the SQLite store cannot be opened.
type MemoryConversationRepository struct {
	mu   sync.RWMutex
	logs map[string][]conversation.Entry
}

// NewMemoryConversationRepository creates an empty repository.
func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{logs: make(map[string][]conversation.Entry)}
}

func (r *MemoryConversationRepository) Append(customerPhone string, role domain.MessageRole, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[customerPhone] = append(r.logs[customerPhone], conversation.Entry{
		Role:      role,
		Content:   content,
		Timestamp: domain.Now(),
	})
	return nil
}

func (r *MemoryConversationRepository) FindByPhone(customerPhone string, limit int) ([]conversation.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.logs[customerPhone]
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]conversation.Entry, len(log))
	copy(out, log)
	return out, nil
}

func (r *MemoryConversationRepository) DeleteByPhone(customerPhone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logs, customerPhone)
	return nil
}

// Compile-time verification
var _ conversation.Repository = (*MemoryConversationRepository)(nil)
