// Package conversation defines the Conversation bounded context.
// A History is the ordered dialogue between one customer and the assistant:
// a pinned system instruction at position 0 followed by a bounded tail of
// user/assistant turns.
package conversation

import (
	"github.com/pasarlink/gateway/pkg/domain"
)

// ---------------------------------------------------------------------------
// History aggregate
// ---------------------------------------------------------------------------

// Entry is a single dialogue turn. Immutable once appended.
type Entry struct {
	Role      domain.MessageRole `json:"role"`
	Content   string             `json:"content"`
	Timestamp domain.Timestamp   `json:"timestamp"`
}

// History is the per-customer dialogue. The pinned system entry is stored
// separately from the turn list so it can never be evicted by the cap.
type History struct {
	domain.AggregateRoot

	CustomerPhone string  `json:"customer_phone"` // normalized
	System        string  `json:"system"`         // pinned instruction
	Turns         []Entry `json:"turns"`
	MaxTurns      int     `json:"max_turns"`
}

// NewHistory creates an empty history for a customer with a pinned system
// instruction and a turn cap. maxTurns counts the non-pinned tail only.
func NewHistory(customerPhone, system string, maxTurns int) *History {
	if maxTurns < 1 {
		maxTurns = 1
	}
	h := &History{
		CustomerPhone: customerPhone,
		System:        system,
		Turns:         make([]Entry, 0, maxTurns),
		MaxTurns:      maxTurns,
	}
	h.SetID(domain.NewID())
	return h
}

// Append adds a turn and evicts the oldest non-pinned entries when the cap
// is exceeded. The pinned system instruction is never dropped.
func (h *History) Append(role domain.MessageRole, content string) {
	h.Turns = append(h.Turns, Entry{
		Role:      role,
		Content:   content,
		Timestamp: domain.Now(),
	})
	if over := len(h.Turns) - h.MaxTurns; over > 0 {
		h.Turns = append(h.Turns[:0:0], h.Turns[over:]...)
	}
	h.RecordEvent(domain.NewEvent(domain.EventConversationAppended, h.ID(), map[string]string{
		"customer_phone": h.CustomerPhone,
		"role":           string(role),
	}))
}

// Len returns the number of non-pinned turns.
func (h *History) Len() int { return len(h.Turns) }

// Tail returns a copy of the turn list (pinned entry excluded).
func (h *History) Tail() []Entry {
	out := make([]Entry, len(h.Turns))
	copy(out, h.Turns)
	return out
}

// ---------------------------------------------------------------------------
// Repository interface — persistence port
// ---------------------------------------------------------------------------

// Repository persists per-customer dialogue logs. Append writes through to
// the store; FindByPhone hydrates the most recent turns up to limit.
// Implementations must preserve append order.
type Repository interface {
	Append(customerPhone string, role domain.MessageRole, content string) error
	FindByPhone(customerPhone string, limit int) ([]Entry, error)
	DeleteByPhone(customerPhone string) error
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotFound Error = "conversation not found"
)
