package orchestrator

import (
	"sync"

	"github.com/pasarlink/gateway/pkg/domain/conversation"
)

// HistoryCache is the explicit staleness boundary for per-customer dialogue.
// A Get miss forces re-hydration from the persisted store; Invalidate is the
// contract for any side channel (operator reply, media placeholder written
// elsewhere) that appends to the store behind the cache's back.
type HistoryCache interface {
	Get(customerPhone string) (*conversation.History, bool)
	Set(customerPhone string, h *conversation.History)
	Invalidate(customerPhone string)
}

// MemoryCache is the process-wide in-memory implementation. Entries for
// different customers are independent; the gateway relies on the transport
// serializing one customer's messages, so per-customer locking is not
// provided here.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*conversation.History
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*conversation.History)}
}

func (c *MemoryCache) Get(customerPhone string) (*conversation.History, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[customerPhone]
	return h, ok
}

func (c *MemoryCache) Set(customerPhone string, h *conversation.History) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[customerPhone] = h
}

func (c *MemoryCache) Invalidate(customerPhone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, customerPhone)
}

var _ HistoryCache = (*MemoryCache)(nil)
