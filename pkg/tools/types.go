// Package tools implements the function-calling registry the AI orchestrator
// executes against. Each tool declares a JSON-schema parameter shape and
// returns a structured result envelope; execution failures are captured in
// the envelope rather than aborting the dialogue.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pasarlink/gateway/pkg/providers"
)

// Tool is one callable function exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Result is the envelope fed back to the model as a function's outcome.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// JSON renders the envelope for the synthetic tool-results turn.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unserializable result"}`
	}
	return string(data)
}

// Registry holds the declared tools and executes them by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string // registration order, kept stable for declarations
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Definitions returns the tool declarations in registration order.
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// List returns the registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Execute runs the named tool and wraps the outcome. An unknown name or a
// tool's own failure is reported inside the envelope, never as an error —
// the conversation continues with the model seeing the failure.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) Result {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("unknown function %q", name)}
	}

	data, err := t.Execute(ctx, args)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: data}
}
