// Package orchestrator drives the AI side of the conversation: it feeds the
// per-customer dialogue to the LLM port, executes the tool invocations the
// model requests, and loops until the model answers in plain text.
package orchestrator

import (
	"context"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/conversation"
	"github.com/pasarlink/gateway/pkg/logger"
	"github.com/pasarlink/gateway/pkg/providers"
	"github.com/pasarlink/gateway/pkg/tools"
)

const component = "orchestrator"

// ExecutedCall records one tool invocation from the dialogue, in execution
// order across all loop iterations.
type ExecutedCall struct {
	Function string                 `json:"function"`
	Args     map[string]interface{} `json:"args,omitempty"`
	Result   tools.Result           `json:"result"`
}

// Options tunes the orchestrator.
type Options struct {
	SystemInstruction string
	HistoryLimit      int     // non-pinned turns kept per customer
	MaxToolRounds     int     // hard bound on the tool-calling loop
	Temperature       float64
	MaxOutputTokens   int
}

// Orchestrator owns the per-customer dialogue cache and the tool loop.
type Orchestrator struct {
	provider providers.LLMProvider
	registry *tools.Registry
	repo     conversation.Repository
	cache    HistoryCache
	bus      domain.EventBus
	opts     Options
}

// New wires an orchestrator. All dependencies are explicit; tests substitute
// scripted providers and in-memory repositories.
func New(provider providers.LLMProvider, registry *tools.Registry, repo conversation.Repository, cache HistoryCache, bus domain.EventBus, opts Options) *Orchestrator {
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = 20
	}
	if opts.MaxToolRounds < 1 {
		opts.MaxToolRounds = 8
	}
	return &Orchestrator{
		provider: provider,
		registry: registry,
		repo:     repo,
		cache:    cache,
		bus:      bus,
		opts:     opts,
	}
}

// Chat appends the customer's message, runs the tool-calling loop, and
// returns the model's final text together with every executed function call.
// A provider transport failure propagates untouched; tool failures stay
// inside the loop as structured results.
func (o *Orchestrator) Chat(ctx context.Context, customerPhone, message string) (string, []ExecutedCall, error) {
	history, err := o.load(customerPhone)
	if err != nil {
		return "", nil, err
	}

	history.Append(domain.RoleUser, message)
	if err := o.repo.Append(customerPhone, domain.RoleUser, message); err != nil {
		return "", nil, err
	}
	o.drain(history)

	req := providers.ChatRequest{
		SystemInstruction: o.opts.SystemInstruction,
		Turns:             turnsFrom(history),
		Tools:             o.registry.Definitions(),
		ForceToolUse:      true,
		Temperature:       o.opts.Temperature,
		MaxOutputTokens:   o.opts.MaxOutputTokens,
	}

	var executed []ExecutedCall
	var final string

	for round := 0; round < o.opts.MaxToolRounds; round++ {
		resp, err := o.provider.Chat(ctx, req)
		if err != nil {
			o.bus.Publish(domain.NewEvent(domain.EventAIProviderFail, history.ID(), map[string]string{
				"customer_phone": customerPhone,
				"error":          err.Error(),
			}))
			return "", executed, err
		}

		if !resp.HasCalls() {
			final = resp.Text
			break
		}

		results := make([]providers.FunctionResult, 0, len(resp.FunctionCalls))
		for _, call := range resp.FunctionCalls {
			result := o.registry.Execute(ctx, call.Name, call.Args)
			executed = append(executed, ExecutedCall{
				Function: call.Name,
				Args:     call.Args,
				Result:   result,
			})
			results = append(results, providers.FunctionResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: result.JSON(),
			})
			o.bus.Publish(domain.NewEvent(domain.EventToolExecuted, history.ID(), map[string]interface{}{
				"customer_phone": customerPhone,
				"function":       call.Name,
				"success":        result.Success,
			}))
		}

		// Feed the model's own turn and the function results back in, then
		// re-issue without forcing tool use.
		req.Turns = append(req.Turns, providers.Turn{
			Role:  providers.TurnRoleAssistant,
			Text:  resp.Text,
			Calls: resp.FunctionCalls,
		})
		req.Turns = append(req.Turns, providers.Turn{
			Role:    providers.TurnRoleTool,
			Results: results,
		})
		req.ForceToolUse = false
		final = resp.Text
	}

	if final != "" {
		history.Append(domain.RoleAssistant, final)
		if err := o.repo.Append(customerPhone, domain.RoleAssistant, final); err != nil {
			logger.WarnCF(component, "failed to persist assistant turn", map[string]interface{}{
				"customer_phone": customerPhone,
				"error":          err.Error(),
			})
		}
		o.drain(history)
	}

	o.bus.Publish(domain.NewEvent(domain.EventAIResponded, history.ID(), map[string]interface{}{
		"customer_phone": customerPhone,
		"function_calls": len(executed),
	}))
	return final, executed, nil
}

// RecordOperatorReply appends an out-of-band assistant turn (a human
// operator's manual reply) to the store and drops the cached copy so the
// next Chat call re-hydrates.
func (o *Orchestrator) RecordOperatorReply(customerPhone, text string) error {
	if err := o.repo.Append(customerPhone, domain.RoleAssistant, text); err != nil {
		return err
	}
	o.cache.Invalidate(customerPhone)
	return nil
}

// RecordPlaceholder appends a type-tagged user entry (media audit marker).
// The cached copy is updated in place since this path originates it.
func (o *Orchestrator) RecordPlaceholder(customerPhone, tag string) error {
	if err := o.repo.Append(customerPhone, domain.RoleUser, tag); err != nil {
		return err
	}
	if history, ok := o.cache.Get(customerPhone); ok {
		history.Append(domain.RoleUser, tag)
		o.drain(history)
	}
	return nil
}

// InvalidateCache drops a customer's in-memory history, forcing the next
// Chat call to re-hydrate from the persisted store.
func (o *Orchestrator) InvalidateCache(customerPhone string) {
	o.cache.Invalidate(customerPhone)
}

// load returns the cached history or hydrates it from the store.
func (o *Orchestrator) load(customerPhone string) (*conversation.History, error) {
	if history, ok := o.cache.Get(customerPhone); ok {
		return history, nil
	}

	entries, err := o.repo.FindByPhone(customerPhone, o.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}

	history := conversation.NewHistory(customerPhone, o.opts.SystemInstruction, o.opts.HistoryLimit)
	for _, e := range entries {
		history.Append(e.Role, e.Content)
	}
	// Hydration replays already-published turns; discard their events.
	history.PullEvents()
	o.cache.Set(customerPhone, history)
	return history, nil
}

// drain flushes the aggregate's recorded events onto the bus after the turn
// has been persisted. Without it the pending list grows for the lifetime of
// the cached history.
func (o *Orchestrator) drain(history *conversation.History) {
	for _, e := range history.PullEvents() {
		o.bus.Publish(e)
	}
}

// turnsFrom maps the history tail to provider turns. The pinned system
// instruction travels separately on the request.
func turnsFrom(h *conversation.History) []providers.Turn {
	tail := h.Tail()
	turns := make([]providers.Turn, 0, len(tail))
	for _, e := range tail {
		role := providers.TurnRoleUser
		if e.Role == domain.RoleAssistant {
			role = providers.TurnRoleAssistant
		}
		turns = append(turns, providers.Turn{Role: role, Text: e.Content})
	}
	return turns
}
