package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/infrastructure/eventbus"
	"github.com/pasarlink/gateway/pkg/infrastructure/persistence"
	"github.com/pasarlink/gateway/pkg/providers"
	"github.com/pasarlink/gateway/pkg/tools"
)

// scriptedProvider replays a fixed sequence of responses and records every
// request it receives.
type scriptedProvider struct {
	responses []*providers.ChatResponse
	errs      []error
	requests  []providers.ChatRequest
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.requests = append(p.requests, req)
	i := len(p.requests) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.responses) {
		return &providers.ChatResponse{Text: "fallthrough"}, nil
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) DefaultModel() string { return "scripted" }

// echoTool returns its arguments unchanged.
type echoTool struct{}

func (echoTool) Name() string                        { return "echo" }
func (echoTool) Description() string                 { return "echoes args" }
func (echoTool) Parameters() map[string]interface{}  { return map[string]interface{}{"type": "object"} }
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return args, nil
}

// failTool always errors.
type failTool struct{}

func (failTool) Name() string                       { return "boom" }
func (failTool) Description() string                { return "always fails" }
func (failTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (failTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return nil, fmt.Errorf("deliberate failure")
}

func newTestOrchestrator(p providers.LLMProvider, regTools ...tools.Tool) (*Orchestrator, *persistence.MemoryConversationRepository) {
	registry := tools.NewRegistry()
	for _, t := range regTools {
		registry.Register(t)
	}
	repo := persistence.NewMemoryConversationRepository()
	orch := New(p, registry, repo, NewMemoryCache(), eventbus.New(), Options{
		SystemInstruction: "be helpful",
		HistoryLimit:      10,
		MaxToolRounds:     3,
	})
	return orch, repo
}

func TestChatPlainTextAnswer(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{{Text: "halo!"}},
	}
	orch, repo := newTestOrchestrator(provider)

	reply, executed, err := orch.Chat(context.Background(), "6281234567890", "halo")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "halo!" {
		t.Errorf("reply = %q, want %q", reply, "halo!")
	}
	if len(executed) != 0 {
		t.Errorf("executed calls = %d, want 0", len(executed))
	}

	// Both turns persisted.
	entries, _ := repo.FindByPhone("6281234567890", 10)
	if len(entries) != 2 {
		t.Fatalf("persisted entries = %d, want 2", len(entries))
	}
	if entries[0].Role != domain.RoleUser || entries[1].Role != domain.RoleAssistant {
		t.Errorf("persisted roles = %v, %v", entries[0].Role, entries[1].Role)
	}
}

func TestChatToolLoopTerminates(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{
			{FunctionCalls: []providers.FunctionCall{{ID: "c1", Name: "echo", Args: map[string]interface{}{"x": 1.0}}}},
			{Text: "done"},
		},
	}
	orch, _ := newTestOrchestrator(provider, echoTool{})

	reply, executed, err := orch.Chat(context.Background(), "6281234567890", "do it")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "done" {
		t.Errorf("reply = %q, want %q", reply, "done")
	}
	if len(executed) != 1 || executed[0].Function != "echo" || !executed[0].Result.Success {
		t.Errorf("unexpected call trace: %+v", executed)
	}

	// First request forces tool use, the re-issue does not.
	if !provider.requests[0].ForceToolUse {
		t.Error("first request should force tool use")
	}
	if provider.requests[1].ForceToolUse {
		t.Error("re-issue should not force tool use")
	}
	// The re-issue must carry the model's turn plus the synthetic results turn.
	last := provider.requests[1].Turns
	if len(last) < 2 || last[len(last)-1].Role != providers.TurnRoleTool {
		t.Errorf("re-issue missing synthetic results turn: %+v", last)
	}
}

func TestChatToolFailureFedBack(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{
			{FunctionCalls: []providers.FunctionCall{{ID: "c1", Name: "boom"}}},
			{Text: "sorry"},
		},
	}
	orch, _ := newTestOrchestrator(provider, failTool{})

	reply, executed, err := orch.Chat(context.Background(), "6281234567890", "explode")
	if err != nil {
		t.Fatalf("tool failure must not abort the chat: %v", err)
	}
	if reply != "sorry" {
		t.Errorf("reply = %q, want %q", reply, "sorry")
	}
	if executed[0].Result.Success {
		t.Error("failed tool reported success")
	}
	if executed[0].Result.Error == "" {
		t.Error("failure result missing error text")
	}
}

func TestChatUnknownFunctionStructuredError(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{
			{FunctionCalls: []providers.FunctionCall{{ID: "c1", Name: "nope"}}},
			{Text: "ok"},
		},
	}
	orch, _ := newTestOrchestrator(provider)

	_, executed, err := orch.Chat(context.Background(), "6281234567890", "call it")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if executed[0].Result.Success {
		t.Error("unknown function reported success")
	}
}

func TestChatProviderErrorPropagates(t *testing.T) {
	boom := errors.New("upstream down")
	provider := &scriptedProvider{errs: []error{boom}}
	orch, _ := newTestOrchestrator(provider)

	_, _, err := orch.Chat(context.Background(), "6281234567890", "halo")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestChatLoopBounded(t *testing.T) {
	// The model keeps calling tools forever; the loop must stop at the cap.
	calls := &providers.ChatResponse{
		FunctionCalls: []providers.FunctionCall{{ID: "c", Name: "echo"}},
	}
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{calls, calls, calls, calls, calls},
	}
	orch, _ := newTestOrchestrator(provider, echoTool{})

	_, executed, err := orch.Chat(context.Background(), "6281234567890", "loop")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(provider.requests) != 3 {
		t.Errorf("provider calls = %d, want MaxToolRounds (3)", len(provider.requests))
	}
	if len(executed) != 3 {
		t.Errorf("executed calls = %d, want 3", len(executed))
	}
}

func TestOperatorReplyInvalidatesCache(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{
			{Text: "first"},
			{Text: "second"},
		},
	}
	orch, repo := newTestOrchestrator(provider)

	if _, _, err := orch.Chat(context.Background(), "6281234567890", "halo"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if err := orch.RecordOperatorReply("6281234567890", "operator here"); err != nil {
		t.Fatalf("RecordOperatorReply: %v", err)
	}

	// Next chat re-hydrates; the operator turn must be in the request.
	if _, _, err := orch.Chat(context.Background(), "6281234567890", "lagi"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	last := provider.requests[len(provider.requests)-1]
	found := false
	for _, turn := range last.Turns {
		if turn.Text == "operator here" && turn.Role == providers.TurnRoleAssistant {
			found = true
		}
	}
	if !found {
		t.Errorf("operator reply missing from re-hydrated turns: %+v", last.Turns)
	}

	entries, _ := repo.FindByPhone("6281234567890", 10)
	if len(entries) != 5 {
		t.Errorf("persisted entries = %d, want 5", len(entries))
	}
}

func TestHistoryEventsReachTheBus(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{{Text: "halo!"}},
	}
	repo := persistence.NewMemoryConversationRepository()
	cache := NewMemoryCache()
	bus := eventbus.New()

	var appended []domain.Event
	bus.Subscribe(domain.EventConversationAppended, func(e domain.Event) {
		appended = append(appended, e)
	})

	orch := New(provider, tools.NewRegistry(), repo, cache, bus, Options{
		SystemInstruction: "be helpful",
		HistoryLimit:      10,
		MaxToolRounds:     3,
	})

	if _, _, err := orch.Chat(context.Background(), "6281234567890", "halo"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	// One user turn plus one assistant turn.
	if len(appended) != 2 {
		t.Fatalf("conversation.appended events = %d, want 2", len(appended))
	}

	if err := orch.RecordPlaceholder("6281234567890", "[customer sent an image]"); err != nil {
		t.Fatalf("RecordPlaceholder: %v", err)
	}
	if len(appended) != 3 {
		t.Errorf("conversation.appended events = %d, want 3", len(appended))
	}

	// The cached aggregate holds nothing back once the events are published.
	history, ok := cache.Get("6281234567890")
	if !ok {
		t.Fatal("history not cached")
	}
	if history.HasPendingEvents() {
		t.Error("published events still pending on the aggregate")
	}
}

func TestHydrationDoesNotRepublishHistory(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{{Text: "first"}, {Text: "second"}},
	}
	repo := persistence.NewMemoryConversationRepository()
	bus := eventbus.New()

	count := 0
	bus.Subscribe(domain.EventConversationAppended, func(e domain.Event) { count++ })

	orch := New(provider, tools.NewRegistry(), repo, NewMemoryCache(), bus, Options{
		SystemInstruction: "be helpful",
		HistoryLimit:      10,
		MaxToolRounds:     3,
	})

	if _, _, err := orch.Chat(context.Background(), "6281234567890", "halo"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	orch.InvalidateCache("6281234567890")

	// Re-hydration replays the stored turns; only the two new turns publish.
	if _, _, err := orch.Chat(context.Background(), "6281234567890", "lagi"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if count != 4 {
		t.Errorf("conversation.appended events = %d, want 4", count)
	}
}

func TestRecordPlaceholderUpdatesCachedCopy(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*providers.ChatResponse{
			{Text: "first"},
			{Text: "second"},
		},
	}
	orch, _ := newTestOrchestrator(provider)

	if _, _, err := orch.Chat(context.Background(), "6281234567890", "halo"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if err := orch.RecordPlaceholder("6281234567890", "[customer sent an image]"); err != nil {
		t.Fatalf("RecordPlaceholder: %v", err)
	}
	if _, _, err := orch.Chat(context.Background(), "6281234567890", "itu tadi fotonya"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	last := provider.requests[len(provider.requests)-1]
	found := false
	for _, turn := range last.Turns {
		if turn.Text == "[customer sent an image]" {
			found = true
		}
	}
	if !found {
		t.Errorf("placeholder missing from turns: %+v", last.Turns)
	}
}
