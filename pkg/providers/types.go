// Package providers defines the LLM port and its adapters. The gateway talks
// to a model through the LLMProvider interface; concrete implementations map
// the neutral request/response shapes onto a vendor SDK.
package providers

import "context"

// Turn is one entry of the dialogue sent to the model. Exactly one of the
// optional shapes is populated per turn:
//   - a plain user/assistant text turn,
//   - an assistant turn carrying the model's own tool invocations (appended
//     back verbatim during the tool loop), or
//   - a synthetic tool-results turn answering those invocations.
type Turn struct {
	Role    string           `json:"role"` // user | assistant | tool
	Text    string           `json:"text,omitempty"`
	Calls   []FunctionCall   `json:"calls,omitempty"`
	Results []FunctionResult `json:"results,omitempty"`
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// FunctionResult carries one executed function's outcome back to the model.
// Content is the JSON-encoded {success, data|error} envelope.
type FunctionResult struct {
	CallID  string `json:"call_id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ToolDefinition declares a callable function to the model. Parameters is a
// JSON-schema object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ChatRequest is the neutral request shape for one model exchange. The
// system instruction travels separately from the turn list.
type ChatRequest struct {
	SystemInstruction string
	Turns             []Turn
	Tools             []ToolDefinition
	ForceToolUse      bool // first exchange only: require a tool invocation
	Temperature       float64
	MaxOutputTokens   int
}

// ChatResponse is the neutral response shape. A response with a non-empty
// FunctionCalls list keeps the tool loop running; one without is final.
type ChatResponse struct {
	Text          string
	FunctionCalls []FunctionCall
}

// HasCalls returns true when the model requested tool execution.
func (r *ChatResponse) HasCalls() bool { return len(r.FunctionCalls) > 0 }

// LLMProvider is the port to a chat-completion model.
type LLMProvider interface {
	// Chat performs one model exchange. A transport-level failure is returned
	// as an error and propagates to the caller untouched.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// DefaultModel returns the model used when none is configured.
	DefaultModel() string
}

// Turn role constants, matching the wire roles of both adapters.
const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
	TurnRoleTool      = "tool"
)
