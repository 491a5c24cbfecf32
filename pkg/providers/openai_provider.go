package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider adapts the LLM port onto the OpenAI chat-completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for the given API key. An empty model
// falls back to DefaultModel.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	p := &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
	if p.model == "" {
		p.model = p.DefaultModel()
	}
	return p
}

// DefaultModel returns the default OpenAI model.
func (p *OpenAIProvider) DefaultModel() string { return "gpt-4o-mini" }

// Chat performs one exchange against the chat-completions endpoint.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}

	for _, turn := range req.Turns {
		switch turn.Role {
		case TurnRoleUser:
			messages = append(messages, openai.UserMessage(turn.Text))
		case TurnRoleAssistant:
			messages = append(messages, assistantParam(turn))
		case TurnRoleTool:
			for _, res := range turn.Results {
				messages = append(messages, openai.ToolMessage(res.Content, res.CallID))
			}
		default:
			return nil, fmt.Errorf("openai: unsupported turn role %q", turn.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  openai.FunctionParameters(tool.Parameters),
		}))
	}
	if req.ForceToolUse && len(req.Tools) > 0 {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("required"),
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: empty choice list")
	}

	msg := completion.Choices[0].Message
	resp := &ChatResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := make(map[string]interface{})
		if raw := tc.Function.Arguments; raw != "" {
			// Malformed arguments become an empty map; the registry reports
			// missing required args as a structured error to the model.
			_ = json.Unmarshal([]byte(raw), &args)
		}
		resp.FunctionCalls = append(resp.FunctionCalls, FunctionCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return resp, nil
}

func assistantParam(turn Turn) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{}
	if turn.Text != "" {
		msg.Content.OfString = openai.String(turn.Text)
	}
	for _, call := range turn.Calls {
		raw, _ := json.Marshal(call.Args)
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(raw),
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

// Ensure OpenAIProvider implements the LLM port.
var _ LLMProvider = (*OpenAIProvider)(nil)
