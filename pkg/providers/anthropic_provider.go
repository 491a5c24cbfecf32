package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider adapts the LLM port onto the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider for the given API key. An empty
// model falls back to DefaultModel.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	p := &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
	if p.model == "" {
		p.model = p.DefaultModel()
	}
	return p
}

// DefaultModel returns the default Anthropic model.
func (p *AnthropicProvider) DefaultModel() string { return "claude-3-5-haiku-latest" }

// Chat performs one exchange against the Messages API.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Turns))
	for _, turn := range req.Turns {
		switch turn.Role {
		case TurnRoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
		case TurnRoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(turn.Calls))
			if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
			for _, call := range turn.Calls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Args, call.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case TurnRoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Results))
			for _, res := range turn.Results {
				blocks = append(blocks, anthropic.NewToolResultBlock(res.CallID, res.Content, false))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported turn role %q", turn.Role)
		}
	}

	maxTokens := int64(req.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: inputSchema(tool.Parameters),
			},
		})
	}
	if req.ForceToolUse && len(req.Tools) > 0 {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	resp := &ChatResponse{}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += b.Text
		case anthropic.ToolUseBlock:
			args := make(map[string]interface{})
			_ = json.Unmarshal(b.Input, &args)
			resp.FunctionCalls = append(resp.FunctionCalls, FunctionCall{
				ID:   b.ID,
				Name: b.Name,
				Args: args,
			})
		}
	}
	return resp, nil
}

func inputSchema(parameters map[string]interface{}) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := parameters["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := parameters["required"].([]string); ok {
		schema.Required = req
	}
	return schema
}

// Ensure AnthropicProvider implements the LLM port.
var _ LLMProvider = (*AnthropicProvider)(nil)
