// Package anthropic implements llm.Provider for Anthropic's API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/plantops/factory-mcp/llm"
)

// Provider implements llm.Provider on the Anthropic SDK client.
type Provider struct {
	client anthropic.Client
}

// Config for the provider.
type Config struct {
	APIKey  string
	BaseURL string
}

// New creates a provider with the given config.
func New(cfg Config) *Provider {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...)}
}

// Chat sends a chat request and converts the response.
func (p *Provider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}
	return fromAnthropicResponse(resp), nil
}

func toAnthropicMessages(msgs []llm.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleUser:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))

		case llm.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				inputJSON, _ := json.Marshal(tc.Input)
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(inputJSON),
					},
				})
			}
			out = append(out, anthropic.NewAssistantMessage(content...))

		case llm.RoleTool:
			// Tool results travel as user messages.
			if msg.ToolResult != nil {
				out = append(out, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(
						msg.ToolResult.ToolCallID,
						msg.ToolResult.Content,
						msg.ToolResult.IsError,
					),
				))
			}
		}
	}
	return out
}

func toAnthropicTools(defs []llm.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(defs))
	for i, d := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{Type: "object"}
		if props, ok := d.Parameters["properties"]; ok {
			inputSchema.Properties = props
		}

		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: inputSchema,
			},
		}
	}
	return out
}

func fromAnthropicResponse(resp *anthropic.Message) *llm.Response {
	out := &llm.Response{
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}

	switch resp.StopReason {
	case "tool_use":
		out.StopReason = llm.StopReasonToolUse
	case "max_tokens":
		out.StopReason = llm.StopReasonLength
	default:
		out.StopReason = llm.StopReasonEnd
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			input := make(map[string]any)
			_ = json.Unmarshal(block.Input, &input)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
