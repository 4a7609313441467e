// Package openai implements llm.Provider for OpenAI-compatible APIs.
// Pointing BaseURL at a local Ollama (http://localhost:11434/v1) works
// unchanged.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	oai "github.com/sashabaranov/go-openai"

	"github.com/plantops/factory-mcp/llm"
)

// Provider implements llm.Provider on the go-openai client.
type Provider struct {
	client *oai.Client
}

// Config for the provider.
type Config struct {
	APIKey  string
	BaseURL string
}

// New creates a provider with the given config.
func New(cfg Config) *Provider {
	clientCfg := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{client: oai.NewClientWithConfig(clientCfg)}
}

// Chat sends a chat request and converts the response.
func (p *Provider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	oaiReq := oai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.System, req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	if len(req.Tools) > 0 {
		tools := make([]oai.Tool, 0, len(req.Tools))
		for _, def := range req.Tools {
			tools = append(tools, oai.Tool{
				Type: oai.ToolTypeFunction,
				Function: &oai.FunctionDefinition{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			})
		}
		oaiReq.Tools = tools
	}

	resp, err := p.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		input := make(map[string]any)
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	switch choice.FinishReason {
	case oai.FinishReasonToolCalls:
		out.StopReason = llm.StopReasonToolUse
	case oai.FinishReasonLength:
		out.StopReason = llm.StopReasonLength
	default:
		if len(out.ToolCalls) > 0 {
			out.StopReason = llm.StopReasonToolUse
		} else {
			out.StopReason = llm.StopReasonEnd
		}
	}

	return out, nil
}

func toOpenAIMessages(system string, msgs []llm.Message) []oai.ChatCompletionMessage {
	out := make([]oai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, oai.ChatCompletionMessage{
			Role:    oai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleUser:
			out = append(out, oai.ChatCompletionMessage{
				Role:    oai.ChatMessageRoleUser,
				Content: msg.Content,
			})

		case llm.RoleAssistant:
			m := oai.ChatCompletionMessage{
				Role:    oai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Input)
				m.ToolCalls = append(m.ToolCalls, oai.ToolCall{
					ID:   tc.ID,
					Type: oai.ToolTypeFunction,
					Function: oai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, m)

		case llm.RoleTool:
			if msg.ToolResult == nil {
				continue
			}
			out = append(out, oai.ChatCompletionMessage{
				Role:       oai.ChatMessageRoleTool,
				Content:    msg.ToolResult.Content,
				ToolCallID: msg.ToolResult.ToolCallID,
			})
		}
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
