// Package agent runs the chat loop: it feeds the model the rolling
// summary plus a recent message window from the memory store, executes
// the tool calls the model requests against the MCP server, and keeps
// the store and summary up to date.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	factorymcp "github.com/plantops/factory-mcp"
	"github.com/plantops/factory-mcp/llm"
	"github.com/plantops/factory-mcp/memory"
)

const basePrompt = `You are a factory operations assistant. You answer
questions about equipment, events, maintenance and standard operating
procedures using the available tools. Prefer querying over guessing;
cite equipment tags and SOP codes when you reference them.`

const summaryPrompt = `Summarize the conversation so far in a short
paragraph. Keep equipment tags, SOP codes and open action items. Reply
with the summary only.`

// Config tunes the agent loop.
type Config struct {
	// Model passed to the provider on every call.
	Model string

	// MaxTurns bounds tool-call round trips within one exchange.
	// Defaults to 8.
	MaxTurns int

	// MaxTokens per completion. Defaults to 1024.
	MaxTokens int

	// Temperature for completions.
	Temperature float64

	// HistoryWindow is how many stored messages are replayed into the
	// prompt. Defaults to 20.
	HistoryWindow int

	// SummaryEvery refreshes the rolling summary after this many user
	// exchanges. Negative disables summarizing. Defaults to 4.
	SummaryEvery int

	// Logger is the structured logger. Optional.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 8
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 20
	}
	if c.SummaryEvery == 0 {
		c.SummaryEvery = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Agent orchestrates one conversation at a time against the store, the
// provider and the tool caller.
type Agent struct {
	store     memory.Store
	provider  llm.Provider
	tools     ToolCaller
	config    Config
	exchanges int
}

// New creates an agent.
func New(store memory.Store, provider llm.Provider, tools ToolCaller, cfg Config) *Agent {
	return &Agent{
		store:    store,
		provider: provider,
		tools:    tools,
		config:   cfg.withDefaults(),
	}
}

// Chat handles one user message: persists it, runs the model/tool loop
// to completion, persists the assistant reply and every tool result,
// and returns the reply text.
func (a *Agent) Chat(ctx context.Context, convID, userMessage string) (string, error) {
	if err := a.store.AppendMessage(ctx, convID, "user", userMessage); err != nil {
		return "", fmt.Errorf("agent: storing user message: %w", err)
	}

	system, err := a.buildSystemPrompt(ctx, convID)
	if err != nil {
		return "", err
	}

	history, err := a.loadHistory(ctx, convID)
	if err != nil {
		return "", err
	}

	defs, err := a.tools.ListTools(ctx)
	if err != nil {
		return "", err
	}

	messages := history
	for turn := 0; turn < a.config.MaxTurns; turn++ {
		resp, err := a.provider.Chat(ctx, llm.Request{
			Model:       a.config.Model,
			System:      system,
			Messages:    messages,
			Tools:       defs,
			MaxTokens:   a.config.MaxTokens,
			Temperature: a.config.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("agent: completion: %w", err)
		}

		if resp.StopReason != llm.StopReasonToolUse || len(resp.ToolCalls) == 0 {
			if err := a.store.AppendMessage(ctx, convID, "assistant", resp.Content); err != nil {
				return "", fmt.Errorf("agent: storing reply: %w", err)
			}
			a.exchanges++
			a.maybeSummarize(ctx, convID)
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			payload := a.executeTool(ctx, tc, defs)

			// Persist the tool exchange so resumed sessions see what
			// was looked up.
			stored, _ := json.Marshal(map[string]any{
				"tool_name": tc.Name,
				"content":   payload,
			})
			if err := a.store.AppendMessage(ctx, convID, "tool", string(stored)); err != nil {
				return "", fmt.Errorf("agent: storing tool result: %w", err)
			}

			content, _ := json.Marshal(payload)
			messages = append(messages, llm.Message{
				Role: llm.RoleTool,
				ToolResult: &llm.ToolResult{
					ToolCallID: tc.ID,
					Content:    string(content),
				},
			})
		}
	}

	return "", fmt.Errorf("agent: conversation %s exceeded %d tool turns", convID, a.config.MaxTurns)
}

// executeTool never fails the exchange: a tool fault becomes an error
// payload the model can read, mirroring the gateway's own contract.
func (a *Agent) executeTool(ctx context.Context, tc llm.ToolCall, defs []llm.ToolDef) any {
	known := false
	for _, d := range defs {
		if d.Name == tc.Name {
			known = true
			break
		}
	}
	if !known {
		a.config.Logger.Warn("model requested unknown tool", "tool", tc.Name)
		return map[string]any{"error": fmt.Sprintf("%v: %s", factorymcp.ErrToolNotFound, tc.Name)}
	}

	payload, err := a.tools.CallTool(ctx, tc.Name, tc.Input)
	if err != nil {
		a.config.Logger.Warn("tool call failed", "tool", tc.Name, "error", err)
		return map[string]any{"error": err.Error()}
	}
	return payload
}

func (a *Agent) buildSystemPrompt(ctx context.Context, convID string) (string, error) {
	summary, err := a.store.GetSummary(ctx, convID)
	if err != nil {
		return "", fmt.Errorf("agent: loading summary: %w", err)
	}
	if summary == "" {
		return basePrompt, nil
	}
	return basePrompt + "\n\nConversation so far:\n" + summary, nil
}

// loadHistory replays the stored window as provider messages. Stored
// tool records are replayed as user-role context lines: providers
// require tool results to follow a matching tool call, which a replayed
// window no longer has.
func (a *Agent) loadHistory(ctx context.Context, convID string) ([]llm.Message, error) {
	stored, err := a.store.LoadMessages(ctx, convID, a.config.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("agent: loading history: %w", err)
	}

	msgs := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		case "tool":
			msgs = append(msgs, llm.Message{
				Role:    llm.RoleUser,
				Content: "[tool result] " + m.Content,
			})
		default:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: m.Content})
		}
	}
	return msgs, nil
}

// maybeSummarize refreshes the rolling summary. Failures are logged and
// swallowed: a stale summary must not fail the exchange.
func (a *Agent) maybeSummarize(ctx context.Context, convID string) {
	if a.config.SummaryEvery < 0 || a.exchanges%a.config.SummaryEvery != 0 {
		return
	}

	history, err := a.loadHistory(ctx, convID)
	if err != nil {
		a.config.Logger.Warn("summary refresh skipped", "error", err)
		return
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: summaryPrompt})

	resp, err := a.provider.Chat(ctx, llm.Request{
		Model:     a.config.Model,
		Messages:  history,
		MaxTokens: a.config.MaxTokens,
	})
	if err != nil {
		a.config.Logger.Warn("summary refresh failed", "error", err)
		return
	}
	if err := a.store.SetSummary(ctx, convID, resp.Content); err != nil {
		a.config.Logger.Warn("summary store failed", "error", err)
	}
}
