// Package llm defines a provider-agnostic chat interface so the agent
// loop does not care whether it talks to an OpenAI-compatible endpoint
// (including a local Ollama) or to Anthropic.
package llm

import "context"

// Provider is the interface LLM backends implement.
type Provider interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// Request is a provider-agnostic chat request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDef
	MaxTokens   int
	Temperature float64
}

// ToolDef describes a callable tool. Parameters is a JSON Schema
// object; for MCP tools it comes straight from the tool listing.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is a provider-agnostic message.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

// Role is the message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult represents a tool execution result fed back to the model.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Response is a provider-agnostic response.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// StopReason indicates why the model stopped.
type StopReason string

const (
	StopReasonEnd     StopReason = "end"
	StopReasonToolUse StopReason = "tool_use"
	StopReasonLength  StopReason = "length"
)

// Usage contains token usage information.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
