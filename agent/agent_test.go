package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/plantops/factory-mcp/llm"
	"github.com/plantops/factory-mcp/memory"
)

// mockProvider replays scripted responses in order.
type mockProvider struct {
	responses []*llm.Response
	requests  []llm.Request
}

func (m *mockProvider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return &llm.Response{Content: "done", StopReason: llm.StopReasonEnd}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

// mockTools records calls and returns a fixed payload.
type mockTools struct {
	defs    []llm.ToolDef
	payload any
	calls   []string
}

func (m *mockTools) ListTools(ctx context.Context) ([]llm.ToolDef, error) {
	return m.defs, nil
}

func (m *mockTools) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	m.calls = append(m.calls, name)
	return m.payload, nil
}

func runSQLDef() llm.ToolDef {
	return llm.ToolDef{
		Name:        "run_sql",
		Description: "run a query",
		Parameters:  map[string]any{"type": "object"},
	}
}

func TestChat(t *testing.T) {
	ctx := context.Background()

	t.Run("plain exchange persists both sides", func(t *testing.T) {
		store := memory.NewMemoryStore()
		provider := &mockProvider{responses: []*llm.Response{
			{Content: "CMP-001 is running.", StopReason: llm.StopReasonEnd},
		}}
		agent := New(store, provider, &mockTools{defs: []llm.ToolDef{runSQLDef()}}, Config{Model: "test", SummaryEvery: -1})

		reply, err := agent.Chat(ctx, "c1", "how is CMP-001?")
		if err != nil {
			t.Fatalf("chat: %v", err)
		}
		if reply != "CMP-001 is running." {
			t.Errorf("unexpected reply: %q", reply)
		}

		msgs, _ := store.LoadMessages(ctx, "c1", 50)
		if len(msgs) != 2 {
			t.Fatalf("expected 2 stored messages, got %d", len(msgs))
		}
		if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
			t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
		}
	})

	t.Run("tool calls are executed and persisted", func(t *testing.T) {
		store := memory.NewMemoryStore()
		tools := &mockTools{
			defs:    []llm.ToolDef{runSQLDef()},
			payload: []any{map[string]any{"tag": "CMP-001", "status": "running"}},
		}
		provider := &mockProvider{responses: []*llm.Response{
			{
				StopReason: llm.StopReasonToolUse,
				ToolCalls: []llm.ToolCall{{
					ID:    "call-1",
					Name:  "run_sql",
					Input: map[string]any{"query": "select * from equipment"},
				}},
			},
			{Content: "CMP-001 is running.", StopReason: llm.StopReasonEnd},
		}}
		agent := New(store, provider, tools, Config{Model: "test", SummaryEvery: -1})

		reply, err := agent.Chat(ctx, "c1", "how is CMP-001?")
		if err != nil {
			t.Fatalf("chat: %v", err)
		}
		if reply != "CMP-001 is running." {
			t.Errorf("unexpected reply: %q", reply)
		}
		if len(tools.calls) != 1 || tools.calls[0] != "run_sql" {
			t.Errorf("expected one run_sql call, got %v", tools.calls)
		}

		msgs, _ := store.LoadMessages(ctx, "c1", 50)
		if len(msgs) != 3 {
			t.Fatalf("expected user+tool+assistant, got %d messages", len(msgs))
		}
		if msgs[1].Role != "tool" || !strings.Contains(msgs[1].Content, "run_sql") {
			t.Errorf("unexpected tool record: %+v", msgs[1])
		}

		// The second completion must have seen the tool result.
		last := provider.requests[len(provider.requests)-1]
		found := false
		for _, m := range last.Messages {
			if m.ToolResult != nil && m.ToolResult.ToolCallID == "call-1" {
				found = true
			}
		}
		if !found {
			t.Error("tool result was not fed back to the model")
		}
	})

	t.Run("unknown tools become error payloads", func(t *testing.T) {
		store := memory.NewMemoryStore()
		tools := &mockTools{defs: []llm.ToolDef{runSQLDef()}}
		provider := &mockProvider{responses: []*llm.Response{
			{
				StopReason: llm.StopReasonToolUse,
				ToolCalls: []llm.ToolCall{{
					ID:   "call-1",
					Name: "drop_database",
				}},
			},
			{Content: "sorry", StopReason: llm.StopReasonEnd},
		}}
		agent := New(store, provider, tools, Config{Model: "test", SummaryEvery: -1})

		if _, err := agent.Chat(ctx, "c1", "hi"); err != nil {
			t.Fatalf("chat: %v", err)
		}
		if len(tools.calls) != 0 {
			t.Errorf("unknown tool must not be called, got %v", tools.calls)
		}

		last := provider.requests[len(provider.requests)-1]
		found := false
		for _, m := range last.Messages {
			if m.ToolResult != nil && strings.Contains(m.ToolResult.Content, "tool not found") {
				found = true
			}
		}
		if !found {
			t.Error("expected a tool-not-found payload fed back to the model")
		}
	})

	t.Run("system prompt carries the rolling summary", func(t *testing.T) {
		store := memory.NewMemoryStore()
		_ = store.CreateConversation(ctx, "c1", "")
		_ = store.SetSummary(ctx, "c1", "user cares about compressor CMP-001")

		provider := &mockProvider{responses: []*llm.Response{
			{Content: "ok", StopReason: llm.StopReasonEnd},
		}}
		agent := New(store, provider, &mockTools{}, Config{Model: "test", SummaryEvery: -1})

		if _, err := agent.Chat(ctx, "c1", "anything new?"); err != nil {
			t.Fatalf("chat: %v", err)
		}
		if !strings.Contains(provider.requests[0].System, "CMP-001") {
			t.Error("summary missing from system prompt")
		}
	})

	t.Run("refreshes the summary on schedule", func(t *testing.T) {
		store := memory.NewMemoryStore()
		provider := &mockProvider{responses: []*llm.Response{
			{Content: "reply", StopReason: llm.StopReasonEnd},
			{Content: "summary of the chat", StopReason: llm.StopReasonEnd},
		}}
		agent := New(store, provider, &mockTools{}, Config{Model: "test", SummaryEvery: 1})

		if _, err := agent.Chat(ctx, "c1", "hello"); err != nil {
			t.Fatalf("chat: %v", err)
		}

		summary, _ := store.GetSummary(ctx, "c1")
		if summary != "summary of the chat" {
			t.Errorf("expected refreshed summary, got %q", summary)
		}
	})

	t.Run("bounds runaway tool loops", func(t *testing.T) {
		store := memory.NewMemoryStore()
		loop := &llm.Response{
			StopReason: llm.StopReasonToolUse,
			ToolCalls:  []llm.ToolCall{{ID: "x", Name: "run_sql", Input: map[string]any{}}},
		}
		provider := &mockProvider{responses: []*llm.Response{loop, loop, loop}}
		agent := New(store, provider, &mockTools{defs: []llm.ToolDef{runSQLDef()}, payload: map[string]any{}},
			Config{Model: "test", MaxTurns: 2, SummaryEvery: -1})

		if _, err := agent.Chat(ctx, "c1", "hi"); err == nil {
			t.Fatal("expected an error when exceeding MaxTurns")
		}
	})
}

func TestParseToolPayload(t *testing.T) {
	t.Run("decodes JSON", func(t *testing.T) {
		v := parseToolPayload(`[{"id": 1}]`)
		rows, ok := v.([]any)
		if !ok || len(rows) != 1 {
			t.Fatalf("expected one-element array, got %#v", v)
		}
	})

	t.Run("wraps non-JSON text", func(t *testing.T) {
		v := parseToolPayload("plain text")
		m, ok := v.(map[string]any)
		if !ok || m["text"] != "plain text" {
			t.Fatalf("expected wrapped text, got %#v", v)
		}
	})

	t.Run("empty input yields an empty object", func(t *testing.T) {
		v := parseToolPayload("   ")
		m, ok := v.(map[string]any)
		if !ok || len(m) != 0 {
			t.Fatalf("expected empty object, got %#v", v)
		}
	})
}
