package mcptools

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/plantops/factory-mcp/factorydb"
	"github.com/plantops/factory-mcp/gateway"
)

func newTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()

	path := filepath.Join(t.TempDir(), "factory.db")
	rw, err := factorydb.Open(path)
	if err != nil {
		t.Fatalf("opening seed handle: %v", err)
	}

	if _, err := rw.Exec(`CREATE TABLE sop (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		area TEXT NOT NULL,
		content TEXT NOT NULL
	)`); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	for i := 1; i <= 60; i++ {
		if _, err := rw.Exec(
			`INSERT INTO sop (id, title, area, content) VALUES (?, 'Filter check', 'utilities', 'Inspect the filter.')`,
			i,
		); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("closing seed handle: %v", err)
	}

	ro, err := factorydb.OpenReadOnly(path)
	if err != nil {
		t.Fatalf("opening read-only handle: %v", err)
	}
	t.Cleanup(func() { _ = ro.Close() })
	return gateway.New(ro)
}

func callToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultRows(t *testing.T, res *mcp.CallToolResult) []map[string]any {
	t.Helper()

	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(text.Text), &rows); err != nil {
		t.Fatalf("result is not a JSON array: %v", err)
	}
	return rows
}

func TestRunSQLTool(t *testing.T) {
	ctx := context.Background()
	handler := runSQLHandler(newTestGateway(t), slog.Default())

	t.Run("returns rows as JSON", func(t *testing.T) {
		res, err := handler(ctx, callToolRequest("run_sql", map[string]any{
			"query": "select id, title from sop where id = :id",
			"params": map[string]any{
				"id": 1,
			},
		}))
		if err != nil {
			t.Fatalf("handler: %v", err)
		}

		rows := resultRows(t, res)
		if len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(rows))
		}
		if rows[0]["title"] != "Filter check" {
			t.Errorf("unexpected row: %v", rows[0])
		}
	})

	t.Run("applies the default limit when out of range", func(t *testing.T) {
		res, err := handler(ctx, callToolRequest("run_sql", map[string]any{
			"query": "select id from sop",
			"limit": float64(500),
		}))
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rows := resultRows(t, res); len(rows) != 50 {
			t.Errorf("expected 50 rows, got %d", len(rows))
		}
	})

	t.Run("reports blocked queries as payload, not protocol error", func(t *testing.T) {
		res, err := handler(ctx, callToolRequest("run_sql", map[string]any{
			"query": "drop table sop",
		}))
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if res.IsError {
			t.Error("policy rejections must not be protocol-level errors")
		}

		rows := resultRows(t, res)
		if len(rows) != 1 || rows[0]["error"] != gateway.BlockedQueryMessage {
			t.Errorf("unexpected payload: %v", rows)
		}
	})

	t.Run("rejects a missing query argument", func(t *testing.T) {
		res, err := handler(ctx, callToolRequest("run_sql", map[string]any{}))
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if !res.IsError {
			t.Error("expected tool error for missing required argument")
		}
	})
}

func TestSearchSOPTool(t *testing.T) {
	ctx := context.Background()
	handler := searchSOPHandler(newTestGateway(t), slog.Default())

	t.Run("returns hits with snippet projection", func(t *testing.T) {
		res, err := handler(ctx, callToolRequest("search_sop", map[string]any{
			"text":  "filter",
			"top_k": float64(3),
		}))
		if err != nil {
			t.Fatalf("handler: %v", err)
		}

		rows := resultRows(t, res)
		if len(rows) != 3 {
			t.Fatalf("expected 3 hits, got %d", len(rows))
		}
		for _, key := range []string{"id", "title", "area", "snippet"} {
			if _, ok := rows[0][key]; !ok {
				t.Errorf("missing %s in hit: %v", key, rows[0])
			}
		}
	})

	t.Run("falls back to the default top_k", func(t *testing.T) {
		res, err := handler(ctx, callToolRequest("search_sop", map[string]any{
			"text":  "filter",
			"top_k": float64(0),
		}))
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rows := resultRows(t, res); len(rows) != 5 {
			t.Errorf("expected 5 hits, got %d", len(rows))
		}
	})
}

func TestNewServer(t *testing.T) {
	s := NewServer(newTestGateway(t), "test", slog.Default())
	if s == nil {
		t.Fatal("expected a server")
	}
}
