// Package mcptools registers the factory SQL tools on an MCP server.
// Tool handlers marshal whatever the gateway returns — rows or an
// error payload — to JSON text content, so a calling agent always
// receives a JSON body it can reason about.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/plantops/factory-mcp/gateway"
)

// ServerName identifies this MCP server to clients.
const ServerName = "factory-sql-mcp"

const instructions = `Tools for querying a factory operations database.
Use run_sql for read-only SELECT queries over equipment, sop,
compressor_events, maintenance_log and alarm_history tables. Use
search_sop to find standard operating procedures by keyword. Queries
must be a single SELECT statement; anything else is rejected.`

// NewServer builds the MCP server with both tools registered.
func NewServer(gw *gateway.Gateway, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	runSQL := mcp.NewTool("run_sql",
		mcp.WithDescription("Execute a read-only SQL SELECT against the factory database and return rows as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("A single SELECT statement. Named parameters use :name placeholders."),
		),
		mcp.WithObject("params",
			mcp.Description("Named parameter bindings for the query."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows to return, 1-200. Out-of-range values fall back to 50."),
		),
	)
	s.AddTool(runSQL, runSQLHandler(gw, logger))

	searchSOP := mcp.NewTool("search_sop",
		mcp.WithDescription("Search standard operating procedures by keyword. Returns id, title, area and a content snippet, newest first."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Keyword to match against SOP titles and contents."),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum procedures to return, 1-20. Out-of-range values fall back to 5."),
		),
	)
	s.AddTool(searchSOP, searchSOPHandler(gw, logger))

	return s
}

func runSQLHandler(gw *gateway.Gateway, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var params map[string]any
		if raw, ok := req.GetArguments()["params"]; ok {
			params, _ = raw.(map[string]any)
		}
		limit := req.GetInt("limit", 50)

		rows := gw.RunQuery(ctx, query, params, limit)
		logger.Debug("run_sql served", "rows", len(rows), "limit", limit)
		return jsonResult(rows)
	}
}

func searchSOPHandler(gw *gateway.Gateway, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		topK := req.GetInt("top_k", 5)

		rows := gw.SearchSOP(ctx, text, topK)
		logger.Debug("search_sop served", "hits", len(rows), "top_k", topK)
		return jsonResult(rows)
	}
}

func jsonResult(rows []gateway.Row) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
