package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/plantops/factory-mcp/llm"
)

// ToolCaller is how the agent reaches its tools. The MCP-backed
// implementation is the production one; tests substitute their own.
type ToolCaller interface {
	// ListTools returns the tool definitions to advertise to the model.
	ListTools(ctx context.Context) ([]llm.ToolDef, error)

	// CallTool invokes a tool and returns its decoded payload.
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// MCPCaller is a ToolCaller over a streamable-HTTP MCP connection.
type MCPCaller struct {
	client *client.Client
}

// NewMCPCaller connects to the MCP server at url and performs the
// initialize handshake.
func NewMCPCaller(ctx context.Context, url, version string) (*MCPCaller, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("agent: creating mcp client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("agent: starting mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "factory-chat",
		Version: version,
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("agent: mcp initialize: %w", err)
	}

	return &MCPCaller{client: c}, nil
}

// Close shuts down the MCP connection.
func (m *MCPCaller) Close() error {
	return m.client.Close()
}

func (m *MCPCaller) ListTools(ctx context.Context) ([]llm.ToolDef, error) {
	res, err := m.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("agent: listing tools: %w", err)
	}

	defs := make([]llm.ToolDef, 0, len(res.Tools))
	for _, tool := range res.Tools {
		schema, err := schemaToMap(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("agent: tool %s schema: %w", tool.Name, err)
		}
		defs = append(defs, llm.ToolDef{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return defs, nil
}

func (m *MCPCaller) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := m.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("agent: calling %s: %w", name, err)
	}

	texts := make([]string, 0, len(res.Content))
	for _, block := range res.Content {
		if tc, ok := mcp.AsTextContent(block); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) == 0 {
		return map[string]any{}, nil
	}
	return parseToolPayload(strings.Join(texts, "\n")), nil
}

// parseToolPayload decodes a tool's text payload: JSON when it parses,
// otherwise the raw text wrapped in a map so the model always receives
// structured content.
func parseToolPayload(raw string) any {
	text := strings.TrimSpace(raw)
	if text == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return map[string]any{"text": text}
	}
	return v
}

func schemaToMap(schema mcp.ToolInputSchema) (map[string]any, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ ToolCaller = (*MCPCaller)(nil)
