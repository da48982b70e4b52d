package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPProvider exposes the tools of one MCP server as registry entries.
type MCPProvider struct {
	name    string
	client  *mcp.Client
	session *mcp.ClientSession
}

// ConnectMCP starts the MCP server command and connects to it over stdio.
func ConnectMCP(ctx context.Context, command string) (*MCPProvider, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty MCP server command")
	}
	log.Printf("🔗 Connecting to MCP server %s via stdio", fields[0])

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "portal-chat",
		Version: "1.0.0",
	}, nil)

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Env = os.Environ()

	session, err := client.Connect(ctx, mcp.NewCommandTransport(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server %s: %w", fields[0], err)
	}
	log.Printf("✅ Connected to MCP server %s", fields[0])
	return &MCPProvider{name: fields[0], client: client, session: session}, nil
}

// Tools lists the server's tools.
func (p *MCPProvider) Tools(ctx context.Context) ([]Tool, error) {
	res, err := p.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list MCP tools: %w", err)
	}
	out := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, &mcpTool{
			caller:      p.session,
			name:        t.Name,
			description: t.Description,
			params:      schemaToMap(t.InputSchema),
		})
	}
	return out, nil
}

// RegisterAll lists the server's tools and registers each one.
func (p *MCPProvider) RegisterAll(ctx context.Context, reg *Registry) error {
	tools, err := p.Tools(ctx)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	log.Printf("📋 Registered %d tools from MCP server %s", len(tools), p.name)
	return nil
}

func (p *MCPProvider) Close() error {
	if p.session != nil {
		return p.session.Close()
	}
	return nil
}

type toolCaller interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

type mcpTool struct {
	caller      toolCaller
	name        string
	description string
	params      map[string]interface{}
}

func (t *mcpTool) Name() string                       { return t.name }
func (t *mcpTool) Description() string                { return t.description }
func (t *mcpTool) Parameters() map[string]interface{} { return t.params }

func (t *mcpTool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.caller.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("MCP call %s: %w", t.name, err)
	}

	var text string
	for _, content := range result.Content {
		if textContent, ok := content.(*mcp.TextContent); ok {
			text += textContent.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("MCP tool %s returned error: %s", t.name, text)
	}
	return text, nil
}

// schemaToMap round-trips the SDK schema type through JSON into a plain map.
func schemaToMap(schema any) map[string]interface{} {
	out := map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	if schema == nil {
		return out
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return out
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil || len(m) == 0 {
		return out
	}
	return m
}
