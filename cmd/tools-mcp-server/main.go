package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"portal-chat/internal/analytics"
	"portal-chat/internal/storage"
)

// PortalToolsServer exposes read-only views of the turn log to agents.
type PortalToolsServer struct {
	log *storage.FileRecorder
	now func() time.Time
}

func NewPortalToolsServer(logPath string) (*PortalToolsServer, error) {
	rec, err := storage.NewFileRecorder(logPath)
	if err != nil {
		return nil, err
	}
	return &PortalToolsServer{log: rec, now: time.Now}, nil
}

// UsageReport summarizes one UTC day of chat turns.
func (s *PortalToolsServer) UsageReport(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]interface{}]) (*mcp.CallToolResultFor[any], error) {
	day := s.now().UTC().AddDate(0, 0, -1)
	if v, _ := params.Arguments["date"].(string); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return errorResult(fmt.Sprintf("❌ date must look like 2006-01-02: %v", err)), nil
		}
		day = parsed
	}

	events, err := s.log.LoadInteractions()
	if err != nil {
		return errorResult(fmt.Sprintf("❌ failed to read turn log: %v", err)), nil
	}
	stats := analytics.AnalyzeDailyLogs(events, day)
	log.Printf("📊 MCP Server: usage report for %s (%d turns)", stats.Date, stats.TotalTurns)

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: stats.GenerateReportSummary()}},
		Meta: map[string]interface{}{
			"date":   stats.Date,
			"turns":  stats.TotalTurns,
			"tokens": stats.Tokens,
		},
	}, nil
}

// SessionTranscript returns the recorded turns of one chat session.
func (s *PortalToolsServer) SessionTranscript(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]interface{}]) (*mcp.CallToolResultFor[any], error) {
	id, _ := params.Arguments["session_id"].(string)
	if strings.TrimSpace(id) == "" {
		return errorResult("❌ session_id parameter is required"), nil
	}
	events, err := s.log.LoadSession(id)
	if err != nil {
		return errorResult(fmt.Sprintf("❌ failed to read turn log: %v", err)), nil
	}
	if len(events) == 0 {
		return errorResult("❌ No turns recorded for session " + id), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s (%s, agent %s)\n", id, events[0].Principal, events[0].Agent)
	for _, ev := range events {
		fmt.Fprintf(&sb, "\n[%s] user: %s\n", ev.Timestamp.UTC().Format(time.RFC3339), ev.UserMessage)
		fmt.Fprintf(&sb, "assistant: %s\n", ev.AssistantResponse)
		if len(ev.Tools) > 0 {
			fmt.Fprintf(&sb, "tools: %s\n", strings.Join(ev.Tools, ", "))
		}
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: sb.String()}},
		Meta:    map[string]interface{}{"session_id": id, "turns": len(events)},
	}, nil
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	logPath := os.Getenv("LOG_FILE_PATH")
	if logPath == "" {
		logPath = "logs/turns.jsonl"
	}

	log.Printf("🚀 Starting portal tools MCP Server (log %s)", logPath)
	tools, err := NewPortalToolsServer(logPath)
	if err != nil {
		log.Fatalf("❌ failed to open turn log: %v", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "portal-chat-tools-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portal_usage_report",
		Description: "Summarizes portal chat usage for one UTC day. Optional `date` is YYYY-MM-DD, default yesterday.",
	}, tools.UsageReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portal_session_transcript",
		Description: "Returns the recorded turns of the chat session with the given `session_id`.",
	}, tools.SessionTranscript)

	log.Printf("📋 Registered 2 portal MCP tools")

	transport := mcp.NewStdioTransport()
	if err := server.Run(context.Background(), transport); err != nil {
		log.Fatalf("❌ portal tools MCP Server failed: %v", err)
	}
}
