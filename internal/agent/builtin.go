package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portal-chat/internal/store"
)

type currentTimeTool struct {
	now func() time.Time
}

// NewCurrentTimeTool reports the current time, optionally in a named IANA zone.
func NewCurrentTimeTool() Tool { return &currentTimeTool{now: time.Now} }

func (t *currentTimeTool) Name() string { return "current_time" }
func (t *currentTimeTool) Description() string {
	return "Returns the current date and time. Optional `timezone` is an IANA zone name such as Europe/Berlin."
}
func (t *currentTimeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{"type": "string", "description": "IANA time zone, default UTC"},
		},
	}
}
func (t *currentTimeTool) Call(_ context.Context, args map[string]interface{}) (string, error) {
	loc := time.UTC
	if tz, _ := args["timezone"].(string); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		loc = l
	}
	return t.now().In(loc).Format(time.RFC3339), nil
}

type listAgentsTool struct {
	catalog *Catalog
}

// NewListAgentsTool lets an agent describe the other agents available in the portal.
func NewListAgentsTool(c *Catalog) Tool { return &listAgentsTool{catalog: c} }

func (t *listAgentsTool) Name() string { return "list_agents" }
func (t *listAgentsTool) Description() string {
	return "Lists the chat agents configured in the portal with their descriptions."
}
func (t *listAgentsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *listAgentsTool) Call(context.Context, map[string]interface{}) (string, error) {
	var sb strings.Builder
	for _, d := range t.catalog.List() {
		sb.WriteString("- " + d.Name)
		if d.Description != "" {
			sb.WriteString(": " + d.Description)
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "No agents configured.", nil
	}
	return sb.String(), nil
}

type turnKey struct{}

// Turn identifies the chat turn a tool is being called for.
type Turn struct {
	SessionID string
	Principal string
}

func WithTurn(ctx context.Context, t Turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

func TurnFromContext(ctx context.Context) (Turn, bool) {
	t, ok := ctx.Value(turnKey{}).(Turn)
	return t, ok
}

// SessionLookup is the part of the session store the session_info tool reads.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*store.ChatSession, error)
}

type sessionInfoTool struct {
	sessions SessionLookup
}

// NewSessionInfoTool reports facts about the chat session the agent is running in.
func NewSessionInfoTool(sessions SessionLookup) Tool { return &sessionInfoTool{sessions: sessions} }

func (t *sessionInfoTool) Name() string { return "session_info" }
func (t *sessionInfoTool) Description() string {
	return "Describes the current chat session: id, caller, agent and when it started."
}
func (t *sessionInfoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *sessionInfoTool) Call(ctx context.Context, _ map[string]interface{}) (string, error) {
	turn, ok := TurnFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("no chat session in context")
	}
	cs, err := t.sessions.GetSession(ctx, turn.SessionID)
	if err != nil {
		return "", err
	}
	if cs == nil {
		return "", fmt.Errorf("session %s not found", turn.SessionID)
	}
	return fmt.Sprintf("session %s, principal %s, agent %s, started %s",
		cs.SessionID, cs.Principal, cs.Agent, time.Unix(cs.Created, 0).UTC().Format(time.RFC3339)), nil
}
