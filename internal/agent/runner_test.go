package agent

import (
	"context"
	"errors"
	"io"
	"testing"

	"portal-chat/internal/llm"
)

// scriptedLLM replays one response per Stream call.
type scriptedLLM struct {
	rounds []llm.Response
	calls  int
	seen   [][]llm.Message
	err    error
}

func (s *scriptedLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	return llm.Response{Content: "single"}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (llm.ChatStream, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.seen = append(s.seen, append([]llm.Message(nil), msgs...))
	resp := s.rounds[s.calls]
	s.calls++
	return llm.NewSingleShotStream(resp), nil
}

type echoTool struct{ calls int }

func (e *echoTool) Name() string                       { return "echo" }
func (e *echoTool) Description() string                { return "echo" }
func (e *echoTool) Parameters() map[string]interface{} { return nil }
func (e *echoTool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	e.calls++
	return "echoed", nil
}

func drain(t *testing.T, r *Run) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, ev)
	}
}

func TestRun_TextOnly(t *testing.T) {
	a := &Agent{
		Definition: Definition{Name: "a", SystemPrompt: "sys", MaxRounds: 3},
		LLM:        &scriptedLLM{rounds: []llm.Response{{Content: "hello"}}},
	}
	r := a.Start([]llm.Message{{Role: llm.RoleUser, Content: "before"}, {Role: llm.RoleAssistant, Content: "ok"}}, "hi")
	events := drain(t, r)

	kinds := []EventKind{EventRunStart, EventModelStream, EventModelEnd}
	if len(events) != len(kinds) {
		t.Fatalf("want %d events, got %+v", len(kinds), events)
	}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Fatalf("event %d: want %s got %s", i, k, events[i].Kind)
		}
	}
	if r.Answer() != "hello" {
		t.Fatalf("unexpected answer %q", r.Answer())
	}
	seen := a.LLM.(*scriptedLLM).seen[0]
	if len(seen) != 4 || seen[0].Role != llm.RoleSystem || seen[3].Content != "hi" {
		t.Fatalf("unexpected prompt: %+v", seen)
	}
}

func TestRun_ToolRoundTrip(t *testing.T) {
	tool := &echoTool{}
	model := &scriptedLLM{rounds: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Function: llm.FunctionCall{Name: "echo", Arguments: map[string]interface{}{"a": 1}}}}},
		{Content: "done"},
	}}
	a := &Agent{Definition: Definition{Name: "a", MaxRounds: 4}, LLM: model, Tools: []Tool{tool}}
	r := a.Start(nil, "go")
	events := drain(t, r)

	want := []EventKind{EventRunStart, EventModelStream, EventModelEnd, EventToolStart, EventToolEnd, EventModelStream, EventModelEnd}
	if len(events) != len(want) {
		t.Fatalf("want %d events, got %+v", len(want), events)
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Fatalf("event %d: want %s got %s", i, k, events[i].Kind)
		}
	}
	if !events[1].ToolCallChunk {
		t.Fatalf("tool call fragment not marked")
	}
	if events[3].ToolName != "echo" || events[3].ToolInput["a"] != 1 {
		t.Fatalf("unexpected tool start: %+v", events[3])
	}
	if tool.calls != 1 {
		t.Fatalf("tool called %d times", tool.calls)
	}
	second := model.seen[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "c1" || last.Content != "echoed" {
		t.Fatalf("tool result not fed back: %+v", last)
	}
	if got := r.ToolsUsed(); len(got) != 1 || got[0] != "echo" {
		t.Fatalf("unexpected tools used: %v", got)
	}
	if r.Answer() != "done" {
		t.Fatalf("unexpected answer %q", r.Answer())
	}
}

func TestRun_MaxRoundsStopsLoop(t *testing.T) {
	call := llm.Response{ToolCalls: []llm.ToolCall{{ID: "c", Function: llm.FunctionCall{Name: "missing"}}}}
	model := &scriptedLLM{rounds: []llm.Response{call, call, call}}
	a := &Agent{Definition: Definition{Name: "a", MaxRounds: 2}, LLM: model}
	events := drain(t, a.Start(nil, "loop"))
	if model.calls != 2 {
		t.Fatalf("want 2 model rounds, got %d", model.calls)
	}
	last := events[len(events)-1]
	if last.Kind != EventToolEnd || last.ToolOutput != "Unknown tool: missing" {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestRun_StreamErrorIsSticky(t *testing.T) {
	a := &Agent{Definition: Definition{Name: "a", MaxRounds: 1}, LLM: &scriptedLLM{err: errors.New("down")}}
	r := a.Start(nil, "x")
	if _, err := r.Next(context.Background()); err != nil {
		t.Fatalf("run_start should not fail: %v", err)
	}
	if _, err := r.Next(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := r.Next(context.Background()); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected sticky error, got %v", err)
	}
}
