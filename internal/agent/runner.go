package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"portal-chat/internal/llm"
)

// EventKind tags records of the agent runtime feed.
type EventKind string

const (
	EventRunStart    EventKind = "run_start"
	EventModelStream EventKind = "model_stream"
	EventModelEnd    EventKind = "model_end"
	EventToolStart   EventKind = "tool_start"
	EventToolEnd     EventKind = "tool_end"
)

// Event is one record of the runtime feed.
type Event struct {
	Kind EventKind
	// Text is set for model_stream.
	Text string
	// ToolCallChunk marks a model_stream record that is a fragment of a tool call.
	ToolCallChunk bool
	ToolName      string
	ToolInput     map[string]interface{}
	ToolOutput    string
}

// Agent is a Definition bound to its model client and tools.
type Agent struct {
	Definition
	LLM   llm.Streamer
	Tools []Tool
}

// ClientFunc creates the model client for a provider/model pair.
type ClientFunc func(provider, model string) (llm.Streamer, error)

// Build binds every catalog entry to a client and its tools.
func Build(c *Catalog, reg *Registry, newClient ClientFunc) (map[string]*Agent, error) {
	out := make(map[string]*Agent)
	for _, def := range c.List() {
		tools, err := reg.Resolve(def.Tools)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
		client, err := newClient(def.Provider, def.Model)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
		out[def.Name] = &Agent{Definition: def, LLM: client, Tools: tools}
	}
	return out, nil
}

// Generate answers a single prompt without tools or history.
func (a *Agent) Generate(ctx context.Context, prompt string) (llm.Response, error) {
	var msgs []llm.Message
	if a.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.SystemPrompt})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})
	return a.LLM.Generate(ctx, msgs)
}

// Usage sums token counts over all model rounds of a run.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Run is one agent turn. Next pulls the runtime feed; nothing runs until it is called.
type Run struct {
	agent    *Agent
	decls    []llm.Tool
	messages []llm.Message

	started   bool
	finished  bool
	needModel bool
	round     int
	stream    llm.ChatStream
	queue     []llm.ToolCall
	announced bool
	err       error

	rounds    []string
	toolsUsed []string
	usage     Usage
}

// Start prepares a run over the given prior history and new user message.
func (a *Agent) Start(history []llm.Message, userMessage string) *Run {
	msgs := make([]llm.Message, 0, len(history)+2)
	if a.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.SystemPrompt})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return &Run{
		agent:     a,
		decls:     Declarations(a.Tools),
		messages:  msgs,
		needModel: true,
	}
}

// Next returns the next runtime event, io.EOF after the run ends.
func (r *Run) Next(ctx context.Context) (Event, error) {
	for {
		if r.err != nil {
			return Event{}, r.err
		}
		if r.finished {
			return Event{}, io.EOF
		}
		if !r.started {
			r.started = true
			return Event{Kind: EventRunStart}, nil
		}

		if r.stream != nil {
			d, err := r.stream.Recv()
			if errors.Is(err, io.EOF) {
				return r.endRound(), nil
			}
			if err != nil {
				return Event{}, r.fail(err)
			}
			if d.ToolCall != nil {
				return Event{Kind: EventModelStream, Text: d.Content, ToolCallChunk: true}, nil
			}
			if d.Content == "" {
				continue
			}
			return Event{Kind: EventModelStream, Text: d.Content}, nil
		}

		if len(r.queue) > 0 {
			tc := r.queue[0]
			if !r.announced {
				r.announced = true
				return Event{Kind: EventToolStart, ToolName: tc.Function.Name, ToolInput: tc.Function.Arguments}, nil
			}
			out := r.callTool(ctx, tc)
			r.queue = r.queue[1:]
			r.announced = false
			r.messages = append(r.messages, llm.Message{Role: llm.RoleTool, Content: out, ToolCallID: tc.ID})
			return Event{Kind: EventToolEnd, ToolName: tc.Function.Name, ToolOutput: out}, nil
		}

		if !r.needModel {
			r.finished = true
			continue
		}
		if r.round >= r.agent.MaxRounds {
			log.Printf("⚠️ agent %s hit max rounds (%d)", r.agent.Name, r.agent.MaxRounds)
			r.finished = true
			continue
		}
		r.round++
		s, err := r.agent.LLM.Stream(ctx, r.messages, r.decls)
		if err != nil {
			return Event{}, r.fail(err)
		}
		r.stream = s
	}
}

func (r *Run) endRound() Event {
	res := r.stream.Result()
	_ = r.stream.Close()
	r.stream = nil

	r.usage.PromptTokens += res.PromptTokens
	r.usage.CompletionTokens += res.CompletionTokens
	r.usage.TotalTokens += res.TotalTokens

	r.messages = append(r.messages, llm.Message{Role: llm.RoleAssistant, Content: res.Content, ToolCalls: res.ToolCalls})
	if strings.TrimSpace(res.Content) != "" {
		r.rounds = append(r.rounds, strings.TrimSpace(res.Content))
	}
	r.queue = res.ToolCalls
	r.needModel = len(res.ToolCalls) > 0
	return Event{Kind: EventModelEnd}
}

func (r *Run) callTool(ctx context.Context, tc llm.ToolCall) string {
	r.toolsUsed = append(r.toolsUsed, tc.Function.Name)
	var tool Tool
	for _, t := range r.agent.Tools {
		if t.Name() == tc.Function.Name {
			tool = t
			break
		}
	}
	if tool == nil {
		return "Unknown tool: " + tc.Function.Name
	}
	log.Printf("🔧 agent %s calls %s", r.agent.Name, tc.Function.Name)
	out, err := tool.Call(ctx, tc.Function.Arguments)
	if err != nil {
		log.Printf("❌ tool %s failed: %v", tc.Function.Name, err)
		return "Error: " + err.Error()
	}
	return out
}

func (r *Run) fail(err error) error {
	if r.stream != nil {
		_ = r.stream.Close()
		r.stream = nil
	}
	r.err = fmt.Errorf("agent %s: %w", r.agent.Name, err)
	return r.err
}

// Answer is the assistant text of all rounds, valid after the run ends.
func (r *Run) Answer() string { return strings.Join(r.rounds, "\n\n") }

func (r *Run) ToolsUsed() []string { return append([]string(nil), r.toolsUsed...) }

func (r *Run) Usage() Usage { return r.usage }

func (r *Run) Agent() *Agent { return r.agent }
