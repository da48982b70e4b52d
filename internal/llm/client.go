package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	Role    string
	Content string
	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall
	// ToolCallID links a tool result message to its call.
	ToolCallID string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ToolCalls        []ToolCall
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// Delta is one increment of a streamed completion.
// ToolCall is set when the increment is a fragment of a tool call rather than text.
type Delta struct {
	Content  string
	ToolCall *ToolCallDelta
}

type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ChatStream yields deltas until io.EOF. Result is valid after EOF.
type ChatStream interface {
	Recv() (Delta, error)
	Result() Response
	Close() error
}

type Streamer interface {
	Client
	Stream(ctx context.Context, messages []Message, tools []Tool) (ChatStream, error)
}
