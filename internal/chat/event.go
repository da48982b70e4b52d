package chat

import (
	"encoding/json"
	"fmt"
)

// Event types as they appear in the "type" field on the wire.
const (
	TypeResponse = "response"
	TypeChunk    = "chunk"
	TypeTool     = "tool"
	// TypeError only exists on the wire. Clients turn it into a stream error.
	TypeError = "error"
)

// ParagraphBreak separates model turns inside one assistant message.
const ParagraphBreak = "\n\n"

// Event is one record of a streamed turn.
type Event interface {
	EventType() string
}

// ResponseEvent is always the first event of a turn and carries the session id.
type ResponseEvent struct {
	SessionID string `json:"sessionId"`
}

// ChunkEvent carries incremental assistant text.
type ChunkEvent struct {
	Token string `json:"token"`
}

// ToolEvent announces a tool invocation by the agent.
type ToolEvent struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (ResponseEvent) EventType() string { return TypeResponse }
func (ChunkEvent) EventType() string    { return TypeChunk }
func (ToolEvent) EventType() string     { return TypeTool }

// Message is one entry of a transcript.
type Message struct {
	Payload string `json:"payload"`
	User    bool   `json:"user"`
}

// envelope is the flat wire form of every event.
type envelope struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Token     string         `json:"token,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// MarshalEvent renders an event in its wire form.
func MarshalEvent(ev Event) ([]byte, error) {
	var env envelope
	switch e := ev.(type) {
	case ResponseEvent:
		env = envelope{Type: TypeResponse, SessionID: e.SessionID}
	case ChunkEvent:
		env = envelope{Type: TypeChunk, Token: e.Token}
	case ToolEvent:
		env = envelope{Type: TypeTool, Name: e.Name, Input: e.Input}
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
	return json.Marshal(env)
}

// RemoteError is a failure reported by the server inside a stream.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }

// UnmarshalEvent parses one wire record. A wire error record is returned as *RemoteError.
func UnmarshalEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch env.Type {
	case TypeResponse:
		return ResponseEvent{SessionID: env.SessionID}, nil
	case TypeChunk:
		return ChunkEvent{Token: env.Token}, nil
	case TypeTool:
		return ToolEvent{Name: env.Name, Input: env.Input}, nil
	case TypeError:
		return nil, &RemoteError{Message: env.Message}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// MarshalError renders the wire error record.
func MarshalError(msg string) ([]byte, error) {
	return json.Marshal(envelope{Type: TypeError, Message: msg})
}
