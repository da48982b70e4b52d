package storage

import "time"

// Event is one completed chat turn: the user's message and the agent's answer.
// Events are appended in chronological order.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	Principal         string    `json:"principal"`
	SessionID         string    `json:"session_id"`
	Agent             string    `json:"agent"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Tools             []string  `json:"tools,omitempty"`
	Tokens            int       `json:"tokens,omitempty"`
	Streamed          bool      `json:"streamed,omitempty"`
}

// Recorder abstracts persistence of turn events.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
