// Package transform turns the agent runtime feed into chat events.
package transform

import (
	"context"
	"errors"
	"io"

	"portal-chat/internal/agent"
	"portal-chat/internal/chat"
)

// Source is the runtime feed of one agent turn. *agent.Run implements it.
type Source interface {
	Next(ctx context.Context) (agent.Event, error)
}

// Stream is a pull adapter: nothing is read from the source until Next is called.
type Stream struct {
	sessionID string
	src       Source
	announced bool
	done      bool
}

func New(sessionID string, src Source) *Stream {
	return &Stream{sessionID: sessionID, src: src}
}

// Next returns the next chat event. The first event is always the ResponseEvent.
// After the source ends every call returns io.EOF.
func (s *Stream) Next(ctx context.Context) (chat.Event, error) {
	if !s.announced {
		s.announced = true
		return chat.ResponseEvent{SessionID: s.sessionID}, nil
	}
	for !s.done {
		ev, err := s.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		if out, ok := convert(ev); ok {
			return out, nil
		}
	}
	return nil, io.EOF
}

func convert(ev agent.Event) (chat.Event, bool) {
	switch ev.Kind {
	case agent.EventModelStream:
		if ev.ToolCallChunk || ev.Text == "" {
			return nil, false
		}
		return chat.ChunkEvent{Token: ev.Text}, true
	case agent.EventModelEnd:
		return chat.ChunkEvent{Token: chat.ParagraphBreak}, true
	case agent.EventToolStart:
		input := ev.ToolInput
		if input == nil {
			input = map[string]any{}
		}
		return chat.ToolEvent{Name: ev.ToolName, Input: input}, true
	default:
		return nil, false
	}
}
