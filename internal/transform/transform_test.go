package transform

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"portal-chat/internal/agent"
	"portal-chat/internal/chat"
)

type sliceSource struct {
	events []agent.Event
	err    error
	reads  int
}

func (s *sliceSource) Next(context.Context) (agent.Event, error) {
	s.reads++
	if len(s.events) == 0 {
		if s.err != nil {
			return agent.Event{}, s.err
		}
		return agent.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func collect(t *testing.T, s *Stream) []chat.Event {
	t.Helper()
	var out []chat.Event
	for {
		ev, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, ev)
	}
}

func TestStream_MapsRuntimeFeed(t *testing.T) {
	src := &sliceSource{events: []agent.Event{
		{Kind: agent.EventRunStart},
		{Kind: agent.EventModelStream, Text: "Hel"},
		{Kind: agent.EventModelStream, Text: "lo"},
		{Kind: agent.EventToolStart, ToolName: "X", ToolInput: map[string]any{"a": 1}},
		{Kind: agent.EventModelEnd},
	}}
	got := collect(t, New("s1", src))
	want := []chat.Event{
		chat.ResponseEvent{SessionID: "s1"},
		chat.ChunkEvent{Token: "Hel"},
		chat.ChunkEvent{Token: "lo"},
		chat.ToolEvent{Name: "X", Input: map[string]any{"a": 1}},
		chat.ChunkEvent{Token: "\n\n"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events:\n got %#v\nwant %#v", got, want)
	}
}

func TestStream_DropsToolFragmentsAndUnknownKinds(t *testing.T) {
	src := &sliceSource{events: []agent.Event{
		{Kind: agent.EventModelStream, Text: `{"a":`, ToolCallChunk: true},
		{Kind: agent.EventModelStream, Text: ""},
		{Kind: agent.EventToolEnd, ToolName: "X", ToolOutput: "ok"},
		{Kind: "custom"},
	}}
	got := collect(t, New("s1", src))
	if len(got) != 1 {
		t.Fatalf("expected only the response event, got %#v", got)
	}
}

func TestStream_ResponseBeforeAnyRead(t *testing.T) {
	src := &sliceSource{}
	s := New("abc", src)
	ev, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev != (chat.ResponseEvent{SessionID: "abc"}) {
		t.Fatalf("unexpected first event %#v", ev)
	}
	if src.reads != 0 {
		t.Fatalf("source read before the response event")
	}
}

func TestStream_NotRestartable(t *testing.T) {
	src := &sliceSource{}
	s := New("s", src)
	collect(t, s)
	src.events = []agent.Event{{Kind: agent.EventModelStream, Text: "late"}}
	if _, err := s.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after end, got %v", err)
	}
}

func TestStream_PropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	s := New("s", &sliceSource{err: boom})
	_, _ = s.Next(context.Background())
	if _, err := s.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}
