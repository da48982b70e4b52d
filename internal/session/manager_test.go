package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sync"
	"testing"

	"portal-chat/internal/chat"
	"portal-chat/internal/client"
)

type sliceEvents struct {
	events []chat.Event
	err    error
	closed bool
}

func (s *sliceEvents) Next() (chat.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceEvents) Close() error { s.closed = true; return nil }

// fakeInvoker opens a new server session whenever asked to and echoes the message back.
type fakeInvoker struct {
	mu       sync.Mutex
	requests []client.StreamRequest
	sessions int
	failWith error
}

func (f *fakeInvoker) Stream(ctx context.Context, req client.StreamRequest) (Events, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failWith != nil {
		return nil, f.failWith
	}
	sid := req.SessionID
	if req.NewSession {
		f.sessions++
		sid = fmt.Sprintf("s-%d", f.sessions)
	}
	return &sliceEvents{events: []chat.Event{
		chat.ResponseEvent{SessionID: sid},
		chat.ChunkEvent{Token: "re: "},
		chat.ToolEvent{Name: "lookup", Input: map[string]any{"q": req.UserMessage}},
		chat.ChunkEvent{Token: req.UserMessage},
	}}, nil
}

func TestSend_TwoMessagesPerTurnInOrder(t *testing.T) {
	inv := &fakeInvoker{}
	m := New(inv, Options{Agent: "helper"})

	var tokens []string
	var tools []string
	m.Subscribe(Listener{
		Token: func(tok string) { tokens = append(tokens, tok) },
		Tool:  func(ev chat.ToolEvent) { tools = append(tools, ev.Name) },
	})

	for i, text := range []string{"one", "two", "three"} {
		if err := m.SendUserMessage(context.Background(), text); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if got := len(m.Messages()); got != 2*(i+1) {
			t.Fatalf("after %d turns want %d messages, got %d", i+1, 2*(i+1), got)
		}
	}

	want := []chat.Message{
		{Payload: "one", User: true}, {Payload: "re: one"},
		{Payload: "two", User: true}, {Payload: "re: two"},
		{Payload: "three", User: true}, {Payload: "re: three"},
	}
	if !reflect.DeepEqual(m.Messages(), want) {
		t.Fatalf("unexpected transcript: %+v", m.Messages())
	}
	if m.SessionID() != "s-1" || m.State() != Idle {
		t.Fatalf("unexpected session state: %s %s", m.SessionID(), m.State())
	}
	if !inv.requests[0].NewSession || inv.requests[1].NewSession || inv.requests[1].SessionID != "s-1" {
		t.Fatalf("session id not reused: %+v", inv.requests)
	}
	if inv.requests[0].Agent != "helper" {
		t.Fatalf("agent not forwarded: %+v", inv.requests[0])
	}
	if len(tokens) != 6 || len(tools) != 3 {
		t.Fatalf("listeners not notified: tokens=%v tools=%v", tokens, tools)
	}
}

func TestSend_RejectsEmpty(t *testing.T) {
	inv := &fakeInvoker{}
	m := New(inv, Options{})
	if err := m.SendUserMessage(context.Background(), " \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("want ErrEmptyMessage, got %v", err)
	}
	if len(inv.requests) != 0 || len(m.Messages()) != 0 {
		t.Fatalf("empty message must not be sent or recorded")
	}
}

func TestClear_StartsFreshSession(t *testing.T) {
	inv := &fakeInvoker{}
	m := New(inv, Options{})

	_ = m.SendUserMessage(context.Background(), "first")
	before := m.SessionID()
	m.Clear()
	if len(m.Messages()) != 0 || m.SessionID() != "" || m.Generation() != 1 {
		t.Fatalf("clear did not reset: %+v %q %d", m.Messages(), m.SessionID(), m.Generation())
	}
	_ = m.SendUserMessage(context.Background(), "second")

	last := inv.requests[len(inv.requests)-1]
	if !last.NewSession || last.SessionID != "" {
		t.Fatalf("send after clear must request a new session: %+v", last)
	}
	if m.SessionID() == before {
		t.Fatalf("session id %s reused after clear", before)
	}
}

func TestSend_FailureKeepsUserMessage(t *testing.T) {
	inv := &fakeInvoker{failWith: &client.StatusError{StatusCode: 502, Message: "bad gateway"}}
	m := New(inv, Options{})

	err := m.SendUserMessage(context.Background(), "hello")
	var se *client.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected status error, got %v", err)
	}
	if m.State() != Idle {
		t.Fatalf("state not restored: %s", m.State())
	}
	msgs := m.Messages()
	if len(msgs) != 1 || !msgs[0].User || msgs[0].Payload != "hello" {
		t.Fatalf("unexpected transcript after failure: %+v", msgs)
	}
}

func TestSend_MidStreamErrorAddsNoAssistantMessage(t *testing.T) {
	remote := &chat.RemoteError{Message: "agent run failed"}
	inv := invokerFunc(func(ctx context.Context, req client.StreamRequest) (Events, error) {
		return &sliceEvents{events: []chat.Event{chat.ResponseEvent{SessionID: "s"}, chat.ChunkEvent{Token: "par"}}, err: remote}, nil
	})
	m := New(inv, Options{})
	if err := m.SendUserMessage(context.Background(), "x"); !errors.Is(err, remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if len(m.Messages()) != 1 || m.State() != Idle {
		t.Fatalf("unexpected state: %+v %s", m.Messages(), m.State())
	}
}

type invokerFunc func(ctx context.Context, req client.StreamRequest) (Events, error)

func (f invokerFunc) Stream(ctx context.Context, req client.StreamRequest) (Events, error) {
	return f(ctx, req)
}

// gatedEvents blocks each Next until the test releases it.
type gatedEvents struct {
	gate   chan struct{}
	events []chat.Event
}

func (g *gatedEvents) Next() (chat.Event, error) {
	<-g.gate
	if len(g.events) == 0 {
		return nil, io.EOF
	}
	ev := g.events[0]
	g.events = g.events[1:]
	return ev, nil
}

func (g *gatedEvents) Close() error { return nil }

func TestBusyAndStaleResultAfterClear(t *testing.T) {
	started := make(chan struct{})
	gated := &gatedEvents{gate: make(chan struct{}), events: []chat.Event{
		chat.ResponseEvent{SessionID: "old"},
		chat.ChunkEvent{Token: "stale"},
	}}
	inv := invokerFunc(func(ctx context.Context, req client.StreamRequest) (Events, error) {
		close(started)
		return gated, nil
	})
	m := New(inv, Options{})

	done := make(chan error, 1)
	go func() { done <- m.SendUserMessage(context.Background(), "slow") }()
	<-started

	if err := m.SendUserMessage(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("want ErrBusy while sending, got %v", err)
	}

	m.Clear()
	close(gated.gate)

	if err := <-done; !errors.Is(err, ErrDiscarded) {
		t.Fatalf("want ErrDiscarded, got %v", err)
	}
	if len(m.Messages()) != 0 || m.SessionID() != "" {
		t.Fatalf("stale result leaked into state: %+v %q", m.Messages(), m.SessionID())
	}
	if m.State() != Idle {
		t.Fatalf("state should be idle after clear")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	inv := &fakeInvoker{}
	m := New(inv, Options{Storage: fs, StorageKey: "chat:42"})

	var notified int
	m.Subscribe(Listener{MessagesChanged: func([]chat.Message) { notified++ }})
	_ = m.SendUserMessage(context.Background(), "a")
	_ = m.SendUserMessage(context.Background(), "b")
	if notified == 0 {
		t.Fatalf("messagesChanged never fired")
	}

	restored := New(inv, Options{Storage: fs, StorageKey: "chat:42"})
	if !reflect.DeepEqual(restored.Messages(), m.Messages()) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", restored.Messages(), m.Messages())
	}
	if restored.SessionID() != m.SessionID() {
		t.Fatalf("session id not restored")
	}

	other := New(inv, Options{Storage: fs, StorageKey: "chat:7"})
	if len(other.Messages()) != 0 {
		t.Fatalf("keys must not share transcripts")
	}
}

func TestUnsubscribe(t *testing.T) {
	m := New(&fakeInvoker{}, Options{})
	calls := 0
	stop := m.Subscribe(Listener{MessagesChanged: func([]chat.Message) { calls++ }})
	m.Clear()
	stop()
	m.Clear()
	if calls != 1 {
		t.Fatalf("want 1 call, got %d", calls)
	}
}

// heldStorage blocks the first Save until release is closed.
type heldStorage struct {
	mu      sync.Mutex
	saves   int
	entered chan struct{}
	release chan struct{}
	stored  Transcript
	has     bool
}

func (h *heldStorage) Load(string) (Transcript, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stored, h.has, nil
}

func (h *heldStorage) Save(_ string, t Transcript) error {
	h.mu.Lock()
	h.saves++
	first := h.saves == 1
	h.mu.Unlock()
	if first {
		close(h.entered)
		<-h.release
	}
	h.mu.Lock()
	h.stored, h.has = t, true
	h.mu.Unlock()
	return nil
}

func TestClearDuringSlowSaveIsNotOverwritten(t *testing.T) {
	st := &heldStorage{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(&fakeInvoker{}, Options{Storage: st, StorageKey: "k"})

	sent := make(chan error, 1)
	go func() { sent <- m.SendUserMessage(context.Background(), "hello") }()
	<-st.entered

	cleared := make(chan struct{})
	go func() {
		m.Clear()
		close(cleared)
	}()
	for m.Generation() == 0 {
		runtime.Gosched()
	}
	close(st.release)
	<-cleared
	if err := <-sent; !errors.Is(err, ErrDiscarded) {
		t.Fatalf("want ErrDiscarded, got %v", err)
	}

	if len(m.Messages()) != 0 {
		t.Fatalf("manager not cleared: %+v", m.Messages())
	}
	restored := New(&fakeInvoker{}, Options{Storage: st, StorageKey: "k"})
	if len(restored.Messages()) != 0 || restored.SessionID() != "" {
		t.Fatalf("cleared transcript came back: %+v %q", restored.Messages(), restored.SessionID())
	}
}
