package telegram

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"portal-chat/internal/chat"
	"portal-chat/internal/client"
	"portal-chat/internal/session"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

type sliceEvents struct{ events []chat.Event }

func (s *sliceEvents) Next() (chat.Event, error) {
	if len(s.events) == 0 {
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceEvents) Close() error { return nil }

type fakeInvoker struct {
	mu       sync.Mutex
	requests []client.StreamRequest
	failWith error
}

func (f *fakeInvoker) Stream(ctx context.Context, req client.StreamRequest) (session.Events, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failWith != nil {
		return nil, f.failWith
	}
	sid := req.SessionID
	if req.NewSession {
		sid = fmt.Sprintf("s-%d", len(f.requests))
	}
	return &sliceEvents{events: []chat.Event{
		chat.ResponseEvent{SessionID: sid},
		chat.ToolEvent{Name: "lookup", Input: map[string]any{}},
		chat.ChunkEvent{Token: "answer to " + req.UserMessage},
	}}, nil
}

type fakeEnder struct {
	mu    sync.Mutex
	ended []string
}

func (f *fakeEnder) EndSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	return nil
}

func newTestBot(inv *fakeInvoker, allowed []int64, parseMode string) (*Bot, *fakeSender) {
	b, fs, _ := newTestBotWithEnder(inv, allowed, parseMode)
	return b, fs
}

func newTestBotWithEnder(inv *fakeInvoker, allowed []int64, parseMode string) (*Bot, *fakeSender, *fakeEnder) {
	fs := &fakeSender{}
	ender := &fakeEnder{}
	b := newBot(fs, allowed, parseMode, ender, func(chatID int64) *session.Manager {
		return session.New(inv, session.Options{Agent: "portal-assistant"})
	}, nil)
	return b, fs, ender
}

func textMessage(userID, chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: "dev"},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}
}

func commandMessage(userID, chatID int64, cmd string) *tgbotapi.Message {
	m := textMessage(userID, chatID, "/"+cmd)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return m
}

func TestIncomingMessage_RepliesWithAnswerAndTools(t *testing.T) {
	inv := &fakeInvoker{}
	b, fs := newTestBot(inv, nil, "")

	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "hello"))
	out := fs.last(t)
	if out.ChatID != 10 || !strings.HasPrefix(out.Text, "answer to hello") || !strings.Contains(out.Text, "🔧 lookup") {
		t.Fatalf("unexpected reply: %+v", out)
	}
	if out.ReplyMarkup == nil {
		t.Fatalf("reset keyboard missing")
	}

	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "again"))
	if len(inv.requests) != 2 || inv.requests[1].NewSession || inv.requests[1].SessionID != "s-1" {
		t.Fatalf("second turn did not continue the session: %+v", inv.requests)
	}
}

func TestIncomingMessage_DeniesUnknownUser(t *testing.T) {
	inv := &fakeInvoker{}
	b, fs := newTestBot(inv, []int64{42}, "")

	b.handleIncomingMessage(context.Background(), textMessage(7, 10, "hello"))
	if !strings.Contains(fs.last(t).Text, "Access denied") {
		t.Fatalf("unexpected reply: %q", fs.last(t).Text)
	}
	if len(inv.requests) != 0 {
		t.Fatalf("denied user reached the agent")
	}
}

func TestResetCommandStartsNewSession(t *testing.T) {
	inv := &fakeInvoker{}
	b, fs, ender := newTestBotWithEnder(inv, nil, "")

	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "hello"))
	b.handleIncomingMessage(context.Background(), commandMessage(1, 10, "reset"))
	if len(ender.ended) != 1 || ender.ended[0] != "s-1" {
		t.Fatalf("server session not ended: %v", ender.ended)
	}
	if fs.last(t).Text != "Context cleared" {
		t.Fatalf("unexpected reply: %q", fs.last(t).Text)
	}
	if b.manager(10).SessionID() != "" || len(b.manager(10).Messages()) != 0 {
		t.Fatalf("reset did not clear the manager")
	}
	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "fresh"))
	if !inv.requests[1].NewSession {
		t.Fatalf("turn after reset must open a new session: %+v", inv.requests[1])
	}
}

func TestResetCallback(t *testing.T) {
	inv := &fakeInvoker{}
	b, fs, ender := newTestBotWithEnder(inv, nil, "")
	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "hello"))

	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 10}},
		Data:    resetCmd,
	})
	if fs.last(t).Text != "Context cleared" || b.manager(10).SessionID() != "" {
		t.Fatalf("callback did not reset")
	}
	if len(ender.ended) != 1 || ender.ended[0] != "s-1" {
		t.Fatalf("server session not ended: %v", ender.ended)
	}
}

func TestChatsAreIsolated(t *testing.T) {
	inv := &fakeInvoker{}
	b, _ := newTestBot(inv, nil, "")
	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "a"))
	b.handleIncomingMessage(context.Background(), textMessage(2, 20, "b"))
	if !inv.requests[0].NewSession || !inv.requests[1].NewSession {
		t.Fatalf("each chat needs its own session: %+v", inv.requests)
	}
}

func TestFailedTurnReportsError(t *testing.T) {
	inv := &fakeInvoker{failWith: &client.StatusError{StatusCode: 502, Message: "agent run failed"}}
	b, fs := newTestBot(inv, nil, "")
	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "hello"))
	if !strings.Contains(fs.last(t).Text, "something went wrong") {
		t.Fatalf("unexpected reply: %q", fs.last(t).Text)
	}
}

func TestExpiredSessionIsCleared(t *testing.T) {
	inv := &fakeInvoker{}
	b, fs := newTestBot(inv, nil, "")
	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "hello"))

	inv.failWith = &client.StatusError{StatusCode: 404, Message: "session not found"}
	b.handleIncomingMessage(context.Background(), textMessage(1, 10, "still there?"))
	if !strings.Contains(fs.last(t).Text, "expired") {
		t.Fatalf("unexpected reply: %q", fs.last(t).Text)
	}
	if b.manager(10).SessionID() != "" {
		t.Fatalf("expired session id kept")
	}
}

func TestSendMessage_UsesParseMode(t *testing.T) {
	b, fs := newTestBot(&fakeInvoker{}, nil, "HTML")
	b.sendMessage(1, "a < b")
	out := fs.last(t)
	if out.ParseMode != tgbotapi.ModeHTML || out.Text != "a &lt; b" {
		t.Fatalf("unexpected message: %+v", out)
	}
}

func TestStorageKey(t *testing.T) {
	if StorageKey(-100) != "telegram--100" {
		t.Fatalf("unexpected key %q", StorageKey(-100))
	}
}
