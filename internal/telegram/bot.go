package telegram

import (
	"context"
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"portal-chat/internal/session"
)

const resetCmd = "reset_ctx"

// ManagerFactory builds the chat session manager for one Telegram chat.
type ManagerFactory func(chatID int64) *session.Manager

// SessionEnder closes server-side sessions. *client.Client implements it.
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID string) error
}

type Bot struct {
	api        *tgbotapi.BotAPI
	s          sender
	sessions   SessionEnder
	allowed    map[int64]bool
	parseMode  string
	newManager ManagerFactory

	mu       sync.Mutex
	managers map[int64]*session.Manager
}

// New connects to Telegram. An empty allowlist admits every user.
func New(botToken string, allowed []int64, parseMode string, sessions SessionEnder, newManager ManagerFactory) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Printf("🤖 Authorized on account %s", api.Self.UserName)
	return newBot(botAPISender{api: api}, allowed, parseMode, sessions, newManager, api), nil
}

func newBot(s sender, allowed []int64, parseMode string, sessions SessionEnder, newManager ManagerFactory, api *tgbotapi.BotAPI) *Bot {
	b := &Bot{
		api:        api,
		s:          s,
		sessions:   sessions,
		allowed:    make(map[int64]bool, len(allowed)),
		parseMode:  parseMode,
		newManager: newManager,
		managers:   make(map[int64]*session.Manager),
	}
	for _, id := range allowed {
		b.allowed[id] = true
	}
	return b
}

// Start polls updates until ctx is done. Each chat is served by its own manager.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				go b.handleIncomingMessage(ctx, update.Message)
				continue
			}
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}

func (b *Bot) manager(chatID int64) *session.Manager {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.managers[chatID]
	if !ok {
		m = b.newManager(chatID)
		b.managers[chatID] = m
	}
	return m
}

// reset clears the chat and ends its server session.
func (b *Bot) reset(ctx context.Context, chatID int64) {
	m := b.manager(chatID)
	id := m.SessionID()
	m.Clear()
	if id == "" || b.sessions == nil {
		return
	}
	if err := b.sessions.EndSession(ctx, id); err != nil {
		log.Printf("⚠️ failed to end session %s: %v", id, err)
	}
}

// StorageKey is the transcript key of a chat.
func StorageKey(chatID int64) string {
	return fmt.Sprintf("telegram-%d", chatID)
}
