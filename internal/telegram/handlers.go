package telegram

import (
	"context"
	"errors"
	"html"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"portal-chat/internal/chat"
	"portal-chat/internal/client"
	"portal-chat/internal/session"
)

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.isAllowed(msg.From.ID) {
		log.Printf("Unauthorized access attempt by user ID: %d, username: @%s", msg.From.ID, msg.From.UserName)
		b.sendMessage(msg.Chat.ID, "Access denied. Ask a portal admin to add your Telegram id.")
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	log.Printf("Incoming message from %d (@%s): %q", msg.From.ID, msg.From.UserName, msg.Text)

	m := b.manager(msg.Chat.ID)
	var tools []string
	stop := m.Subscribe(session.Listener{Tool: func(ev chat.ToolEvent) { tools = append(tools, ev.Name) }})
	defer stop()

	err := m.SendUserMessage(ctx, msg.Text)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrBusy):
		b.sendMessage(msg.Chat.ID, "⏳ Still answering your previous message.")
		return
	case errors.Is(err, session.ErrEmptyMessage):
		b.sendMessage(msg.Chat.ID, "Send me some text to get started.")
		return
	case errors.Is(err, session.ErrDiscarded):
		return
	default:
		log.Printf("❌ chat %d turn failed: %v", msg.Chat.ID, err)
		var se *client.StatusError
		if errors.As(err, &se) && se.StatusCode == 404 {
			// the server ended the session; start over on the next message
			m.Clear()
			b.sendMessage(msg.Chat.ID, "The conversation expired. Please send your message again.")
			return
		}
		b.sendMessage(msg.Chat.ID, "Sorry, something went wrong.")
		return
	}

	msgs := m.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].User {
		return
	}
	answer := strings.TrimSpace(msgs[len(msgs)-1].Payload)
	if answer == "" {
		answer = "(empty answer)"
	}
	b.sendAnswer(msg.Chat.ID, answer, tools)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, "Hi! Ask me anything about the portal. Use /reset to start a new conversation.")
	case "reset":
		b.reset(ctx, msg.Chat.ID)
		b.sendMessage(msg.Chat.ID, "Context cleared")
	case "session":
		id := b.manager(msg.Chat.ID).SessionID()
		if id == "" {
			id = "none"
		}
		b.sendMessage(msg.Chat.ID, "Session: "+id)
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Data != resetCmd || cb.Message == nil || cb.From == nil {
		return
	}
	if !b.isAllowed(cb.From.ID) {
		return
	}
	b.reset(ctx, cb.Message.Chat.ID)
	b.sendMessage(cb.Message.Chat.ID, "Context cleared")
}

func (b *Bot) sendAnswer(chatID int64, answer string, tools []string) {
	text := b.escapeIfNeeded(answer)
	if len(tools) > 0 {
		text += "\n\n" + b.escapeIfNeeded("🔧 "+strings.Join(tools, ", "))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reset context", resetCmd),
		),
	)
	out := tgbotapi.NewMessage(chatID, text)
	out.ParseMode = b.parseModeValue()
	out.ReplyMarkup = kb
	if _, err := b.s.Send(out); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, b.escapeIfNeeded(text))
	msg.ParseMode = b.parseModeValue()
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) parseModeValue() string {
	switch strings.ToLower(b.parseMode) {
	case "html":
		return tgbotapi.ModeHTML
	case "markdown":
		return tgbotapi.ModeMarkdown
	case "markdownv2":
		return tgbotapi.ModeMarkdownV2
	default:
		return ""
	}
}

func (b *Bot) escapeIfNeeded(s string) string {
	if b.parseModeValue() == tgbotapi.ModeHTML {
		return html.EscapeString(s)
	}
	return s
}
