package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"portal-chat/internal/client"
	"portal-chat/internal/config"
	"portal-chat/internal/session"
	"portal-chat/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.NewClient()
	if cfg.TelegramBotToken == "" {
		log.Fatalf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.Token == "" {
		log.Fatalf("PORTAL_CHAT_TOKEN is required")
	}

	transcripts, err := session.NewFileStorage(cfg.TranscriptDir)
	if err != nil {
		log.Fatalf("failed to init transcript storage: %v", err)
	}
	c := client.NewWithToken(cfg.ServerURL, cfg.Token)
	invoker := session.ClientInvoker(c)

	bot, err := telegram.New(cfg.TelegramBotToken, cfg.AllowedUsers, cfg.MessageParseMode, c, func(chatID int64) *session.Manager {
		return session.New(invoker, session.Options{
			Agent:      cfg.Agent,
			Storage:    transcripts,
			StorageKey: telegram.StorageKey(chatID),
		})
	})
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	bot.Start(ctx)
}
