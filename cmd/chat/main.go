package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"portal-chat/internal/chat"
	"portal-chat/internal/client"
	"portal-chat/internal/config"
	"portal-chat/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg := config.NewClient()

	var agentName, transcript string
	var listAgents, listSessions bool
	flagSet := pflag.NewFlagSet("portal-chat", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "agent server base URL")
	flagSet.StringVar(&cfg.Token, "token", cfg.Token, "bearer token (default $PORTAL_CHAT_TOKEN)")
	flagSet.StringVarP(&agentName, "agent", "a", cfg.Agent, "agent to talk to")
	flagSet.StringVar(&transcript, "transcript", "terminal", "transcript name under $TRANSCRIPT_DIR, empty disables persistence")
	flagSet.BoolVar(&listAgents, "agents", false, "list the available agents and exit")
	flagSet.BoolVar(&listSessions, "sessions", false, "list your sessions and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if cfg.Token == "" {
		return fmt.Errorf("a token is required, set --token or PORTAL_CHAT_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	c := client.NewWithToken(cfg.ServerURL, cfg.Token)

	if listAgents {
		agents, err := c.Agents(ctx)
		if err != nil {
			return err
		}
		for _, a := range agents {
			fmt.Printf("%s\t%s\n", a.Name, a.Description)
		}
		return nil
	}
	if listSessions {
		sessions, err := c.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			state := "active"
			if s.Ended != nil {
				state = "ended"
			}
			fmt.Printf("%s\t%s\t%s\n", s.SessionID, s.Agent, state)
		}
		return nil
	}

	opts := session.Options{Agent: agentName}
	if transcript != "" {
		fs, err := session.NewFileStorage(cfg.TranscriptDir)
		if err != nil {
			return err
		}
		opts.Storage = fs
		opts.StorageKey = transcript
	}
	m := session.New(session.ClientInvoker(c), opts)
	m.Subscribe(session.Listener{
		Token: func(token string) { fmt.Print(token) },
		Tool: func(ev chat.ToolEvent) {
			fmt.Printf("\n🔧 %s %v\n", ev.Name, ev.Input)
		},
	})

	for _, msg := range m.Messages() {
		who := "assistant"
		if msg.User {
			who = "you"
		}
		fmt.Printf("%s: %s\n", who, msg.Payload)
	}
	fmt.Printf("Talking to %s. /clear starts over, /session shows the session id, /quit exits.\n", agentName)

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			fmt.Println()
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if id := m.SessionID(); id != "" {
				if err := c.EndSession(ctx, id); err != nil {
					log.Printf("⚠️ failed to end session %s: %v", id, err)
				}
			}
			m.Clear()
			fmt.Println("Context cleared")
			continue
		case "/session":
			fmt.Println(m.SessionID())
			continue
		}

		err := m.SendUserMessage(ctx, line)
		fmt.Println()
		if err != nil {
			var se *client.StatusError
			if errors.As(err, &se) && se.StatusCode == 404 {
				m.Clear()
				fmt.Println("The session expired. Send the message again to start a new one.")
				continue
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}
