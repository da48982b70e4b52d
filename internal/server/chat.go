package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"portal-chat/internal/agent"
	"portal-chat/internal/auth"
	"portal-chat/internal/chat"
	"portal-chat/internal/storage"
	"portal-chat/internal/store"
	"portal-chat/internal/transform"
)

const ndjsonContentType = "application/x-ndjson"

// turn is one prepared agent run bound to its session.
type turn struct {
	principal auth.Principal
	session   *store.ChatSession
	message   string
	run       *agent.Run
	ctx       context.Context
}

func (s *Server) prepareTurn(c *echo.Context) (*turn, error) {
	p, err := s.requireAuth(c)
	if err != nil {
		return nil, err
	}
	var req chat.ChatRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "userMessage required")
	}
	ctx := c.Request().Context()
	cs, err := s.resolveSession(ctx, p, req)
	if err != nil {
		return nil, err
	}
	a, err := s.lookupAgent(cs.Agent)
	if err != nil {
		return nil, err
	}
	ctx = agent.WithTurn(ctx, agent.Turn{SessionID: cs.SessionID, Principal: p.Name})
	return &turn{
		principal: p,
		session:   cs,
		message:   req.UserMessage,
		run:       a.Start(s.memory.Get(cs.SessionID), req.UserMessage),
		ctx:       ctx,
	}, nil
}

// chat runs a turn to completion and answers with the whole completion.
func (s *Server) chat(c *echo.Context) error {
	t, err := s.prepareTurn(c)
	if err != nil {
		return err
	}
	for {
		_, err := t.run.Next(t.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("❌ chat turn in session %s failed: %v", t.session.SessionID, err)
			return echo.NewHTTPError(http.StatusBadGateway, "agent run failed")
		}
	}
	s.finishTurn(t, false)
	return c.JSON(http.StatusOK, chat.ChatResponse{SessionID: t.session.SessionID, Completion: t.run.Answer()})
}

// chatStream writes the turn as newline-delimited chat events, flushing after each one.
func (s *Server) chatStream(c *echo.Context) error {
	t, err := s.prepareTurn(c)
	if err != nil {
		return err
	}

	rw := c.Response()
	rw.Header().Set("Content-Type", ndjsonContentType)
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	flusher, _ := rw.(http.Flusher)

	enc := chat.NewEncoder(rw)
	events := transform.New(t.session.SessionID, t.run)
	for {
		ev, err := events.Next(t.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("❌ stream turn in session %s failed: %v", t.session.SessionID, err)
			_ = enc.EncodeError("agent run failed")
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		}
		if err := enc.Encode(ev); err != nil {
			// client went away
			log.Printf("⚠️ stream write for session %s failed: %v", t.session.SessionID, err)
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	s.finishTurn(t, true)
	return nil
}

// finishTurn updates memory, activity and the turn log after a successful run.
func (s *Server) finishTurn(t *turn, streamed bool) {
	answer := t.run.Answer()
	s.memory.AppendTurn(t.session.SessionID, t.message, answer)

	// the request context may already be done for streamed turns
	ctx := context.WithoutCancel(t.ctx)
	if err := s.store.TouchSession(ctx, t.session.SessionID, s.now()); err != nil {
		log.Printf("⚠️ touch session %s: %v", t.session.SessionID, err)
	}
	if s.recorder == nil {
		return
	}
	ev := storage.Event{
		Timestamp:         s.now().UTC(),
		Principal:         t.principal.Name,
		SessionID:         t.session.SessionID,
		Agent:             t.session.Agent,
		UserMessage:       t.message,
		AssistantResponse: answer,
		Tools:             t.run.ToolsUsed(),
		Tokens:            t.run.Usage().TotalTokens,
		Streamed:          streamed,
	}
	if err := s.recorder.AppendInteraction(ev); err != nil {
		log.Printf("⚠️ record turn: %v", err)
	}
}
