package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"portal-chat/internal/auth"
	"portal-chat/internal/cache"
	"portal-chat/internal/chat"
	"portal-chat/internal/store"
)

func errSessionNotFound() error {
	return echo.NewHTTPError(http.StatusNotFound, "session not found")
}

func sessionKey(id string) string { return cache.Key("session", id) }

// resolveSession opens a new session or loads an existing one owned by the caller.
func (s *Server) resolveSession(ctx context.Context, p auth.Principal, req chat.ChatRequest) (*store.ChatSession, error) {
	if req.NewSession || req.SessionID == "" {
		a, err := s.lookupAgent(req.Agent)
		if err != nil {
			return nil, err
		}
		cs, err := s.store.CreateSession(ctx, &store.ChatSession{
			SessionID: uuid.NewString(),
			Principal: p.Name,
			Agent:     a.Name,
			Created:   s.now().Unix(),
		})
		if err != nil {
			log.Printf("❌ create session: %v", err)
			return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
		}
		log.Printf("🆕 session %s for %s with %s", cs.SessionID, p.Name, cs.Agent)
		return cs, nil
	}

	cs, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if cs == nil || cs.Principal != p.Name || !cs.Active() {
		return nil, errSessionNotFound()
	}
	return cs, nil
}

// loadSession reads through the cache. Only identity, ownership and end state are relied on.
func (s *Server) loadSession(ctx context.Context, id string) (*store.ChatSession, error) {
	key := sessionKey(id)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var cs store.ChatSession
		if err := json.Unmarshal(raw, &cs); err == nil {
			return &cs, nil
		}
	}
	cs, err := s.store.GetSession(ctx, id)
	if err != nil {
		log.Printf("❌ load session %s: %v", id, err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}
	if cs != nil {
		if raw, err := json.Marshal(cs); err == nil {
			s.cache.Set(ctx, key, raw)
		}
	}
	return cs, nil
}

func (s *Server) listSessions(c *echo.Context) error {
	p, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	find := &store.FindChatSession{Principal: &p.Name, ActiveOnly: c.QueryParam("active") == "true"}
	if a := c.QueryParam("agent"); a != "" {
		find.Agent = &a
	}
	list, err := s.store.ListSessions(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]chat.SessionInfo, 0, len(list))
	for _, cs := range list {
		out = append(out, chat.SessionInfo{
			SessionID:    cs.SessionID,
			Agent:        cs.Agent,
			Created:      cs.Created,
			LastActivity: cs.LastActivity,
			Ended:        cs.Ended,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deleteSession(c *echo.Context) error {
	p, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	ctx := c.Request().Context()
	cs, err := s.store.GetSession(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if cs == nil || cs.Principal != p.Name {
		return errSessionNotFound()
	}
	if err := s.store.EndSession(ctx, id, s.now()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.forget(ctx, id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) forget(ctx context.Context, id string) {
	s.cache.Delete(ctx, sessionKey(id))
	s.memory.Reset(id)
}

// ReapIdleSessions ends sessions without activity for longer than idle.
func (s *Server) ReapIdleSessions(ctx context.Context, idle time.Duration) (int, error) {
	now := s.now()
	ended, err := s.store.EndIdleSessions(ctx, now.Add(-idle), now)
	for _, id := range ended {
		s.forget(ctx, id)
	}
	if len(ended) > 0 {
		log.Printf("🧹 ended %d idle sessions", len(ended))
	}
	return len(ended), err
}
