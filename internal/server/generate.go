package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"portal-chat/internal/cache"
	"portal-chat/internal/chat"
)

func (s *Server) generate(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	var req chat.GenerateRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt required")
	}
	a, err := s.lookupAgent(req.Agent)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	key := cache.Key("generate", a.Name, req.Prompt)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached chat.GenerateResponse
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.Cached = true
			return c.JSON(http.StatusOK, cached)
		}
	}

	resp, err := a.Generate(ctx, req.Prompt)
	if err != nil {
		log.Printf("❌ generate with %s failed: %v", a.Name, err)
		return echo.NewHTTPError(http.StatusBadGateway, "generation failed")
	}
	out := chat.GenerateResponse{
		Completion:       resp.Content,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	if raw, err := json.Marshal(out); err == nil {
		s.cache.Set(ctx, key, raw)
	}
	return c.JSON(http.StatusOK, out)
}
