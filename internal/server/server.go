// Package server is the agent chat HTTP API.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"portal-chat/internal/agent"
	"portal-chat/internal/auth"
	"portal-chat/internal/cache"
	"portal-chat/internal/chat"
	"portal-chat/internal/history"
	"portal-chat/internal/storage"
	"portal-chat/internal/store"
)

// Authenticator resolves bearer tokens.
type Authenticator interface {
	Authenticate(token string) (auth.Principal, bool)
}

type Options struct {
	Agents       map[string]*agent.Agent
	DefaultAgent string
	Store        *store.Store
	Cache        *cache.Cache
	Auth         Authenticator
	Memory       *history.Manager
	// Recorder is optional.
	Recorder storage.Recorder
}

type Server struct {
	agents       map[string]*agent.Agent
	defaultAgent string
	store        *store.Store
	cache        *cache.Cache
	auth         Authenticator
	memory       *history.Manager
	recorder     storage.Recorder
	now          func() time.Time

	echo *echo.Echo
}

func New(opts Options) *Server {
	s := &Server{
		agents:       opts.Agents,
		defaultAgent: opts.DefaultAgent,
		store:        opts.Store,
		cache:        opts.Cache,
		auth:         opts.Auth,
		memory:       opts.Memory,
		recorder:     opts.Recorder,
		now:          time.Now,
		echo:         echo.New(),
	}
	if s.memory == nil {
		s.memory = history.NewManager(0)
	}
	if s.cache == nil {
		s.cache = cache.New(cache.NewMemory(), cache.DefaultReadTimeout, 10*time.Minute)
	}
	s.registerRoutes(s.echo)
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/healthz", s.healthz)

	g := e.Group("/v1")
	g.GET("/agents", s.listAgents)
	g.POST("/generate", s.generate)
	g.POST("/chat", s.chat)
	g.POST("/agents/chat", s.chat)
	g.POST("/chat/stream", s.chatStream)
	g.GET("/sessions", s.listSessions)
	g.DELETE("/sessions/:id", s.deleteSession)
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.echo }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 Agent server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Println("🛑 Agent server stopped")
		return nil
	}
}

func (s *Server) healthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireAuth(c *echo.Context) (auth.Principal, error) {
	header := c.Request().Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	p, ok := s.auth.Authenticate(strings.TrimSpace(token))
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return p, nil
}

func (s *Server) listAgents(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	out := make([]chat.AgentInfo, 0, len(s.agents))
	for _, name := range s.agentNames() {
		a := s.agents[name]
		out = append(out, chat.AgentInfo{Name: a.Name, Description: a.Description, Tools: a.Definition.Tools})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) agentNames() []string {
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookupAgent resolves an agent name; empty means the default agent.
func (s *Server) lookupAgent(name string) (*agent.Agent, error) {
	if name == "" {
		name = s.defaultAgent
	}
	a, ok := s.agents[name]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "agent not found: "+name)
	}
	return a, nil
}
