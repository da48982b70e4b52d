// Package client invokes agents on the portal chat server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"portal-chat/internal/chat"
)

// ErrEmptyMessage is returned before any network call when the message is blank.
var ErrEmptyMessage = errors.New("message must not be empty")

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent server returned %d: %s", e.StatusCode, e.Message)
}

// StreamRequest starts a streamed turn. An empty SessionID or NewSession=true opens a new session.
type StreamRequest struct {
	UserMessage string
	SessionID   string
	NewSession  bool
	Agent       string
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. Every request carries a bearer token from ts.
func New(baseURL string, ts oauth2.TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    oauth2.NewClient(context.Background(), ts),
	}
}

// NewWithToken is New with a fixed token.
func NewWithToken(baseURL, token string) *Client {
	return New(baseURL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// Generate runs a single prompt without a session.
func (c *Client) Generate(ctx context.Context, prompt, agentName string) (chat.GenerateResponse, error) {
	var out chat.GenerateResponse
	if strings.TrimSpace(prompt) == "" {
		return out, ErrEmptyMessage
	}
	err := c.postJSON(ctx, "/v1/generate", chat.GenerateRequest{Prompt: prompt, Agent: agentName}, &out)
	return out, err
}

// Chat runs one turn and waits for the whole completion.
func (c *Client) Chat(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
	var out chat.ChatResponse
	if strings.TrimSpace(req.UserMessage) == "" {
		return out, ErrEmptyMessage
	}
	err := c.postJSON(ctx, "/v1/chat", req, &out)
	return out, err
}

// Stream starts a turn and returns its events as they arrive. The caller must Close the stream.
func (c *Client) Stream(ctx context.Context, req StreamRequest) (*EventStream, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, ErrEmptyMessage
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/chat/stream", chat.ChatRequest{
		UserMessage: req.UserMessage,
		SessionID:   req.SessionID,
		NewSession:  req.NewSession,
		Agent:       req.Agent,
	})
	if err != nil {
		return nil, err
	}
	return &EventStream{body: resp.Body, dec: chat.NewDecoder(resp.Body)}, nil
}

func (c *Client) Agents(ctx context.Context) ([]chat.AgentInfo, error) {
	var out []chat.AgentInfo
	err := c.getJSON(ctx, "/v1/agents", &out)
	return out, err
}

func (c *Client) Sessions(ctx context.Context) ([]chat.SessionInfo, error) {
	var out []chat.SessionInfo
	err := c.getJSON(ctx, "/v1/sessions", &out)
	return out, err
}

// EndSession closes a session on the server.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// do sends one request. There is no retry: a failed call is reported once.
func (c *Client) do(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body chat.ErrorResponse
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
