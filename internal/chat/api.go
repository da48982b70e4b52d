package chat

// Request and response bodies of the agent server HTTP API.

type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Agent  string `json:"agent,omitempty"`
}

type GenerateResponse struct {
	Completion       string `json:"completion"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
	TotalTokens      int    `json:"totalTokens,omitempty"`
	Cached           bool   `json:"cached,omitempty"`
}

// ChatRequest starts one turn. An empty SessionID or NewSession=true opens a new session.
type ChatRequest struct {
	UserMessage string `json:"userMessage"`
	SessionID   string `json:"sessionId,omitempty"`
	NewSession  bool   `json:"newSession,omitempty"`
	Agent       string `json:"agent,omitempty"`
}

type ChatResponse struct {
	SessionID  string `json:"sessionId"`
	Completion string `json:"completion"`
}

type AgentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools,omitempty"`
}

type SessionInfo struct {
	SessionID    string `json:"sessionId"`
	Agent        string `json:"agent"`
	Created      int64  `json:"created"`
	LastActivity int64  `json:"lastActivity"`
	Ended        *int64 `json:"ended,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string `json:"message"`
}
