package store

import "context"

// Driver is the database specific part of the store.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error)
	// ListChatSessions returns matches ordered by last activity, newest first.
	ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error)
	TouchChatSession(ctx context.Context, sessionID string, at int64) error
	// EndChatSession sets ended only if the session is still active.
	EndChatSession(ctx context.Context, sessionID string, at int64) error
}
