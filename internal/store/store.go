// Package store persists chat sessions.
package store

import (
	"context"
	"fmt"
	"time"
)

type Store struct {
	driver Driver
	now    func() time.Time
}

func New(driver Driver) *Store {
	return &Store{driver: driver, now: time.Now}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.driver.Close() }

// CreateSession inserts a session; zero timestamps default to now.
func (s *Store) CreateSession(ctx context.Context, create *ChatSession) (*ChatSession, error) {
	if create.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	now := s.now().Unix()
	if create.Created == 0 {
		create.Created = now
	}
	if create.LastActivity == 0 {
		create.LastActivity = create.Created
	}
	return s.driver.CreateChatSession(ctx, create)
}

func (s *Store) ListSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error) {
	if find == nil {
		find = &FindChatSession{}
	}
	return s.driver.ListChatSessions(ctx, find)
}

// GetSession returns nil, nil when the session does not exist.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	list, err := s.driver.ListChatSessions(ctx, &FindChatSession{SessionID: &sessionID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	return s.driver.TouchChatSession(ctx, sessionID, at.Unix())
}

// EndSession marks the session ended. Ending an ended session keeps the first timestamp.
func (s *Store) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	return s.driver.EndChatSession(ctx, sessionID, at.Unix())
}

// EndIdleSessions ends every active session idle since before and returns their ids.
func (s *Store) EndIdleSessions(ctx context.Context, before, at time.Time) ([]string, error) {
	cutoff := before.Unix()
	idle, err := s.driver.ListChatSessions(ctx, &FindChatSession{ActiveOnly: true, IdleBefore: &cutoff})
	if err != nil {
		return nil, err
	}
	ended := make([]string, 0, len(idle))
	for _, cs := range idle {
		if err := s.driver.EndChatSession(ctx, cs.SessionID, at.Unix()); err != nil {
			return ended, fmt.Errorf("end session %s: %w", cs.SessionID, err)
		}
		ended = append(ended, cs.SessionID)
	}
	return ended, nil
}
