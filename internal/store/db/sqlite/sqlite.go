package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// sqlite driver.
	_ "modernc.org/sqlite"

	"portal-chat/internal/store"
)

type DB struct {
	db *sql.DB
}

func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn required")
	}
	if err := ensureDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db with dsn %s: %w", dsn, err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	return &DB{db: db}, nil
}

// ensureDir creates the parent directory of a plain file DSN.
func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path, _, _ := strings.Cut(dsn, "?")
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create db dir %s: %w", dir, err)
	}
	return nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id    TEXT    NOT NULL PRIMARY KEY,
			principal     TEXT    NOT NULL,
			agent         TEXT    NOT NULL,
			created       INTEGER NOT NULL,
			last_activity INTEGER NOT NULL,
			ended         INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_principal ON chat_sessions(principal, last_activity)`,
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	stmt := `INSERT INTO chat_sessions (session_id, principal, agent, created, last_activity)
	         VALUES (?, ?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.SessionID, create.Principal, create.Agent, create.Created, create.LastActivity,
	); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.SessionID; v != nil {
		where, args = append(where, "session_id = ?"), append(args, *v)
	}
	if v := find.Principal; v != nil {
		where, args = append(where, "principal = ?"), append(args, *v)
	}
	if v := find.Agent; v != nil {
		where, args = append(where, "agent = ?"), append(args, *v)
	}
	if v := find.IdleBefore; v != nil {
		where, args = append(where, "last_activity < ?"), append(args, *v)
	}
	if find.ActiveOnly {
		where = append(where, "ended IS NULL")
	}
	query := fmt.Sprintf(
		`SELECT session_id, principal, agent, created, last_activity, ended
		 FROM chat_sessions WHERE %s ORDER BY last_activity DESC, created DESC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatSession
	for rows.Next() {
		s := &store.ChatSession{}
		var ended sql.NullInt64
		if err := rows.Scan(&s.SessionID, &s.Principal, &s.Agent, &s.Created, &s.LastActivity, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			s.Ended = &ended.Int64
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (d *DB) TouchChatSession(ctx context.Context, sessionID string, at int64) error {
	_, err := d.db.ExecContext(ctx, `UPDATE chat_sessions SET last_activity = ? WHERE session_id = ?`, at, sessionID)
	return err
}

func (d *DB) EndChatSession(ctx context.Context, sessionID string, at int64) error {
	_, err := d.db.ExecContext(ctx, `UPDATE chat_sessions SET ended = ? WHERE session_id = ? AND ended IS NULL`, at, sessionID)
	return err
}
