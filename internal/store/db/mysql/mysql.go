package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"portal-chat/internal/store"
)

type DB struct {
	db *sql.DB
}

func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn required")
	}
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return &DB{db: sql.OpenDB(connector)}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Migrate(ctx context.Context) error {
	stmt := "CREATE TABLE IF NOT EXISTS `chat_sessions` (" +
		"`session_id` VARCHAR(64) NOT NULL PRIMARY KEY," +
		"`principal` VARCHAR(256) NOT NULL," +
		"`agent` VARCHAR(256) NOT NULL," +
		"`created` BIGINT NOT NULL," +
		"`last_activity` BIGINT NOT NULL," +
		"`ended` BIGINT NULL," +
		"INDEX `idx_chat_sessions_principal` (`principal`, `last_activity`))"
	_, err := d.db.ExecContext(ctx, stmt)
	return err
}

func (d *DB) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	stmt := "INSERT INTO `chat_sessions` (`session_id`, `principal`, `agent`, `created`, `last_activity`) VALUES (?, ?, ?, ?, ?)"
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
		where, args = append(where, "`session_id` = ?"), append(args, *v)
	}
	if v := find.Principal; v != nil {
		where, args = append(where, "`principal` = ?"), append(args, *v)
	}
	if v := find.Agent; v != nil {
		where, args = append(where, "`agent` = ?"), append(args, *v)
	}
	if v := find.IdleBefore; v != nil {
		where, args = append(where, "`last_activity` < ?"), append(args, *v)
	}
	if find.ActiveOnly {
		where = append(where, "`ended` IS NULL")
	}
	query := "SELECT `session_id`, `principal`, `agent`, `created`, `last_activity`, `ended` FROM `chat_sessions` WHERE " +
		strings.Join(where, " AND ") + " ORDER BY `last_activity` DESC, `created` DESC"
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
	_, err := d.db.ExecContext(ctx, "UPDATE `chat_sessions` SET `last_activity` = ? WHERE `session_id` = ?", at, sessionID)
	return err
}

func (d *DB) EndChatSession(ctx context.Context, sessionID string, at int64) error {
	_, err := d.db.ExecContext(ctx, "UPDATE `chat_sessions` SET `ended` = ? WHERE `session_id` = ? AND `ended` IS NULL", at, sessionID)
	return err
}
