package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT         PRIMARY KEY,
			handle     VARCHAR(50)  UNIQUE NOT NULL,
			name       VARCHAR(100) NOT NULL DEFAULT '',
			avatar_url TEXT,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT        PRIMARY KEY,
			user_a          TEXT        NOT NULL REFERENCES users(id),
			user_b          TEXT        NOT NULL REFERENCES users(id),
			last_message_id TEXT,
			last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT conversations_pair_key UNIQUE (user_a, user_b),
			CONSTRAINT conversations_pair_order CHECK (user_a < user_b)
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			user_id         TEXT        NOT NULL REFERENCES users(id),
			conversation_id TEXT        NOT NULL REFERENCES conversations(id),
			joined_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, conversation_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT        PRIMARY KEY,
			conversation_id TEXT        NOT NULL REFERENCES conversations(id),
			sender_id       TEXT        NOT NULL REFERENCES users(id),
			content         TEXT        NOT NULL DEFAULT '',
			media           JSONB       NOT NULL DEFAULT '[]'::jsonb,
			is_read         BOOLEAN     NOT NULL DEFAULT FALSE,
			read_at         TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message_at ON conversations(last_message_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id) WHERE is_read = FALSE`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
