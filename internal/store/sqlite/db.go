package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so that lexical order
// equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Open opens a SQLite database with the given DSN. The pool is limited to a
// single connection: SQLite serialises writers anyway, and ":memory:"
// databases are per-connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent CREATE TABLE / CREATE INDEX statements.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			handle     TEXT UNIQUE NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			avatar_url TEXT DEFAULT NULL,
			created_at TEXT NOT NULL
		);`,
		// user_a < user_b is the canonical pair; the unique constraint is what
		// makes get-or-create safe under concurrency.
		`CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			user_a          TEXT NOT NULL,
			user_b          TEXT NOT NULL,
			last_message_id TEXT DEFAULT NULL,
			last_message_at TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			UNIQUE (user_a, user_b),
			CHECK (user_a < user_b),
			FOREIGN KEY (user_a) REFERENCES users(id),
			FOREIGN KEY (user_b) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
			user_id         TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			joined_at       TEXT NOT NULL,
			PRIMARY KEY (user_id, conversation_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			media           TEXT NOT NULL DEFAULT '[]',
			is_read         INTEGER NOT NULL DEFAULT 0,
			read_at         TEXT DEFAULT NULL,
			created_at      TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message_at ON conversations(last_message_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, is_read);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
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

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
