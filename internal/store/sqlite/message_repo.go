package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JeffZl/frontenduas/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, sender_id, content, media, is_read, read_at, created_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = domain.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = domain.Now()
	}
	if m.Media == nil {
		m.Media = []domain.Media{}
	}
	media, err := json.Marshal(m.Media)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, media, is_read, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, NULL, ?)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, string(media), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.IsRead = false
	m.ReadAt = nil
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	res := make([]*domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET is_read = 1, read_at = ?
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0
	`, formatTime(at), conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, messageID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, read_at = ?
		WHERE id = ? AND is_read = 0
	`, formatTime(at), messageID)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func scanMessage(s scanner) (*domain.Message, error) {
	var (
		m       domain.Message
		media   string
		isRead  int
		readAt  sql.NullString
		created string
	)
	if err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &media, &isRead, &readAt, &created); err != nil {
		return nil, err
	}
	return fillMessage(&m, media, isRead, readAt, created)
}

func fillMessage(m *domain.Message, media string, isRead int, readAt sql.NullString, created string) (*domain.Message, error) {
	m.Media = []domain.Media{}
	if media != "" {
		if err := json.Unmarshal([]byte(media), &m.Media); err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
	}
	m.IsRead = isRead != 0
	var err error
	if m.ReadAt, err = parseNullTime(readAt); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return m, nil
}
