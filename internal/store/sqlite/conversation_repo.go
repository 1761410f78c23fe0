package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JeffZl/frontenduas/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `c.id, c.user_a, c.user_b, c.last_message_id, c.last_message_at, c.created_at`

// summarySelect reads the conversation, its denormalised last message, the
// id of the actually newest message and the viewer's unread count. The first
// placeholder is the viewer id.
const summarySelect = `
	SELECT ` + conversationColumns + `,
		m.id, m.sender_id, m.content, m.media, m.is_read, m.read_at, m.created_at,
		(SELECT lm.id FROM messages lm
			WHERE lm.conversation_id = c.id
			ORDER BY lm.created_at DESC, lm.id DESC LIMIT 1) AS latest_id,
		(SELECT COUNT(*) FROM messages um
			WHERE um.conversation_id = c.id AND um.sender_id <> ? AND um.is_read = 0) AS unread
	FROM conversations c`

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = ?
		JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = ?
		LIMIT 1
	`, userA, userB)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) CreateOrGet(ctx context.Context, c *domain.Conversation) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = domain.Now()
	}
	c.LastMessageAt = c.CreatedAt
	c.LastMessageID = nil
	a, b := domain.CanonicalPair(c.Participants[0], c.Participants[1])

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_a, user_b, last_message_id, last_message_at, created_at)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT (user_a, user_b) DO NOTHING
	`, c.ID, a, b, formatTime(c.LastMessageAt), formatTime(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		row := tx.QueryRowContext(ctx, `
			SELECT `+conversationColumns+` FROM conversations c WHERE c.user_a = ? AND c.user_b = ?
		`, a, b)
		existing, err := scanConversation(row)
		if err != nil {
			return false, fmt.Errorf("fetch existing conversation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit: %w", err)
		}
		*c = *existing
		return false, nil
	}

	for _, uid := range []string{a, b} {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (user_id, conversation_id, joined_at)
			VALUES (?, ?, ?)
		`, uid, c.ID, formatTime(c.CreatedAt)); err != nil {
			return false, fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	c.Participants = []string{a, b}
	return true, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, summarySelect+`
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE cp.user_id = ?
		ORDER BY c.last_message_at DESC, c.id DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	res := make([]*domain.ConversationSummary, 0)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) GetSummary(ctx context.Context, conversationID, viewerID string) (*domain.ConversationSummary, error) {
	row := r.db.QueryRowContext(ctx, summarySelect+`
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.id = ?
	`, viewerID, conversationID)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation summary: %w", err)
	}
	return s, nil
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID string, m *domain.Message) error {
	at := formatTime(m.CreatedAt)
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, last_message_at = ?
		WHERE id = ?
		  AND (last_message_at < ?
		       OR (last_message_at = ? AND (last_message_id IS NULL OR last_message_id < ?)))
	`, m.ID, at, conversationID, at, at, m.ID)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either a newer message already holds the pointer, or the
		// conversation is gone.
		if _, err := r.GetByID(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ConversationRepo) RepairLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, conversationID)
	latest, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, last_message_at = ? WHERE id = ?
	`, latest.ID, formatTime(latest.CreatedAt), conversationID); err != nil {
		return nil, fmt.Errorf("repair last message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return latest, nil
}

func scanConversation(s scanner) (*domain.Conversation, error) {
	var (
		c             domain.Conversation
		a, b          string
		lastID        sql.NullString
		lastAt, crtAt string
	)
	if err := s.Scan(&c.ID, &a, &b, &lastID, &lastAt, &crtAt); err != nil {
		return nil, err
	}
	return fillConversation(&c, a, b, lastID, lastAt, crtAt)
}

func fillConversation(c *domain.Conversation, a, b string, lastID sql.NullString, lastAt, crtAt string) (*domain.Conversation, error) {
	var err error
	c.Participants = []string{a, b}
	c.LastMessageID = stringPtr(lastID)
	if c.LastMessageAt, err = parseTime(lastAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(crtAt); err != nil {
		return nil, err
	}
	return c, nil
}

func scanSummary(s scanner) (*domain.ConversationSummary, error) {
	var (
		sum           domain.ConversationSummary
		a, b          string
		lastID        sql.NullString
		lastAt, crtAt string

		mID, mSender, mContent, mMedia sql.NullString
		mIsRead                        sql.NullInt64
		mReadAt, mCreated              sql.NullString
		latestID                       sql.NullString
	)
	if err := s.Scan(
		&sum.ID, &a, &b, &lastID, &lastAt, &crtAt,
		&mID, &mSender, &mContent, &mMedia, &mIsRead, &mReadAt, &mCreated,
		&latestID, &sum.UnreadCount,
	); err != nil {
		return nil, err
	}
	if _, err := fillConversation(&sum.Conversation, a, b, lastID, lastAt, crtAt); err != nil {
		return nil, err
	}
	sum.LatestMessageID = stringPtr(latestID)
	if mID.Valid {
		m := &domain.Message{
			ID:             mID.String,
			ConversationID: sum.ID,
			SenderID:       mSender.String,
			Content:        mContent.String,
		}
		if _, err := fillMessage(m, mMedia.String, int(mIsRead.Int64), mReadAt, mCreated.String); err != nil {
			return nil, err
		}
		sum.LastMessage = m
	}
	return &sum, nil
}
