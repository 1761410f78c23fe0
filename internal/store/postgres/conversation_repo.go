package postgres

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

// $1 is always the viewer id.
const summarySelect = `
	SELECT ` + conversationColumns + `,
		m.id, m.sender_id, m.content, m.media, m.is_read, m.read_at, m.created_at,
		(SELECT lm.id FROM messages lm
			WHERE lm.conversation_id = c.id
			ORDER BY lm.created_at DESC, lm.id DESC LIMIT 1) AS latest_id,
		(SELECT COUNT(*) FROM messages um
			WHERE um.conversation_id = c.id AND um.sender_id <> $1 AND um.is_read = FALSE) AS unread
	FROM conversations c`

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
		JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
		LIMIT 1
	`, userA, userB))
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

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (id, user_a, user_b, last_message_id, last_message_at, created_at)
		VALUES ($1, $2, $3, NULL, $4, $4)
		ON CONFLICT ON CONSTRAINT conversations_pair_key DO NOTHING
		RETURNING id
	`, c.ID, a, b, c.CreatedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race (or the pair already existed): the winner's row is
		// committed and visible to this statement.
		existing, err := scanConversation(tx.QueryRowContext(ctx, `
			SELECT `+conversationColumns+` FROM conversations c WHERE c.user_a = $1 AND c.user_b = $2
		`, a, b))
		if err != nil {
			return false, fmt.Errorf("fetch existing conversation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit: %w", err)
		}
		*c = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert conversation: %w", err)
	}

	for _, uid := range []string{a, b} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (user_id, conversation_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, uid, c.ID, c.CreatedAt); err != nil {
			return false, fmt.Errorf("insert participant %s: %w", uid, err)
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
		WHERE cp.user_id = $1
		ORDER BY c.last_message_at DESC, c.id DESC
	`, userID)
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
	s, err := scanSummary(r.db.QueryRowContext(ctx, summarySelect+`
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.id = $2
	`, viewerID, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation summary: %w", err)
	}
	return s, nil
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID string, m *domain.Message) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = $1, last_message_at = $2
		WHERE id = $3
		  AND (last_message_at < $2
		       OR (last_message_at = $2 AND (last_message_id IS NULL OR last_message_id < $1)))
	`, m.ID, m.CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ConversationRepo) RepairLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	latest, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = $1, last_message_at = $2
		WHERE id = $3
		  AND (last_message_at < $2
		       OR (last_message_at = $2 AND (last_message_id IS NULL OR last_message_id <= $1)))
	`, latest.ID, latest.CreatedAt, conversationID); err != nil {
		return nil, fmt.Errorf("repair last message: %w", err)
	}
	return latest, nil
}

func scanConversation(s scanner) (*domain.Conversation, error) {
	var (
		c      domain.Conversation
		a, b   string
		lastID sql.NullString
	)
	if err := s.Scan(&c.ID, &a, &b, &lastID, &c.LastMessageAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Participants = []string{a, b}
	c.LastMessageID = stringPtr(lastID)
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func scanSummary(s scanner) (*domain.ConversationSummary, error) {
	var (
		sum    domain.ConversationSummary
		a, b   string
		lastID sql.NullString

		mID, mSender, mContent sql.NullString
		mMedia                 []byte
		mIsRead                sql.NullBool
		mReadAt, mCreated      sql.NullTime
		latestID               sql.NullString
	)
	if err := s.Scan(
		&sum.ID, &a, &b, &lastID, &sum.LastMessageAt, &sum.CreatedAt,
		&mID, &mSender, &mContent, &mMedia, &mIsRead, &mReadAt, &mCreated,
		&latestID, &sum.UnreadCount,
	); err != nil {
		return nil, err
	}
	sum.Participants = []string{a, b}
	sum.LastMessageID = stringPtr(lastID)
	sum.LastMessageAt = sum.LastMessageAt.UTC()
	sum.CreatedAt = sum.CreatedAt.UTC()
	sum.LatestMessageID = stringPtr(latestID)
	if mID.Valid {
		m := &domain.Message{
			ID:             mID.String,
			ConversationID: sum.ID,
			SenderID:       mSender.String,
			Content:        mContent.String,
			IsRead:         mIsRead.Bool,
			ReadAt:         timePtr(mReadAt),
			CreatedAt:      mCreated.Time.UTC(),
		}
		if err := decodeMedia(m, mMedia); err != nil {
			return nil, err
		}
		sum.LastMessage = m
	}
	return &sum, nil
}
