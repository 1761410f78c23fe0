package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JeffZl/frontenduas/internal/domain"
)

type messageDoc struct {
	ID             string         `bson:"_id"`
	ConversationID string         `bson:"conversation_id"`
	SenderID       string         `bson:"sender_id"`
	Content        string         `bson:"content"`
	Media          []domain.Media `bson:"media"`
	IsRead         bool           `bson:"is_read"`
	ReadAt         *time.Time     `bson:"read_at,omitempty"`
	CreatedAt      time.Time      `bson:"created_at"`
}

func (d *messageDoc) toDomain() *domain.Message {
	m := &domain.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		Media:          d.Media,
		IsRead:         d.IsRead,
		CreatedAt:      d.CreatedAt.UTC(),
	}
	if m.Media == nil {
		m.Media = []domain.Media{}
	}
	if d.ReadAt != nil {
		t := d.ReadAt.UTC()
		m.ReadAt = &t
	}
	return m
}

// newestFirst orders messages by (created_at, _id) descending.
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(messagesCollection)}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

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
	m.IsRead = false
	m.ReadAt = nil
	if _, err := r.coll.InsertOne(ctx, messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Media:          m.Media,
		CreatedAt:      m.CreatedAt,
	}); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var d messageDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return d.toDomain(), nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cur.Close(ctx)

	res := make([]*domain.Message, 0)
	for cur.Next(ctx) {
		var d messageDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		res = append(res, d.toDomain())
	}
	return res, cur.Err()
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "sender_id": bson.M{"$ne": readerID}, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, messageID string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": messageID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MessageRepo) latest(ctx context.Context, conversationID string) (*domain.Message, error) {
	var d messageDoc
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}, options.FindOne().SetSort(newestFirst)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return d.toDomain(), nil
}

func (r *MessageRepo) unreadFor(ctx context.Context, conversationID, viewerID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": viewerID},
		"is_read":         false,
	})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(n), nil
}
