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

type conversationDoc struct {
	ID            string    `bson:"_id"`
	Participants  []string  `bson:"participants"`
	UserA         string    `bson:"user_a"`
	UserB         string    `bson:"user_b"`
	LastMessageID *string   `bson:"last_message_id"`
	LastMessageAt time.Time `bson:"last_message_at"`
	CreatedAt     time.Time `bson:"created_at"`
}

func (d *conversationDoc) toDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:            d.ID,
		Participants:  []string{d.UserA, d.UserB},
		LastMessageID: d.LastMessageID,
		LastMessageAt: d.LastMessageAt.UTC(),
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

type ConversationRepo struct {
	coll     *mongo.Collection
	messages *MessageRepo
}

func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		coll:     db.Collection(conversationsCollection),
		messages: NewMessageRepo(db),
	}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) findOne(ctx context.Context, filter bson.M) (*domain.Conversation, error) {
	var d conversationDoc
	err := r.coll.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return d.toDomain(), nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	return r.findOne(ctx, bson.M{"participants": bson.M{"$all": []string{userA, userB}}})
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

	_, err := r.coll.InsertOne(ctx, conversationDoc{
		ID:            c.ID,
		Participants:  []string{a, b},
		UserA:         a,
		UserB:         b,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		existing, err := r.findOne(ctx, bson.M{"user_a": a, "user_b": b})
		if err != nil {
			return false, fmt.Errorf("fetch existing conversation: %w", err)
		}
		*c = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert conversation: %w", err)
	}
	c.Participants = []string{a, b}
	return true, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	res := make([]*domain.ConversationSummary, 0, len(docs))
	for i := range docs {
		s, err := r.summarize(ctx, docs[i].toDomain(), userID)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r *ConversationRepo) GetSummary(ctx context.Context, conversationID, viewerID string) (*domain.ConversationSummary, error) {
	c, err := r.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return r.summarize(ctx, c, viewerID)
}

func (r *ConversationRepo) summarize(ctx context.Context, c *domain.Conversation, viewerID string) (*domain.ConversationSummary, error) {
	s := &domain.ConversationSummary{Conversation: *c}
	if c.LastMessageID != nil {
		m, err := r.messages.GetByID(ctx, *c.LastMessageID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.LastMessage = m
	}
	latest, err := r.messages.latest(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		s.LatestMessageID = &latest.ID
	}
	if s.UnreadCount, err = r.messages.unreadFor(ctx, c.ID, viewerID); err != nil {
		return nil, err
	}
	return s, nil
}

// advanceFilter matches the conversation only when m is newer than the
// current pointer under (created_at, id) ordering.
func advanceFilter(conversationID string, m *domain.Message, inclusive bool) bson.M {
	idCmp := "$lt"
	if inclusive {
		idCmp = "$lte"
	}
	return bson.M{
		"_id": conversationID,
		"$or": bson.A{
			bson.M{"last_message_at": bson.M{"$lt": m.CreatedAt}},
			bson.M{
				"last_message_at": m.CreatedAt,
				"$or": bson.A{
					bson.M{"last_message_id": nil},
					bson.M{"last_message_id": bson.M{idCmp: m.ID}},
				},
			},
		},
	}
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID string, m *domain.Message) error {
	res, err := r.coll.UpdateOne(ctx, advanceFilter(conversationID, m, false),
		bson.M{"$set": bson.M{"last_message_id": m.ID, "last_message_at": m.CreatedAt}})
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ConversationRepo) RepairLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	latest, err := r.messages.latest(ctx, conversationID)
	if err != nil || latest == nil {
		return nil, err
	}
	if _, err := r.coll.UpdateOne(ctx, advanceFilter(conversationID, latest, true),
		bson.M{"$set": bson.M{"last_message_id": latest.ID, "last_message_at": latest.CreatedAt}}); err != nil {
		return nil, fmt.Errorf("repair last message: %w", err)
	}
	return latest, nil
}
