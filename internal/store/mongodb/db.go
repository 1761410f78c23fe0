package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// Open connects to MongoDB and verifies the connection.
func Open(ctx context.Context, uri, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(database), nil
}

// Migrate creates the indexes every repository relies on. The unique index
// on the canonical pair is what makes CreateOrGet race-free.
func Migrate(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "handle", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("handle_unique"),
			},
		},
		conversationsCollection: {
			{
				Keys:    bson.D{{Key: "user_a", Value: 1}, {Key: "user_b", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("pair_unique"),
			},
			{
				Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
				Options: options.Index().SetName("participants_activity_idx"),
			},
		},
		messagesCollection: {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
				Options: options.Index().SetName("conversation_created_idx"),
			},
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "is_read", Value: 1}},
				Options: options.Index().SetName("conversation_unread_idx"),
			},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
