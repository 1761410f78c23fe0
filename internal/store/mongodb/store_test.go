package mongodb_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeffZl/frontenduas/internal/store/mongodb"
	"github.com/JeffZl/frontenduas/internal/store/storetest"
)

// Runs against TEST_MONGO_URI; the test database is dropped between cases.
func TestConformance(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) storetest.Repos {
		ctx := context.Background()
		db, err := mongodb.Open(ctx, uri, "dm_test")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Client().Disconnect(context.Background()) })

		require.NoError(t, db.Drop(ctx))
		require.NoError(t, mongodb.Migrate(ctx, db))

		return storetest.Repos{
			Users:         mongodb.NewUserRepo(db),
			Conversations: mongodb.NewConversationRepo(db),
			Messages:      mongodb.NewMessageRepo(db),
		}
	})
}
