package sqlite_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeffZl/frontenduas/internal/store/sqlite"
	"github.com/JeffZl/frontenduas/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Repos {
		db, err := sqlite.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, sqlite.Migrate(db))

		return storetest.Repos{
			Users:         sqlite.NewUserRepo(db),
			Conversations: sqlite.NewConversationRepo(db),
			Messages:      sqlite.NewMessageRepo(db),
		}
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, sqlite.Migrate(db))
	require.NoError(t, sqlite.Migrate(db))
}
