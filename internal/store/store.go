// Package store selects and opens the configured persistence driver.
package store

import (
	"context"
	"fmt"

	"github.com/JeffZl/frontenduas/internal/config"
	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/store/mongodb"
	"github.com/JeffZl/frontenduas/internal/store/postgres"
	"github.com/JeffZl/frontenduas/internal/store/sqlite"
)

// Store bundles the repositories of one driver.
type Store struct {
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository

	closeFn func() error
}

func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Open connects to the database named by cfg.DBDriver and runs migrations.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)

	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return &Store{
			Users:         postgres.NewUserRepo(db),
			Conversations: postgres.NewConversationRepo(db),
			Messages:      postgres.NewMessageRepo(db),
			closeFn:       db.Close,
		}, nil

	case "mongo":
		db, err := mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := mongodb.Migrate(ctx, db); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, err
		}
		return &Store{
			Users:         mongodb.NewUserRepo(db),
			Conversations: mongodb.NewConversationRepo(db),
			Messages:      mongodb.NewMessageRepo(db),
			closeFn:       func() error { return db.Client().Disconnect(context.Background()) },
		}, nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

// OpenSQLite opens and migrates a SQLite database. ":memory:" is accepted
// and is what the tests use.
func OpenSQLite(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		Users:         sqlite.NewUserRepo(db),
		Conversations: sqlite.NewConversationRepo(db),
		Messages:      sqlite.NewMessageRepo(db),
		closeFn:       db.Close,
	}, nil
}
