package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/JeffZl/frontenduas/internal/domain"
)

type userDoc struct {
	ID        string    `bson:"_id"`
	Handle    string    `bson:"handle"`
	Name      string    `bson:"name"`
	AvatarURL *string   `bson:"avatar_url,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{ID: d.ID, Handle: d.Handle, Name: d.Name, AvatarURL: d.AvatarURL, CreatedAt: d.CreatedAt.UTC()}
}

type UserRepo struct {
	coll *mongo.Collection
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{coll: db.Collection(usersCollection)}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	u.Handle = domain.NormalizeHandle(u.Handle)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = domain.Now()
	}
	_, err := r.coll.InsertOne(ctx, userDoc{
		ID: u.ID, Handle: u.Handle, Name: u.Name, AvatarURL: u.AvatarURL, CreatedAt: u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert user %s: %w", u.Handle, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepo) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"handle": domain.NormalizeHandle(handle)})
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var d userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return d.toDomain(), nil
}

func (r *UserRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	var res []*domain.User
	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		res = append(res, d.toDomain())
	}
	return res, cur.Err()
}
