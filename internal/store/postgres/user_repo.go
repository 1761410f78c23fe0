package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JeffZl/frontenduas/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, handle, name, avatar_url, created_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	u.Handle = domain.NormalizeHandle(u.Handle)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = domain.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, handle, name, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Handle, u.Name, nullString(u.AvatarURL), u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert user %s: %w", u.Handle, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE handle = $1`, domain.NormalizeHandle(handle)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by handle: %w", err)
	}
	return u, nil
}

func (r *UserRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var res []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*domain.User, error) {
	var (
		u      domain.User
		avatar sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Handle, &u.Name, &avatar, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.AvatarURL = stringPtr(avatar)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
