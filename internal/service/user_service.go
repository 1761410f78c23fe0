package service

import (
	"context"
	"regexp"

	"github.com/JeffZl/frontenduas/internal/domain"
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// UserService exposes the local user directory.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) GetByHandle(ctx context.Context, handle string) (*ParticipantResponse, error) {
	u, err := s.users.GetByHandle(ctx, domain.NormalizeHandle(handle))
	if err != nil {
		return nil, err
	}
	p := toParticipant(u)
	return &p, nil
}

type UserCreateInput struct {
	Handle    string
	Name      string
	AvatarURL *string
}

// Register adds a user to the directory. Accounts are owned by the identity
// service; this exists for local setups and fixtures.
func (s *UserService) Register(ctx context.Context, in UserCreateInput) (*domain.User, error) {
	handle := domain.NormalizeHandle(in.Handle)
	if !handlePattern.MatchString(handle) {
		return nil, domain.Validation("handle must be 3-30 characters of a-z, 0-9 or _")
	}
	name := in.Name
	if name == "" {
		name = handle
	}
	u := &domain.User{Handle: handle, Name: name, AvatarURL: in.AvatarURL}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
