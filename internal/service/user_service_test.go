package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/service"
)

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewUserService(repo)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Handle == "dana_k" && u.Name == "Dana"
		})).Return(nil)

		u, err := svc.Register(ctx, service.UserCreateInput{Handle: "@Dana_K", Name: "Dana"})
		require.NoError(t, err)
		assert.Equal(t, "dana_k", u.Handle)
		repo.AssertExpectations(t)
	})

	t.Run("NameDefaultsToHandle", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewUserService(repo)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil)

		u, err := svc.Register(ctx, service.UserCreateInput{Handle: "erin"})
		require.NoError(t, err)
		assert.Equal(t, "erin", u.Name)
	})

	t.Run("BadHandle", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewUserService(repo)

		for _, h := range []string{"", "ab", "has space", "dash-ed"} {
			_, err := svc.Register(ctx, service.UserCreateInput{Handle: h})
			assert.ErrorIs(t, err, domain.ErrValidation, h)
		}
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Taken", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewUserService(repo)
		repo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)

		_, err := svc.Register(ctx, service.UserCreateInput{Handle: "alice"})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestUserService_GetByHandle(t *testing.T) {
	repo := new(MockUserRepo)
	svc := service.NewUserService(repo)
	repo.On("GetByHandle", mock.Anything, "bob").Return(bob, nil)
	repo.On("GetByHandle", mock.Anything, "ghost").Return(nil, domain.NotFound("user not found"))

	p, err := svc.GetByHandle(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, p.ID)
	assert.Equal(t, "Bob", p.Name)

	_, err = svc.GetByHandle(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
