package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeffZl/frontenduas/internal/domain"
)

func TestConversationValidate(t *testing.T) {
	tests := []struct {
		name         string
		participants []string
		wantErr      bool
	}{
		{"two distinct", []string{"a", "b"}, false},
		{"one", []string{"a"}, true},
		{"three", []string{"a", "b", "c"}, true},
		{"same user twice", []string{"a", "a"}, true},
		{"empty id", []string{"a", ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &domain.Conversation{Participants: tt.participants}
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConversationOther(t *testing.T) {
	c := &domain.Conversation{Participants: []string{"alice", "bob"}}
	assert.Equal(t, "bob", c.Other("alice"))
	assert.Equal(t, "alice", c.Other("bob"))
	assert.True(t, c.HasParticipant("alice"))
	assert.False(t, c.HasParticipant("carol"))
}

func TestCanonicalPair(t *testing.T) {
	a, b := domain.CanonicalPair("z", "a")
	assert.Equal(t, "a", a)
	assert.Equal(t, "z", b)
	a2, b2 := domain.CanonicalPair("a", "z")
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)
}

func TestMessageValidate(t *testing.T) {
	t.Run("EmptyContentNoMedia", func(t *testing.T) {
		m := &domain.Message{}
		assert.ErrorIs(t, m.Validate(0), domain.ErrValidation)
	})
	t.Run("WhitespaceIsContent", func(t *testing.T) {
		m := &domain.Message{Content: "   "}
		assert.NoError(t, m.Validate(0))
	})
	t.Run("MediaOnly", func(t *testing.T) {
		m := &domain.Message{Media: []domain.Media{{URL: "https://cdn/x.png", Kind: domain.MediaImage}}}
		assert.NoError(t, m.Validate(0))
	})
	t.Run("BadMediaKind", func(t *testing.T) {
		m := &domain.Message{Media: []domain.Media{{URL: "https://cdn/x", Kind: "gif"}}}
		assert.ErrorIs(t, m.Validate(0), domain.ErrValidation)
	})
	t.Run("TooLong", func(t *testing.T) {
		m := &domain.Message{Content: strings.Repeat("é", 11)}
		assert.ErrorIs(t, m.Validate(10), domain.ErrValidation)
		assert.NoError(t, m.Validate(11))
	})
}

func TestSummaryPointerStale(t *testing.T) {
	id1, id2 := "m1", "m2"
	s := &domain.ConversationSummary{}
	assert.False(t, s.PointerStale())

	s.LatestMessageID = &id1
	assert.True(t, s.PointerStale())

	s.LastMessageID = &id1
	assert.False(t, s.PointerStale())

	s.LatestMessageID = &id2
	assert.True(t, s.PointerStale())
}

func TestErrorClassification(t *testing.T) {
	err := domain.NotFound("conversation not found")
	wrapped := errors.Join(errors.New("ctx"), err)
	assert.ErrorIs(t, wrapped, domain.ErrNotFound)
	assert.Equal(t, "NOT_FOUND", domain.Code(err))
	assert.Equal(t, "conversation not found", domain.ErrorMessage(err, "x"))

	internal := domain.Internal("db down", errors.New("boom"))
	assert.Equal(t, "INTERNAL", domain.Code(internal))
	assert.Equal(t, "fallback", domain.ErrorMessage(internal, "fallback"))
	assert.Equal(t, "INTERNAL", domain.Code(errors.New("plain")))
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "bob", domain.NormalizeHandle("  @Bob "))
}

func TestNewIDIsOrdered(t *testing.T) {
	prev := domain.NewID()
	for i := 0; i < 100; i++ {
		next := domain.NewID()
		require.Less(t, prev, next)
		prev = next
	}
}
