// Package storetest is a conformance suite shared by every persistence
// driver. Each driver's tests call Run with a factory for fresh repositories.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeffZl/frontenduas/internal/domain"
)

type Repos struct {
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
}

// Run executes the suite. newRepos must return repositories backed by an
// empty database.
func Run(t *testing.T, newRepos func(t *testing.T) Repos) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newRepos(t)) })
	t.Run("CreateOrGet", func(t *testing.T) { testCreateOrGet(t, newRepos(t)) })
	t.Run("CreateOrGetConcurrent", func(t *testing.T) { testCreateOrGetConcurrent(t, newRepos(t)) })
	t.Run("MessageOrdering", func(t *testing.T) { testMessageOrdering(t, newRepos(t)) })
	t.Run("LastMessagePointer", func(t *testing.T) { testLastMessagePointer(t, newRepos(t)) })
	t.Run("ListForUser", func(t *testing.T) { testListForUser(t, newRepos(t)) })
	t.Run("MarkRead", func(t *testing.T) { testMarkRead(t, newRepos(t)) })
}

func mustUser(t *testing.T, r Repos, handle string) *domain.User {
	t.Helper()
	u := &domain.User{Handle: handle, Name: handle}
	require.NoError(t, r.Users.Create(context.Background(), u))
	return u
}

func mustConversation(t *testing.T, r Repos, a, b *domain.User) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{Participants: []string{a.ID, b.ID}}
	_, err := r.Conversations.CreateOrGet(context.Background(), c)
	require.NoError(t, err)
	return c
}

func mustMessage(t *testing.T, r Repos, conv *domain.Conversation, sender *domain.User, content string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{ConversationID: conv.ID, SenderID: sender.ID, Content: content, CreatedAt: at}
	require.NoError(t, r.Messages.Create(context.Background(), m))
	return m
}

func testUsers(t *testing.T, r Repos) {
	ctx := context.Background()
	alice := mustUser(t, r, "Alice")
	assert.Equal(t, "alice", alice.Handle)
	assert.NotEmpty(t, alice.ID)

	got, err := r.Users.GetByHandle(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	got, err = r.Users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Handle)

	_, err = r.Users.GetByHandle(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = r.Users.Create(ctx, &domain.User{Handle: "alice"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	bob := mustUser(t, r, "bob")
	list, err := r.Users.ListByIDs(ctx, []string{alice.ID, bob.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testCreateOrGet(t *testing.T, r Repos) {
	ctx := context.Background()
	alice := mustUser(t, r, "alice")
	bob := mustUser(t, r, "bob")

	first := &domain.Conversation{Participants: []string{alice.ID, bob.ID}}
	created, err := r.Conversations.CreateOrGet(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, first.LastMessageID)
	assert.Len(t, first.Participants, 2)

	second := &domain.Conversation{Participants: []string{bob.ID, alice.ID}}
	created, err = r.Conversations.CreateOrGet(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	found, err := r.Conversations.FindByParticipants(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.True(t, found.HasParticipant(alice.ID))
	assert.True(t, found.HasParticipant(bob.ID))

	carol := mustUser(t, r, "carol")
	_, err = r.Conversations.FindByParticipants(ctx, alice.ID, carol.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Conversations.CreateOrGet(ctx, &domain.Conversation{Participants: []string{alice.ID, alice.ID}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Conversations.GetByID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testCreateOrGetConcurrent(t *testing.T, r Repos) {
	alice := mustUser(t, r, "alice")
	bob := mustUser(t, r, "bob")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]struct{}{}
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			parts := []string{alice.ID, bob.ID}
			if i%2 == 1 {
				parts = []string{bob.ID, alice.ID}
			}
			c := &domain.Conversation{Participants: parts}
			ok, err := r.Conversations.CreateOrGet(context.Background(), c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				created++
			}
			ids[c.ID] = struct{}{}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	list, err := r.Conversations.ListForUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testMessageOrdering(t *testing.T, r Repos) {
	ctx := context.Background()
	alice := mustUser(t, r, "alice")
	bob := mustUser(t, r, "bob")
	conv := mustConversation(t, r, alice, bob)

	base := domain.Now()
	m1 := mustMessage(t, r, conv, alice, "one", base)
	m2 := mustMessage(t, r, conv, bob, "two", base)
	m3 := mustMessage(t, r, conv, alice, "three", base.Add(time.Millisecond))

	list, err := r.Messages.ListForConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}

	got, err := r.Messages.GetByID(ctx, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Content)
	assert.Equal(t, bob.ID, got.SenderID)
	assert.False(t, got.IsRead)
	assert.Nil(t, got.ReadAt)
	assert.NotNil(t, got.Media)

	_, err = r.Messages.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty := mustConversation(t, r, alice, mustUser(t, r, "carol"))
	list, err = r.Messages.ListForConversation(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	withMedia := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Media:          []domain.Media{{URL: "https://cdn.example/p.png", Kind: domain.MediaImage, Size: 42, Name: "p.png"}},
	}
	require.NoError(t, r.Messages.Create(ctx, withMedia))
	got, err = r.Messages.GetByID(ctx, withMedia.ID)
	require.NoError(t, err)
	require.Len(t, got.Media, 1)
	assert.Equal(t, domain.MediaImage, got.Media[0].Kind)
	assert.Equal(t, int64(42), got.Media[0].Size)
}

func testLastMessagePointer(t *testing.T, r Repos) {
	ctx := context.Background()
	alice := mustUser(t, r, "alice")
	bob := mustUser(t, r, "bob")
	conv := mustConversation(t, r, alice, bob)

	base := domain.Now()
	older := mustMessage(t, r, conv, alice, "older", base.Add(time.Second))
	newer := mustMessage(t, r, conv, bob, "newer", base.Add(2*time.Second))

	require.NoError(t, r.Conversations.SetLastMessage(ctx, conv.ID, newer))
	require.NoError(t, r.Conversations.SetLastMessage(ctx, conv.ID, older))

	got, err := r.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, newer.ID, *got.LastMessageID)
	assert.True(t, got.LastMessageAt.Equal(newer.CreatedAt))

	// A message whose pointer update was lost.
	latest := mustMessage(t, r, conv, alice, "latest", base.Add(3*time.Second))
	sum, err := r.Conversations.GetSummary(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, sum.PointerStale())
	assert.Equal(t, latest.ID, *sum.LatestMessageID)

	repaired, err := r.Conversations.RepairLastMessage(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, repaired)
	assert.Equal(t, latest.ID, repaired.ID)

	sum, err = r.Conversations.GetSummary(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, sum.PointerStale())
	require.NotNil(t, sum.LastMessage)
	assert.Equal(t, "latest", sum.LastMessage.Content)

	err = r.Conversations.SetLastMessage(ctx, "missing", latest)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty := mustConversation(t, r, alice, mustUser(t, r, "carol"))
	repaired, err = r.Conversations.RepairLastMessage(ctx, empty.ID)
	require.NoError(t, err)
	assert.Nil(t, repaired)
}

func testListForUser(t *testing.T, r Repos) {
	ctx := context.Background()
	alice := mustUser(t, r, "alice")
	bob := mustUser(t, r, "bob")
	carol := mustUser(t, r, "carol")

	withBob := mustConversation(t, r, alice, bob)
	withCarol := mustConversation(t, r, alice, carol)
	mustConversation(t, r, bob, carol)

	base := domain.Now().Add(time.Minute)
	m := mustMessage(t, r, withBob, bob, "hi alice", base)
	require.NoError(t, r.Conversations.SetLastMessage(ctx, withBob.ID, m))
	m = mustMessage(t, r, withBob, bob, "still there?", base.Add(time.Second))
	require.NoError(t, r.Conversations.SetLastMessage(ctx, withBob.ID, m))

	list, err := r.Conversations.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, withBob.ID, list[0].ID)
	assert.Equal(t, withCarol.ID, list[1].ID)
	assert.Equal(t, 2, list[0].UnreadCount)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "still there?", list[0].LastMessage.Content)
	assert.Equal(t, bob.ID, list[0].LastMessage.SenderID)
	assert.Nil(t, list[1].LastMessage)
	assert.Equal(t, 0, list[1].UnreadCount)

	// Bob sent both messages, so nothing is unread for him.
	list, err = r.Conversations.ListForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, withBob.ID, list[0].ID)
	assert.Equal(t, 0, list[0].UnreadCount)

	m = mustMessage(t, r, withCarol, alice, "hey carol", base.Add(2*time.Second))
	require.NoError(t, r.Conversations.SetLastMessage(ctx, withCarol.ID, m))
	list, err = r.Conversations.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, withCarol.ID, list[0].ID)

	list, err = r.Conversations.ListForUser(ctx, mustUser(t, r, "dave").ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testMarkRead(t *testing.T, r Repos) {
	ctx := context.Background()
	alice := mustUser(t, r, "alice")
	bob := mustUser(t, r, "bob")
	conv := mustConversation(t, r, alice, bob)

	base := domain.Now()
	fromBob1 := mustMessage(t, r, conv, bob, "1", base)
	mustMessage(t, r, conv, bob, "2", base.Add(time.Millisecond))
	fromAlice := mustMessage(t, r, conv, alice, "3", base.Add(2*time.Millisecond))

	readAt := domain.Now()
	n, err := r.Messages.MarkConversationRead(ctx, conv.ID, alice.ID, readAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = r.Messages.MarkConversationRead(ctx, conv.ID, alice.ID, readAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := r.Messages.GetByID(ctx, fromBob1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(readAt), "readAt is stamped once")

	got, err = r.Messages.GetByID(ctx, fromAlice.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead, "own messages stay unread")

	flipped, err := r.Messages.MarkRead(ctx, fromAlice.ID, readAt)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = r.Messages.MarkRead(ctx, fromAlice.ID, readAt)
	require.NoError(t, err)
	assert.False(t, flipped)
}
