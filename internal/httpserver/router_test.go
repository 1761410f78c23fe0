package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/config"
	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
	"github.com/JeffZl/frontenduas/internal/httpserver"
	"github.com/JeffZl/frontenduas/internal/security"
	"github.com/JeffZl/frontenduas/internal/service"
	"github.com/JeffZl/frontenduas/internal/store"
	"github.com/JeffZl/frontenduas/internal/ws"
)

type testServer struct {
	*httptest.Server
	tokens *security.TokenService
	store  *store.Store
	hub    *ws.Hub
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:           "Direct Messages API",
		CORSOrigins:       []string{"http://localhost:3000"},
		SessionCookieName: "session_token",
		MaxMessageLength:  5000,
		SendRatePerMinute: 600,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := zap.NewNop()
	bus := events.NewMemoryBus()
	hub := ws.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, hub.Run(ctx, bus))

	tokens := security.NewTokenService("test-secret", time.Hour)
	srv := httptest.NewServer(httpserver.NewRouter(cfg, st, bus, hub, tokens, log))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, tokens: tokens, store: st, hub: hub}
}

// user registers a directory entry and returns its session token.
func (s *testServer) user(t *testing.T, handle string) (*domain.User, string) {
	t.Helper()
	u, err := service.NewUserService(s.store.Users).Register(context.Background(), service.UserCreateInput{Handle: handle})
	require.NoError(t, err)
	tok, err := s.tokens.CreateForUser(u.ID)
	require.NoError(t, err)
	return u, tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type conversationBody struct {
	Conversation service.ConversationResponse `json:"conversation"`
}

type conversationsBody struct {
	Conversations []service.ConversationResponse `json:"conversations"`
}

type messageBody struct {
	Message service.MessageResponse `json:"message"`
}

type messagesBody struct {
	Messages []service.MessageResponse `json:"messages"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestConversationFlow(t *testing.T) {
	s := newTestServer(t, testConfig())
	_, aliceTok := s.user(t, "alice")
	bob, bobTok := s.user(t, "bob")

	var created conversationBody
	status := s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "bob"}, &created)
	require.Equal(t, http.StatusCreated, status)
	convID := created.Conversation.ID
	assert.NotEmpty(t, convID)
	assert.Equal(t, bob.ID, created.Conversation.Participant.ID)
	assert.Nil(t, created.Conversation.LastMessage)

	// Idempotent for the caller and symmetric for the other side.
	var again conversationBody
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "@BOB"}, &again))
	assert.Equal(t, convID, again.Conversation.ID)
	var fromBob conversationBody
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/conversations", bobTok, map[string]string{"participantHandle": "alice"}, &fromBob))
	assert.Equal(t, convID, fromBob.Conversation.ID)
	assert.Equal(t, "alice", fromBob.Conversation.Participant.Handle)

	var sent messageBody
	status = s.do(t, http.MethodPost, "/api/conversations/"+convID+"/messages", aliceTok, map[string]string{"content": "hi bob"}, &sent)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "hi bob", sent.Message.Content)
	assert.False(t, sent.Message.IsRead)
	require.NotNil(t, sent.Message.Sender)
	assert.Equal(t, "alice", sent.Message.Sender.Handle)

	var bobList conversationsBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations", bobTok, nil, &bobList))
	require.Len(t, bobList.Conversations, 1)
	item := bobList.Conversations[0]
	assert.Equal(t, "alice", item.Participant.Handle)
	require.NotNil(t, item.LastMessage)
	assert.Equal(t, "hi bob", item.LastMessage.Content)
	assert.Equal(t, 1, item.UnreadCount)

	var aliceList conversationsBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations", aliceTok, nil, &aliceList))
	require.Len(t, aliceList.Conversations, 1)
	assert.Equal(t, "bob", aliceList.Conversations[0].Participant.Handle)
	assert.Equal(t, 0, aliceList.Conversations[0].UnreadCount)

	var msgs messagesBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", bobTok, nil, &msgs))
	require.Len(t, msgs.Messages, 1)
	assert.False(t, msgs.Messages[0].IsRead)

	var ok map[string]string
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/conversations/"+convID+"/read", bobTok, nil, &ok))
	assert.Equal(t, "success", ok["status"])
	// Idempotent.
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/conversations/"+convID+"/read", bobTok, nil, nil))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", aliceTok, nil, &msgs))
	require.Len(t, msgs.Messages, 1)
	assert.True(t, msgs.Messages[0].IsRead)
	assert.NotNil(t, msgs.Messages[0].ReadAt)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations", bobTok, nil, &bobList))
	assert.Equal(t, 0, bobList.Conversations[0].UnreadCount)

	var single conversationBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+convID, bobTok, nil, &single))
	assert.Equal(t, "alice", single.Conversation.Participant.Handle)
}

func TestMessageOrderAndLastMessage(t *testing.T) {
	s := newTestServer(t, testConfig())
	_, aliceTok := s.user(t, "alice")
	_, bobTok := s.user(t, "bob")

	var conv conversationBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "bob"}, &conv))
	id := conv.Conversation.ID

	for i := 0; i < 5; i++ {
		tok := aliceTok
		if i%2 == 1 {
			tok = bobTok
		}
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", tok, map[string]string{"content": fmt.Sprintf("m%d", i)}, nil))
	}

	var msgs messagesBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", aliceTok, nil, &msgs))
	require.Len(t, msgs.Messages, 5)
	for i, m := range msgs.Messages {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs.Messages[i-1].CreatedAt))
		}
	}

	var list conversationsBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations", bobTok, nil, &list))
	require.NotNil(t, list.Conversations[0].LastMessage)
	assert.Equal(t, "m4", list.Conversations[0].LastMessage.Content)
	assert.Equal(t, 3, list.Conversations[0].UnreadCount)
}

func TestMessageContentStoredVerbatim(t *testing.T) {
	s := newTestServer(t, testConfig())
	_, aliceTok := s.user(t, "alice")
	s.user(t, "bob")

	var conv conversationBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "bob"}, &conv))
	id := conv.Conversation.ID

	contents := []string{"    indented code\n", "   ", "\ttabbed "}
	for _, c := range contents {
		var sent messageBody
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", aliceTok, map[string]string{"content": c}, &sent))
		assert.Equal(t, c, sent.Message.Content)
	}

	var msgs messagesBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", aliceTok, nil, &msgs))
	require.Len(t, msgs.Messages, len(contents))
	for i, m := range msgs.Messages {
		assert.Equal(t, contents[i], m.Content)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t, testConfig())
	_, aliceTok := s.user(t, "alice")
	s.user(t, "bob")
	_, carolTok := s.user(t, "carol")

	var conv conversationBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "bob"}, &conv))
	id := conv.Conversation.ID

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"Self", http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "alice"}, http.StatusBadRequest, "INVALID_OPERATION"},
		{"UnknownHandle", http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "nobody"}, http.StatusNotFound, "NOT_FOUND"},
		{"EmptyHandle", http.MethodPost, "/api/conversations", aliceTok, map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"EmptyMessage", http.MethodPost, "/api/conversations/" + id + "/messages", aliceTok, map[string]string{"content": ""}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"OutsiderSend", http.MethodPost, "/api/conversations/" + id + "/messages", carolTok, map[string]string{"content": "hey"}, http.StatusForbidden, "FORBIDDEN"},
		{"OutsiderList", http.MethodGet, "/api/conversations/" + id + "/messages", carolTok, nil, http.StatusForbidden, "FORBIDDEN"},
		{"OutsiderRead", http.MethodPost, "/api/conversations/" + id + "/read", carolTok, nil, http.StatusForbidden, "FORBIDDEN"},
		{"OutsiderGet", http.MethodGet, "/api/conversations/" + id, carolTok, nil, http.StatusForbidden, "FORBIDDEN"},
		{"UnknownConversation", http.MethodGet, "/api/conversations/missing/messages", aliceTok, nil, http.StatusNotFound, "NOT_FOUND"},
		{"UnknownUser", http.MethodGet, "/api/users/nobody", aliceTok, nil, http.StatusNotFound, "NOT_FOUND"},
		{"NoSession", http.MethodGet, "/api/conversations", "", nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"BadSession", http.MethodGet, "/api/conversations", "not-a-jwt", nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"BodyReadMissingID", http.MethodPost, "/api/messages/read", aliceTok, map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body errorBody
			status := s.do(t, tc.method, tc.path, tc.token, tc.body, &body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}

	t.Run("EmptyMessageNotPersisted", func(t *testing.T) {
		var msgs messagesBody
		require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", aliceTok, nil, &msgs))
		assert.Empty(t, msgs.Messages)
	})

	t.Run("TokenForUnknownUser", func(t *testing.T) {
		tok, err := s.tokens.CreateForUser("ghost")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/conversations", tok, nil, nil))
	})
}

func TestSessionCookie(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice, tok := s.user(t, "alice")

	req, err := http.NewRequest(http.MethodGet, s.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: tok})
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, alice.ID, me["id"])
	assert.Equal(t, "alice", me["handle"])
}

func TestSingleMessageRead(t *testing.T) {
	s := newTestServer(t, testConfig())
	_, aliceTok := s.user(t, "alice")
	_, bobTok := s.user(t, "bob")

	var conv conversationBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "bob"}, &conv))
	id := conv.Conversation.ID

	var first, second messageBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", aliceTok, map[string]string{"content": "one"}, &first))
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", aliceTok, map[string]string{"content": "two"}, &second))

	// The sender marking its own message is a no-op.
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/messages/"+first.Message.ID+"/read", aliceTok, nil, nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/messages/"+first.Message.ID+"/read", bobTok, nil, nil))

	var msgs messagesBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", bobTok, nil, &msgs))
	require.Len(t, msgs.Messages, 2)
	assert.True(t, msgs.Messages[0].IsRead)
	assert.False(t, msgs.Messages[1].IsRead)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/messages/read", bobTok, map[string]string{"conversationId": id}, nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", bobTok, nil, &msgs))
	assert.True(t, msgs.Messages[1].IsRead)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/messages/missing/read", bobTok, nil, nil))
}

func TestSendRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.SendRatePerMinute = 1
	s := newTestServer(t, cfg)
	_, aliceTok := s.user(t, "alice")
	s.user(t, "bob")

	var conv conversationBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "bob"}, &conv))
	path := "/api/conversations/" + conv.Conversation.ID + "/messages"

	var last int
	var body errorBody
	for i := 0; i < 10; i++ {
		last = s.do(t, http.MethodPost, path, aliceTok, map[string]string{"content": "spam"}, nil)
		if last == http.StatusTooManyRequests {
			break
		}
	}
	require.Equal(t, http.StatusTooManyRequests, last)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodPost, path, aliceTok, map[string]string{"content": "spam"}, &body))
	assert.Equal(t, "RATE_LIMITED", body.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil, &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestWebsocketPush(t *testing.T) {
	s := newTestServer(t, testConfig())
	_, aliceTok := s.user(t, "alice")
	bob, bobTok := s.user(t, "bob")

	var conv conversationBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations", aliceTok, map[string]string{"participantHandle": "bob"}, &conv))

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+bobTok)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return s.hub.Connected(bob.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/conversations/"+conv.Conversation.ID+"/messages", aliceTok, map[string]string{"content": "ping"}, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame ws.Payload
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, events.MessageCreated, frame.Type)
	assert.Equal(t, conv.Conversation.ID, frame.ConversationID)
	require.NotNil(t, frame.Message)
	assert.Equal(t, "ping", frame.Message.Content)

	// mark_read over the socket produces a messages.read frame for bob too.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "mark_read", "conversationId": conv.Conversation.ID}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, events.MessagesRead, frame.Type)
}

func TestWebsocketRejectsMissingSession(t *testing.T) {
	s := newTestServer(t, testConfig())
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
