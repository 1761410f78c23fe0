// Package client is the consumer side of the messaging API: a typed HTTP
// client, a state container the UI renders from, the polling loop that keeps
// it fresh and an optional websocket stream that triggers early refreshes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/service"
)

const defaultCookieName = "session_token"

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// API is the subset of the HTTP client the Store depends on.
type API interface {
	ListConversations(ctx context.Context) ([]service.ConversationResponse, error)
	ListMessages(ctx context.Context, conversationID string) ([]service.MessageResponse, error)
	SendMessage(ctx context.Context, conversationID, content string, media []domain.Media) (*service.MessageResponse, error)
	MarkRead(ctx context.Context, conversationID string) error
}

type Client struct {
	baseURL    *url.URL
	token      string
	cookieName string
	http       *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCookieName overrides the session cookie the token is sent in.
func WithCookieName(name string) Option {
	return func(c *Client) { c.cookieName = name }
}

// New returns a client for the server at baseURL authenticated by token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		token:      token,
		cookieName: defaultCookieName,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StreamURL is the websocket endpoint of the server.
func (c *Client) StreamURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// AuthHeader returns the headers that authenticate a request, for callers
// that open their own connections.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	h.Set("Cookie", (&http.Cookie{Name: c.cookieName, Value: c.token}).String())
	return h
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+"/api"+path, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.token})

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, apiErr
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]service.ConversationResponse, error) {
	var out struct {
		Conversations []service.ConversationResponse `json:"conversations"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetOrCreateConversation reports created=true when the server inserted it.
func (c *Client) GetOrCreateConversation(ctx context.Context, handle string) (*service.ConversationResponse, bool, error) {
	var out struct {
		Conversation service.ConversationResponse `json:"conversation"`
	}
	status, err := c.do(ctx, http.MethodPost, "/conversations", map[string]string{"participantHandle": handle}, &out)
	if err != nil {
		return nil, false, err
	}
	return &out.Conversation, status == http.StatusCreated, nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*service.ConversationResponse, error) {
	var out struct {
		Conversation service.ConversationResponse `json:"conversation"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]service.MessageResponse, error) {
	var out struct {
		Messages []service.MessageResponse `json:"messages"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string, media []domain.Media) (*service.MessageResponse, error) {
	var out struct {
		Message service.MessageResponse `json:"message"`
	}
	body := map[string]any{"content": content}
	if len(media) > 0 {
		body["media"] = media
	}
	if _, err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", body, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	_, err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
	return err
}

func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	_, err := c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID)+"/read", nil, nil)
	return err
}

func (c *Client) User(ctx context.Context, handle string) (*service.ParticipantResponse, error) {
	var out service.ParticipantResponse
	if _, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(handle), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context) (*service.ParticipantResponse, error) {
	var out service.ParticipantResponse
	if _, err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
