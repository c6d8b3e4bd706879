// ABOUTME: HTTP client for the chat server's companion REST API
// ABOUTME: JSON requests with bearer auth and explicit OperationError results

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/fold-client/internal/conversation"
)

// OperationError is a non-success response to a request. The coordinator
// rolls the corresponding optimistic mutation back when it sees one.
type OperationError struct {
	Status  int
	Message string
}

func (e *OperationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the REST API base, e.g. http://localhost:8001.
	BaseURL string

	// UserID scopes conversation listing and bulk deletion.
	UserID string

	// Token is an optional bearer token attached to every request.
	Token string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the companion REST API.
type Client struct {
	baseURL string
	userID  string
	token   string
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a REST client. A configured token that is already expired is
// worth knowing about before the first 401, so its claims are inspected
// (unverified — the client does not hold the server's signing secret).
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}

	if opts.Token != "" {
		warnIfExpired(opts.Token, logger)
	}

	return &Client{
		baseURL: opts.BaseURL,
		userID:  opts.UserID,
		token:   opts.Token,
		httpc:   httpc,
		logger:  logger,
	}
}

// warnIfExpired parses the bearer token without signature verification and
// logs when its exp claim is in the past.
func warnIfExpired(token string, logger *slog.Logger) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		// Not a JWT; opaque tokens are fine.
		return
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if exp.Before(time.Now()) {
		logger.Warn("configured API token is expired", "expired_at", exp.Time)
	}
}

// ConversationSummary is one entry in the conversation list.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// wireMessage is the REST representation of a message.
type wireMessage struct {
	ID             string    `json:"id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id"`
	ParentID       string    `json:"parent_id,omitempty"`
	IsEdited       bool      `json:"is_edited,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (w wireMessage) toMessage() conversation.Message {
	return conversation.Message{
		ID:             w.ID,
		Role:           w.Role,
		Content:        w.Content,
		CreatedAt:      w.CreatedAt,
		IsEdited:       w.IsEdited,
		ConversationID: w.ConversationID,
		ParentID:       w.ParentID,
	}
}

// Conversations lists the user's stored conversations.
func (c *Client) Conversations(ctx context.Context) ([]ConversationSummary, error) {
	var out struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	path := "/api/conversations?user_id=" + url.QueryEscape(c.userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// History fetches one conversation's full message history.
func (c *Client) History(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	var out struct {
		Messages []wireMessage `json:"messages"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return toMessages(out.Messages), nil
}

// DeleteConversation deletes one stored conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteAllConversations deletes every stored conversation for the user.
func (c *Client) DeleteAllConversations(ctx context.Context) error {
	path := "/api/conversations?user_id=" + url.QueryEscape(c.userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// EditMessage replaces a message's content server-side. The replacement
// response version is pushed over the persistent connection.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) error {
	body := map[string]string{"content": content}
	path := "/api/messages/" + url.PathEscape(messageID) + "/edit"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// RegenerateResponse requests a fresh response version for the given user
// message. The version itself arrives over the persistent connection.
func (c *Client) RegenerateResponse(ctx context.Context, parentID string) error {
	path := "/api/messages/" + url.PathEscape(parentID) + "/regenerate"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Versions lists the stored response versions for a user message.
func (c *Client) Versions(ctx context.Context, parentID string) ([]conversation.Version, error) {
	var out struct {
		Versions []struct {
			Content   string    `json:"content"`
			MessageID string    `json:"message_id"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"versions"`
	}
	path := "/api/messages/" + url.PathEscape(parentID) + "/versions"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	versions := make([]conversation.Version, 0, len(out.Versions))
	for _, v := range out.Versions {
		versions = append(versions, conversation.Version{
			Content:         v.Content,
			CreatedAt:       v.CreatedAt,
			ServerMessageID: v.MessageID,
		})
	}
	return versions, nil
}

// SelectActiveVersion persists the active-version choice. Best effort: the
// engine's local selection stands regardless of the outcome.
func (c *Client) SelectActiveVersion(ctx context.Context, parentID string, index int) error {
	body := map[string]int{"index": index}
	path := "/api/messages/" + url.PathEscape(parentID) + "/versions/active"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// DeleteMessage deletes a single message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	path := "/api/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// RewindTo truncates the conversation back to the target message and returns
// the authoritative resulting message list. Callers replace local state with
// it, never merge.
func (c *Client) RewindTo(ctx context.Context, messageID string) ([]conversation.Message, error) {
	var out struct {
		Messages []wireMessage `json:"messages"`
	}
	path := "/api/messages/" + url.PathEscape(messageID) + "/rewind"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return toMessages(out.Messages), nil
}

// do performs one JSON request. A non-2xx status becomes an *OperationError
// with the server's error text when one can be extracted.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// readErrorMessage extracts the error text from a failure body. The server
// uses FastAPI-style {"detail": ...}; {"error": ...} is accepted too.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return parsed.Error
}

func toMessages(in []wireMessage) []conversation.Message {
	out := make([]conversation.Message, 0, len(in))
	for _, w := range in {
		out = append(out, w.toMessage())
	}
	return out
}
