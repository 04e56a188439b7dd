// Package api implements the HTTP client for the messaging endpoints the
// synchronization engine consumes:
//   - GET  /conversations
//   - GET  /messages/{threadOrPeerId}?page&limit
//   - POST /messages/send
//   - POST /threads/{id}/typing, GET /threads/{id}/typing
//   - POST /threads/{id}/read
//   - POST /threads/{id}/report
//   - POST /block
//
// Responses are returned as decoded JSON values; the normalize package turns
// them into the canonical model.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 15 * time.Second

// maxResponseSize limits response body reads to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// TokenProvider supplies the bearer credential attached to every request.
// The client never refreshes tokens itself.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Client is the messaging HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
}

// New creates a client for baseURL. A zero timeout uses DefaultTimeout.
func New(baseURL string, tokens TokenProvider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// Error is returned for non-2xx responses.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat API error (status %d): %s", e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ListConversations fetches the conversation summaries.
func (c *Client) ListConversations(ctx context.Context) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages fetches one page (1-based) of a thread, addressed by thread id
// or, for a direct conversation without a thread record, by peer id.
func (c *Client) ListMessages(ctx context.Context, threadOrPeerID string, page, limit int) (any, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out any
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(threadOrPeerID), q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendRequest is the body of POST /messages/send.
type SendRequest struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// SendMessage submits a text message and returns the raw confirmation.
func (c *Client) SendMessage(ctx context.Context, receiverID, text string) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodPost, "/messages/send", nil, &SendRequest{ReceiverID: receiverID, Message: text}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TypingRequest is the body of POST /threads/{id}/typing.
type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

// SetTyping reports the local typing state for a thread.
func (c *Client) SetTyping(ctx context.Context, threadID string, isTyping bool) error {
	return c.do(ctx, http.MethodPost, threadPath(threadID, "typing"), nil, &TypingRequest{IsTyping: isTyping}, nil)
}

// TypingUsers fetches the ids of users currently typing in a thread.
func (c *Client) TypingUsers(ctx context.Context, threadID string) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodGet, threadPath(threadID, "typing"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks every message of a thread as read.
func (c *Client) MarkRead(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodPost, threadPath(threadID, "read"), nil, struct{}{}, nil)
}

// ReportRequest is the body of POST /threads/{id}/report.
type ReportRequest struct {
	Reason string `json:"reason"`
}

// Report flags a conversation for moderation.
func (c *Client) Report(ctx context.Context, threadID, reason string) error {
	return c.do(ctx, http.MethodPost, threadPath(threadID, "report"), nil, &ReportRequest{Reason: reason}, nil)
}

// BlockRequest is the body of POST /block.
type BlockRequest struct {
	UserID string `json:"userId"`
}

// Block blocks a user.
func (c *Client) Block(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/block", nil, &BlockRequest{UserID: userID}, nil)
}

func threadPath(threadID, action string) string {
	return "/threads/" + url.PathEscape(threadID) + "/" + action
}

// do sends a request and decodes the JSON response into out (when non-nil).
// Numbers are kept as json.Number so large numeric ids survive intact.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody any, out *any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Read maxResponseSize+1 to detect oversized responses.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if int64(len(data)) > maxResponseSize {
		return fmt.Errorf("response exceeds maximum size of %d bytes", maxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
