// Package store calls the request/response message-store API.
//
// The store owns persistence; this client only shapes requests, decodes the
// JSON records into the wire model, and maps non-success responses into typed
// failures. It never retries.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/webchat/internal/webchat"
)

const (
	defaultRequestTimeout = 10 * time.Second

	// DefaultMessageLimit matches the store's default page size.
	DefaultMessageLimit = 50
	// MaxMessageLimit is the store-enforced page cap; larger requests are
	// clamped client-side to keep pagination cursors meaningful.
	MaxMessageLimit = 100
)

// APIError is a non-success response from the store. The message is the
// server's human-readable error string, passed through unchanged.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store: status %d", e.Status)
	}
	return fmt.Sprintf("store: %s (status %d)", e.Message, e.Status)
}

// Client issues HTTP calls against one store base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a store client for baseURL. A nil httpClient gets a default
// with a request timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// SendRequest describes one message submission.
type SendRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chat_id,omitempty"`
	// ReplyToMessageID targets a specific parent. Normal replies use the
	// counterpart's message id; edits use the edited message's own parent to
	// create a sibling branch.
	ReplyToMessageID string         `json:"reply_to_message_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type sendResponse struct {
	Success bool            `json:"success"`
	Message webchat.Message `json:"message"`
	Error   string          `json:"error"`
}

// SendMessage posts a message and returns the stored record. The store
// creates the chat on the first message of a new conversation, so the
// returned message's ChatID is authoritative.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (webchat.Message, error) {
	if strings.TrimSpace(req.Text) == "" {
		return webchat.Message{}, fmt.Errorf("store: text is required")
	}

	var resp sendResponse
	if err := c.postJSON(ctx, "/send/", req, &resp); err != nil {
		return webchat.Message{}, err
	}
	return resp.Message, nil
}

// MessagesPage is one page of chat history, chronological ascending.
type MessagesPage struct {
	ChatID     string            `json:"chat_id"`
	Messages   []webchat.Message `json:"messages"`
	HasMore    bool              `json:"has_more"`
	NextCursor string            `json:"next_cursor"`
}

// GetMessages fetches up to limit messages for a chat. beforeID and afterID
// are optional pagination cursors; afterID is what the polling transport uses
// to fetch only unseen messages.
func (c *Client) GetMessages(ctx context.Context, chatID string, limit int, beforeID, afterID string) (MessagesPage, error) {
	if strings.TrimSpace(chatID) == "" {
		return MessagesPage{}, fmt.Errorf("store: chat id is required")
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	query := url.Values{}
	query.Set("chat_id", chatID)
	query.Set("limit", strconv.Itoa(limit))
	if beforeID != "" {
		query.Set("before", beforeID)
	}
	if afterID != "" {
		query.Set("after", afterID)
	}

	var page MessagesPage
	if err := c.getJSON(ctx, "/messages/", query, &page); err != nil {
		return MessagesPage{}, err
	}
	return page, nil
}

type chatsResponse struct {
	Success bool           `json:"success"`
	Chats   []webchat.Chat `json:"chats"`
	Error   string         `json:"error"`
}

// GetChats lists the caller's chats. Filters pass through as query
// parameters; the client does not interpret them.
func (c *Client) GetChats(ctx context.Context, filters map[string]string) ([]webchat.Chat, error) {
	query := url.Values{}
	for key, value := range filters {
		query.Set(key, value)
	}

	var resp chatsResponse
	if err := c.getJSON(ctx, "/chats/", query, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// UpdateChat renames a chat.
func (c *Client) UpdateChat(ctx context.Context, chatID, name string) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("store: chat id is required")
	}
	body := map[string]string{"name": name}
	return c.postJSON(ctx, "/chat/"+url.PathEscape(chatID)+"/", body, nil)
}

// DeleteChat deletes a chat and its history.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("store: chat id is required")
	}
	return c.postJSON(ctx, "/chat/"+url.PathEscape(chatID)+"/delete/", nil, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request %s: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &APIError{Status: resp.StatusCode, Message: failure.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode store response: %w", err)
	}
	return nil
}
