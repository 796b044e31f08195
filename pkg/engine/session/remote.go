package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/logger"
)

// HTTPConversationAPI implements ConversationAPI against the provider's
// durable conversation endpoints.
type HTTPConversationAPI struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPConversationAPI creates a conversation client.
func NewHTTPConversationAPI(baseURL, apiKey string) *HTTPConversationAPI {
	return &HTTPConversationAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type wireItem struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`
}

func toWireItems(items []api.ConversationItem) []wireItem {
	out := make([]wireItem, 0, len(items))
	for _, it := range items {
		out = append(out, wireItem{
			ID:   it.ID,
			Type: string(it.Kind),
			Role: it.Role,
			Text: it.Text,
		})
	}
	return out
}

func fromWireItems(items []wireItem) []api.ConversationItem {
	out := make([]api.ConversationItem, 0, len(items))
	for _, it := range items {
		out = append(out, api.ConversationItem{
			ID:   it.ID,
			Kind: api.ItemKind(it.Type),
			Role: it.Role,
			Text: it.Text,
		})
	}
	return out
}

// CreateConversation creates a new durable conversation.
func (c *HTTPConversationAPI) CreateConversation(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations", map[string]any{}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("conversation create returned no id")
	}
	return resp.ID, nil
}

// AddItems appends one batch of items to a conversation.
func (c *HTTPConversationAPI) AddItems(ctx context.Context, conversationID string, items []api.ConversationItem) error {
	payload := map[string]any{"items": toWireItems(items)}
	return c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/items", payload, nil)
}

// ListItems returns all items of a conversation in order.
func (c *HTTPConversationAPI) ListItems(ctx context.Context, conversationID string) ([]api.ConversationItem, error) {
	var resp struct {
		Data []wireItem `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations/"+conversationID+"/items", nil, &resp); err != nil {
		return nil, err
	}
	return fromWireItems(resp.Data), nil
}

func (c *HTTPConversationAPI) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("Session", "Conversation API request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		logger.Error("Session", "Conversation API returned error", map[string]interface{}{
			"method":      method,
			"path":        path,
			"status_code": resp.StatusCode,
			"error":       msg,
		})
		return fmt.Errorf("conversation API error (status %d): %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
