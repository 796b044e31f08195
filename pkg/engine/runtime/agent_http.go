package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/logger"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// HTTP Agent Client
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// HTTPAgentClient implements AgentClient against a responses-style remote
// agent endpoint.
type HTTPAgentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPAgentClient builds an agent client for the given endpoint.
func NewHTTPAgentClient(baseURL, apiKey string) *HTTPAgentClient {
	return &HTTPAgentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 24 * time.Hour, // Long timeout for streaming long content
		},
	}
}

type responsesRequest struct {
	Model        string          `json:"model"`
	Instructions string          `json:"instructions,omitempty"`
	Conversation string          `json:"conversation,omitempty"`
	Input        []responseInput `json:"input"`
	Tools        []responseTool  `json:"tools,omitempty"`
	Stream       bool            `json:"stream"`
}

type responseInput struct {
	Type string `json:"type"`

	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

type responseTool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// responseItem is one output item of a finished round.
type responseItem struct {
	Type string `json:"type"`

	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content,omitempty"`

	Summary []struct {
		Text string `json:"text"`
	} `json:"summary,omitempty"`

	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

func buildRequest(req AgentRequest, stream bool) responsesRequest {
	payload := responsesRequest{
		Model:        req.Model,
		Instructions: req.Instructions,
		Conversation: req.ConversationID,
		Stream:       stream,
	}
	if req.UserText != "" {
		payload.Input = append(payload.Input, responseInput{
			Type:    "message",
			Role:    "user",
			Content: req.UserText,
		})
	}
	for _, out := range req.ToolOutputs {
		payload.Input = append(payload.Input, responseInput{
			Type:   "function_call_output",
			CallID: out.CallID,
			Output: out.Output,
		})
	}
	for _, t := range req.Tools {
		payload.Tools = append(payload.Tools, responseTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return payload
}

func (c *HTTPAgentClient) post(ctx context.Context, req AgentRequest, stream bool) (*http.Response, error) {
	payload := buildRequest(req, stream)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/responses"
	logger.Info("Agent", "Sending request to agent API", map[string]interface{}{
		"url":         url,
		"model":       req.Model,
		"input_count": len(payload.Input),
		"tool_count":  len(payload.Tools),
		"stream":      stream,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Error("Agent", "HTTP request failed", map[string]interface{}{
			"error": err.Error(),
			"url":   url,
		})
		return nil, &RemoteAgentError{Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		errMsg := strings.TrimSpace(string(raw))
		logger.Error("Agent", "Agent API returned error", map[string]interface{}{
			"status_code": resp.StatusCode,
			"error":       errMsg,
			"url":         url,
			"model":       req.Model,
		})
		return nil, &RemoteAgentError{
			Message: fmt.Sprintf("agent API error (status %d): %s", resp.StatusCode, errMsg),
		}
	}
	return resp, nil
}

// Stream starts one round-trip and streams raw provider events.
func (c *HTTPAgentClient) Stream(ctx context.Context, req AgentRequest) (RawStream, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return newHTTPRawStream(resp.Body), nil
}

// Complete runs one round-trip without streaming.
func (c *HTTPAgentClient) Complete(ctx context.Context, req AgentRequest) (RoundResult, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return RoundResult{}, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Status string         `json:"status"`
		Output []responseItem `json:"output"`
		Usage  *struct {
			InputTokens        int `json:"input_tokens"`
			OutputTokens       int `json:"output_tokens"`
			TotalTokens        int `json:"total_tokens"`
			InputTokensDetails struct {
				CachedTokens int `json:"cached_tokens"`
			} `json:"input_tokens_details"`
			OutputTokensDetails struct {
				ReasoningTokens int `json:"reasoning_tokens"`
			} `json:"output_tokens_details"`
		} `json:"usage,omitempty"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RoundResult{}, &RemoteAgentError{Message: "failed to decode response: " + err.Error()}
	}
	if parsed.Status == "failed" {
		msg := "agent round failed"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return RoundResult{}, &RemoteAgentError{Message: msg}
	}

	var result RoundResult
	for _, item := range parsed.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					result.Text += part.Text
				}
			}
		case "reasoning":
			for _, s := range item.Summary {
				result.ReasoningSummaries = append(result.ReasoningSummaries, s.Text)
			}
		case "function_call":
			result.ToolCalls = append(result.ToolCalls, AgentToolCall{
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	if parsed.Usage != nil {
		u := parsed.Usage
		result.Usage = &api.Usage{
			InputTokens:     u.InputTokens,
			CachedTokens:    u.InputTokensDetails.CachedTokens,
			OutputTokens:    u.OutputTokens,
			ReasoningTokens: u.OutputTokensDetails.ReasoningTokens,
			TotalTokens:     u.TotalTokens,
		}
	}
	return result, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Raw SSE Stream
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

type httpRawStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	mu   sync.Mutex
	done bool

	acc      roundAccumulator
	finalErr error
}

func newHTTPRawStream(body io.ReadCloser) *httpRawStream {
	return &httpRawStream{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

func (s *httpRawStream) Recv(ctx context.Context) (json.RawMessage, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, io.EOF
	}
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.finish(nil)
				return nil, io.EOF
			}
			s.finish(err)
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.finish(nil)
			return nil, io.EOF
		}

		raw := json.RawMessage(data)
		s.mu.Lock()
		s.acc.consume(raw)
		s.mu.Unlock()
		return raw, nil
	}
}

func (s *httpRawStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if err != nil && s.finalErr == nil {
		s.finalErr = err
	}
}

// Final returns the accumulated round result once the stream ended.
func (s *httpRawStream) Final() (RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalErr != nil {
		return RoundResult{}, s.finalErr
	}
	if s.acc.failed != "" {
		return RoundResult{}, &RemoteAgentError{Message: s.acc.failed}
	}
	return s.acc.result, nil
}

func (s *httpRawStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

// roundAccumulator folds raw stream events into a RoundResult.
type roundAccumulator struct {
	result RoundResult
	failed string
}

type accEvent struct {
	Type string        `json:"type"`
	Text string        `json:"text,omitempty"`
	Item *responseItem `json:"item,omitempty"`
}

func (a *roundAccumulator) consume(raw json.RawMessage) {
	t := TranslateRawEvent(raw)
	if t.FinalText != "" {
		a.result.Text = t.FinalText
	}
	if t.Usage != nil {
		a.result.Usage = t.Usage
	}
	if t.Failed != "" {
		a.failed = t.Failed
	}
	for _, e := range t.Events {
		if e.Reasoning != nil && e.Reasoning.Phase == api.ReasoningDone && e.Reasoning.Text != "" {
			a.result.ReasoningSummaries = append(a.result.ReasoningSummaries, e.Reasoning.Text)
		}
	}

	// Tool calls need the call id, which the translator does not carry.
	var ev accEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	if ev.Type == "response.output_item.done" && ev.Item != nil && ev.Item.Type == "function_call" {
		a.result.ToolCalls = append(a.result.ToolCalls, AgentToolCall{
			CallID:    ev.Item.CallID,
			Name:      ev.Item.Name,
			Arguments: ev.Item.Arguments,
		})
	}
}
