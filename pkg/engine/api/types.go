// Package api defines the stable public interface for Corpus Agent.
// All external interactions should use these types.
package api

import (
	"time"
	"unicode/utf8"
)

// Args is the canonical argument container for tools.
type Args = map[string]any

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Conversation Items
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ItemKind identifies the kind of a conversation item.
type ItemKind string

const (
	ItemMessage   ItemKind = "message"
	ItemReasoning ItemKind = "reasoning"
	ItemToolCall  ItemKind = "tool_call"
)

// ConversationItem is one immutable unit of conversation history.
// Items form an append-only ordered sequence per thread.
type ConversationItem struct {
	ID   string   `json:"id,omitempty"`
	Kind ItemKind `json:"kind"`
	Role string   `json:"role,omitempty"` // "user" | "assistant" (message kind only)
	Text string   `json:"text,omitempty"`
}

// NeedsFollower reports whether the remote store requires this item to be
// delivered in the same batch as its immediate successor.
func (it ConversationItem) NeedsFollower() bool {
	return it.Kind == ItemReasoning
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Threads
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Thread is a logical, persistent chat conversation.
type Thread struct {
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Preamble is operator-settable free text prepended to agent instructions.
	Preamble string `json:"preamble,omitempty"`

	// Preview is a short truncation of the last completed answer.
	Preview string `json:"preview,omitempty"`
}

// PreviewMaxChars is the fixed character cap for thread previews.
const PreviewMaxChars = 200

// MakePreview returns the deterministic preview for an answer: the first
// PreviewMaxChars runes, with an ellipsis when truncated.
func MakePreview(answer string) string {
	if utf8.RuneCountInString(answer) <= PreviewMaxChars {
		return answer
	}
	runes := []rune(answer)
	return string(runes[:PreviewMaxChars]) + "…"
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turns
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// TurnStatus represents the lifecycle state of a turn.
// A turn transitions exactly once from running to a terminal state.
type TurnStatus string

const (
	TurnRunning     TurnStatus = "running"
	TurnCompleted   TurnStatus = "completed"
	TurnInterrupted TurnStatus = "interrupted"
	TurnError       TurnStatus = "error"
)

// Terminal reports whether the status is final.
func (s TurnStatus) Terminal() bool {
	return s == TurnCompleted || s == TurnInterrupted || s == TurnError
}

// Usage holds token counts and cost for one turn.
type Usage struct {
	InputTokens     int     `json:"input_tokens"`
	CachedTokens    int     `json:"cached_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	ReasoningTokens int     `json:"reasoning_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	CostUSD         float64 `json:"cost_usd"`

	// Estimated is set when no provider-reported usage arrived and the
	// counts come from the character heuristic instead.
	Estimated bool `json:"estimated,omitempty"`
}

// ToolCallRecord records one tool invocation within a turn.
type ToolCallRecord struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Args       Args   `json:"args,omitempty"`
	Status     string `json:"status"` // "success" | "error"
	OutputLen  int    `json:"output_len,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Turn is one bounded round of agent reasoning and tool use.
// After finalization it is immutable.
type Turn struct {
	TurnID   string `json:"turn_id"`
	ThreadID string `json:"thread_id"`
	Model    string `json:"model"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Status     TurnStatus `json:"status"`

	Text      string           `json:"text,omitempty"`
	Usage     Usage            `json:"usage"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Reasoning []string         `json:"reasoning,omitempty"`

	TurnsUsed       int    `json:"turns_used"`
	BudgetExhausted bool   `json:"budget_exhausted,omitempty"`
	Error           string `json:"error,omitempty"`
}

// TurnResult is the done-shaped value every terminal turn yields, however it
// ended. It is never a bare error to the end user.
type TurnResult struct {
	TurnID   string `json:"turn_id"`
	ThreadID string `json:"thread_id"`

	Status          TurnStatus `json:"status"`
	Text            string     `json:"text"`
	TurnsUsed       int        `json:"turns_used"`
	BudgetExhausted bool       `json:"budget_exhausted,omitempty"`
	Usage           Usage      `json:"usage"`
	Error           string     `json:"error,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Standard Error Codes
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	ErrValidation     = "validation_error"
	ErrPathEscape     = "path_escape"
	ErrSessionWrite   = "session_write_error"
	ErrRemoteAgent    = "remote_agent_error"
	ErrBudgetExceeded = "budget_exceeded"
	ErrThreadNotFound = "thread_not_found"
	ErrTurnNotFound   = "turn_not_found"
	ErrStoreError     = "store_error"
)
