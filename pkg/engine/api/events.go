package api

import (
	"context"
	"encoding/json"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// EventStream Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventStream is the unified interface for receiving normalized turn events.
type EventStream interface {
	// Recv returns the next event. io.EOF indicates stream end.
	Recv(ctx context.Context) (Event, error)

	// Close releases stream resources.
	Close() error
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventType identifies the kind of event.
type EventType string

const (
	EventStatus           EventType = "status"
	EventMeta             EventType = "meta"
	EventReasoningSummary EventType = "reasoning_summary"
	EventUsageUpdate      EventType = "usage_update"
	EventCompaction       EventType = "compaction"
	EventToolProgress     EventType = "tool_progress"
	EventPassthrough      EventType = "event"
	EventDone             EventType = "done"
	EventError            EventType = "error"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event (Strict Union)
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Event is the unified UI-facing output type. Only one payload is non-nil.
//
// Process events (reasoning summaries, tool progress, usage) stream live;
// the final answer is delivered once, atomically, in the done payload.
// Answer text is never forwarded token by token.
type Event struct {
	Version  int       `json:"version"`
	ThreadID string    `json:"thread_id"`
	TurnID   string    `json:"turn_id"`
	Seq      int64     `json:"seq"` // Monotonically increasing within a turn
	Type     EventType `json:"type"`
	Ts       time.Time `json:"ts"`

	Status       *StatusPayload           `json:"status,omitempty"`
	Meta         *MetaPayload             `json:"meta,omitempty"`
	Reasoning    *ReasoningSummaryPayload `json:"reasoning,omitempty"`
	Usage        *UsagePayload            `json:"usage,omitempty"`
	Compaction   *CompactionPayload       `json:"compaction,omitempty"`
	ToolProgress *ToolProgressPayload     `json:"tool_progress,omitempty"`
	Passthrough  *PassthroughPayload      `json:"passthrough,omitempty"`
	Done         *DonePayload             `json:"done,omitempty"`
	Error        *ErrorPayload            `json:"error,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Payload Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// StatusPayload carries a short human-readable progress message.
type StatusPayload struct {
	Message string `json:"message"`
}

// MetaPayload identifies the thread and turn handling a request.
type MetaPayload struct {
	ThreadID string `json:"thread_id"`
	TurnID   string `json:"turn_id"`
}

// ReasoningPhase marks the lifecycle of one reasoning summary stream.
type ReasoningPhase string

const (
	ReasoningAdded ReasoningPhase = "added"
	ReasoningDone  ReasoningPhase = "done"
)

// ReasoningSummaryPayload carries reasoning-trace progress. Index identifies
// which parallel reasoning stream the fragment belongs to.
type ReasoningSummaryPayload struct {
	Phase ReasoningPhase `json:"phase"`
	Index int            `json:"index"`
	Text  string         `json:"text,omitempty"`
	Delta string         `json:"delta,omitempty"`
}

// UsagePayload carries token counts extracted from a completion event.
type UsagePayload struct {
	Usage Usage `json:"usage"`
}

// CompactionPayload signals that conversation history was summarized
// server-side to fit a token budget.
type CompactionPayload struct {
	Message string `json:"message,omitempty"`
}

// ToolProgressPayload announces a tool invocation with a minimal payload.
type ToolProgressPayload struct {
	ToolName string `json:"tool_name"`
	Payload  Args   `json:"payload,omitempty"`
}

// PassthroughPayload forwards an unmodeled provider event unchanged.
// Consumers must treat unknown methods as safe to ignore or display
// generically.
type PassthroughPayload struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// DonePayload marks turn completion and carries the final result.
type DonePayload struct {
	Status          TurnStatus `json:"status"`
	Text            string     `json:"text"`
	TurnsUsed       int        `json:"turns_used"`
	BudgetExhausted bool       `json:"budget_exhausted,omitempty"`
	Usage           Usage      `json:"usage"`
	Error           string     `json:"error,omitempty"`
}

// ErrorPayload contains error information.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
