package runtime

import (
	"context"
	"encoding/json"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/engine/tools"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Agent Client Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// AgentRequest is one round-trip request to the remote agent. Exactly one
// of UserText and ToolOutputs is set: the opening round carries the user's
// message, continuation rounds carry tool results.
type AgentRequest struct {
	Model          string
	Instructions   string
	ConversationID string

	UserText    string
	ToolOutputs []ToolOutput

	Tools []tools.Schema
}

// ToolOutput pairs a tool call id with its serialized result.
type ToolOutput struct {
	CallID string
	Output string
}

// AgentToolCall is a tool invocation requested by the remote agent.
type AgentToolCall struct {
	CallID    string
	Name      string
	Arguments string // raw JSON, parsed at execution time
}

// RoundResult is the terminal outcome of one agent round-trip.
type RoundResult struct {
	Text               string
	ReasoningSummaries []string
	ToolCalls          []AgentToolCall
	Usage              *api.Usage
}

// RawStream yields the raw provider events of one streaming round-trip.
type RawStream interface {
	// Recv returns the next raw event. io.EOF indicates stream end.
	Recv(ctx context.Context) (json.RawMessage, error)

	// Final returns the accumulated round result. Valid after Recv
	// returned io.EOF.
	Final() (RoundResult, error)

	// Close releases the underlying connection.
	Close() error
}

// AgentClient talks to the remote agent provider.
type AgentClient interface {
	// Stream starts one round-trip and streams its raw events.
	Stream(ctx context.Context, req AgentRequest) (RawStream, error)

	// Complete runs one round-trip without streaming.
	Complete(ctx context.Context, req AgentRequest) (RoundResult, error)
}
