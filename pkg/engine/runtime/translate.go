package runtime

import (
	"encoding/json"

	"CorpusAgent/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Translator
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Translation is the result of normalizing one raw provider event.
// Events are ready-to-emit normalized events; the other fields are
// side effects the orchestrator accumulates instead of forwarding.
type Translation struct {
	Events []api.Event

	// AnswerDelta is an answer-text fragment. Answer text is buffered
	// and delivered atomically at turn end, never streamed live.
	AnswerDelta string

	// FinalText is the complete answer text, when the provider sends it.
	FinalText string

	// Usage is provider-reported token usage from a completion event.
	Usage *api.Usage

	// Failed carries the provider's error message when the round failed.
	Failed string
}

// rawEvent is the minimal envelope shared by all provider stream events.
type rawEvent struct {
	Type string `json:"type"`

	Delta        string `json:"delta,omitempty"`
	Text         string `json:"text,omitempty"`
	SummaryIndex int    `json:"summary_index,omitempty"`

	Item *struct {
		Type      string `json:"type"`
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"item,omitempty"`

	Response *struct {
		Usage *struct {
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
	} `json:"response,omitempty"`

	Message string `json:"message,omitempty"`
}

// TranslateRawEvent normalizes one raw provider stream event. Unknown event
// types are never dropped: they are forwarded as passthrough events so new
// provider features degrade gracefully.
func TranslateRawEvent(raw json.RawMessage) Translation {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Type == "" {
		return Translation{Events: []api.Event{passthrough("unknown", raw)}}
	}

	switch ev.Type {
	case "response.created":
		return Translation{Events: []api.Event{{
			Type:   api.EventStatus,
			Status: &api.StatusPayload{Message: "thinking"},
		}}}

	case "response.in_progress":
		// Already covered by the created status; nothing to surface.
		return Translation{}

	case "response.output_text.delta":
		return Translation{AnswerDelta: ev.Delta}

	case "response.output_text.done":
		return Translation{FinalText: ev.Text}

	case "response.reasoning_summary_part.added":
		return Translation{Events: []api.Event{{
			Type: api.EventReasoningSummary,
			Reasoning: &api.ReasoningSummaryPayload{
				Phase: api.ReasoningAdded,
				Index: ev.SummaryIndex,
			},
		}}}

	case "response.reasoning_summary_text.delta":
		return Translation{Events: []api.Event{{
			Type: api.EventReasoningSummary,
			Reasoning: &api.ReasoningSummaryPayload{
				Phase: api.ReasoningAdded,
				Index: ev.SummaryIndex,
				Delta: ev.Delta,
			},
		}}}

	case "response.reasoning_summary_text.done", "response.reasoning_summary_part.done":
		return Translation{Events: []api.Event{{
			Type: api.EventReasoningSummary,
			Reasoning: &api.ReasoningSummaryPayload{
				Phase: api.ReasoningDone,
				Index: ev.SummaryIndex,
				Text:  ev.Text,
			},
		}}}

	case "response.output_item.added":
		if ev.Item != nil && ev.Item.Type == "function_call" {
			return Translation{Events: []api.Event{{
				Type: api.EventToolProgress,
				ToolProgress: &api.ToolProgressPayload{
					ToolName: ev.Item.Name,
				},
			}}}
		}
		return Translation{}

	case "response.completed":
		t := Translation{}
		if ev.Response != nil && ev.Response.Usage != nil {
			u := ev.Response.Usage
			usage := api.Usage{
				InputTokens:     u.InputTokens,
				CachedTokens:    u.InputTokensDetails.CachedTokens,
				OutputTokens:    u.OutputTokens,
				ReasoningTokens: u.OutputTokensDetails.ReasoningTokens,
				TotalTokens:     u.TotalTokens,
			}
			t.Usage = &usage
			t.Events = []api.Event{{
				Type:  api.EventUsageUpdate,
				Usage: &api.UsagePayload{Usage: usage},
			}}
		}
		return t

	case "response.failed":
		msg := "agent round failed"
		if ev.Response != nil && ev.Response.Error != nil && ev.Response.Error.Message != "" {
			msg = ev.Response.Error.Message
		}
		return Translation{Failed: msg}

	case "conversation.compacted":
		return Translation{Events: []api.Event{{
			Type:       api.EventCompaction,
			Compaction: &api.CompactionPayload{Message: ev.Message},
		}}}

	default:
		return Translation{Events: []api.Event{passthrough(ev.Type, raw)}}
	}
}

func passthrough(method string, raw json.RawMessage) api.Event {
	params := make(json.RawMessage, len(raw))
	copy(params, raw)
	return api.Event{
		Type: api.EventPassthrough,
		Passthrough: &api.PassthroughPayload{
			Method: method,
			Params: params,
		},
	}
}
