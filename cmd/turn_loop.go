package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"CorpusAgent/cmd/ui"
	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/engine/runtime"
)

// runTurn sends one user message and renders the event stream until the
// turn finishes. The final answer arrives atomically in the done event;
// only process events (reasoning, tools, usage) render live.
func runTurn(ctx context.Context, orch *runtime.Orchestrator, req runtime.TurnRequest) (*api.TurnResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := orch.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	// Raw-mode ESC monitor; a double ESC interrupts the turn.
	cleanup := monitorCancellation(ctx, cancel)
	defer cleanup()

	stopSpinner, spinnerDone := ui.StartLoading("Thinking...")
	spinnerStopped := false
	stopLoading := func() {
		if !spinnerStopped {
			close(stopSpinner)
			<-spinnerDone
			spinnerStopped = true
		}
	}
	defer stopLoading()

	reasoningBuffer := ""

	for {
		e, err := stream.Recv(ctx)
		if err == io.EOF {
			return nil, fmt.Errorf("stream ended without a done event")
		}
		if err != nil {
			// An interrupted turn still delivers its done event; only a
			// broken stream lands here.
			return nil, err
		}

		switch e.Type {
		case api.EventStatus:
			// The spinner already conveys liveness.

		case api.EventMeta:
			// Thread/turn ids are surfaced by the caller when needed.

		case api.EventReasoningSummary:
			if e.Reasoning == nil {
				continue
			}
			stopLoading()
			switch e.Reasoning.Phase {
			case api.ReasoningAdded:
				if e.Reasoning.Delta == "" {
					continue
				}
				// Scrolling gray display of the reasoning trace.
				reasoningBuffer += e.Reasoning.Delta
				display := strings.ReplaceAll(reasoningBuffer, "\n", " ")
				if len(display) > 80 {
					display = "..." + display[len(display)-77:]
				}
				ui.Printf("\r\033[90m🧠 %s\033[0m\033[K", display)
			case api.ReasoningDone:
				if reasoningBuffer != "" {
					ui.Print("\r\033[K")
					reasoningBuffer = ""
				}
			}

		case api.EventToolProgress:
			if e.ToolProgress == nil {
				continue
			}
			stopLoading()
			if reasoningBuffer != "" {
				ui.Print("\r\033[K")
				reasoningBuffer = ""
			}
			ui.Printf("\n🔧 tool_call %s %s\n", e.ToolProgress.ToolName, summarizeArgs(e.ToolProgress.Payload))

		case api.EventCompaction:
			stopLoading()
			msg := "conversation history compacted"
			if e.Compaction != nil && e.Compaction.Message != "" {
				msg = e.Compaction.Message
			}
			ui.Printf("\n📦 %s\n", msg)

		case api.EventUsageUpdate:
			// Rendered once at turn end from the done payload.

		case api.EventPassthrough:
			// Unknown provider events are safe to ignore in the CLI.

		case api.EventError:
			stopLoading()
			if e.Error != nil {
				ui.Printf("\n❌ %s: %s\n", e.Error.Code, e.Error.Message)
			}

		case api.EventDone:
			stopLoading()
			if e.Done == nil {
				return nil, fmt.Errorf("done event missing payload")
			}
			result := &api.TurnResult{
				TurnID:          e.TurnID,
				ThreadID:        e.ThreadID,
				Status:          e.Done.Status,
				Text:            e.Done.Text,
				TurnsUsed:       e.Done.TurnsUsed,
				BudgetExhausted: e.Done.BudgetExhausted,
				Usage:           e.Done.Usage,
				Error:           e.Done.Error,
			}
			renderResult(result)
			return result, nil
		}
	}
}

// summarizeArgs renders tool arguments in one short line.
func summarizeArgs(args api.Args) string {
	if len(args) == 0 {
		return ""
	}
	if q, ok := args["query"].(string); ok {
		return fmt.Sprintf("(query=%q)", q)
	}
	if p, ok := args["path"].(string); ok {
		return fmt.Sprintf("(path=%q)", p)
	}
	return fmt.Sprintf("(%d args)", len(args))
}

func renderResult(r *api.TurnResult) {
	switch r.Status {
	case api.TurnCompleted:
		ui.Printf("\n🤖 Agent: %s\n", r.Text)
		if r.BudgetExhausted {
			ui.Println("\n⚠️  Stopped at the round-trip budget; the answer may be partial.")
		}
	case api.TurnInterrupted:
		ui.Println("\n🛑 Turn interrupted.")
		if r.Text != "" {
			ui.Printf("Partial answer: %s\n", r.Text)
		}
	case api.TurnError:
		ui.Printf("\n❌ Turn failed: %s\n", r.Error)
	}

	estimate := ""
	if r.Usage.Estimated {
		estimate = " (estimated)"
	}
	ui.Printf("\033[90m   tokens: %d in / %d out, cost: $%.4f%s, rounds: %d\033[0m\n",
		r.Usage.InputTokens, r.Usage.OutputTokens, r.Usage.CostUSD, estimate, r.TurnsUsed)
}
