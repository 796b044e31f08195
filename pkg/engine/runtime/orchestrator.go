package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/engine/middleware"
	"CorpusAgent/pkg/engine/session"
	"CorpusAgent/pkg/engine/store"
	"CorpusAgent/pkg/engine/tools"
	"CorpusAgent/pkg/logger"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Configuration
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	// DefaultMaxRoundTrips bounds agent round-trips per turn.
	DefaultMaxRoundTrips = 25

	// DefaultTurnTimeout is the wall-clock ceiling for one turn.
	DefaultTurnTimeout = 10 * time.Minute

	eventStreamBuffer = 64
)

// RemoteAgentError wraps a failure reported by the remote agent provider.
type RemoteAgentError struct {
	Message string
}

func (e *RemoteAgentError) Error() string {
	return fmt.Sprintf("%s: %s", api.ErrRemoteAgent, e.Message)
}

// Config wires the orchestrator's collaborators. Agent, Tools, Sessions,
// Threads and TurnLog are required.
type Config struct {
	Agent    AgentClient
	Tools    *tools.Registry
	Sessions *session.Store
	Threads  store.ThreadStore
	TurnLog  *store.TurnLog
	Cancels  *Registry

	// Cost computes dollar cost from usage. Defaults to ZeroCost.
	Cost CostFunc

	// Instructions composes the per-turn instruction block. Defaults to
	// preamble plus the fixed operational directives.
	Instructions *middleware.Chain

	// Model is the default model for turns that do not name one.
	Model string

	MaxRoundTrips int
	TurnTimeout   time.Duration
}

// TurnRequest describes one user turn.
type TurnRequest struct {
	ThreadID string // empty creates a new thread
	Model    string // empty uses the configured default
	UserText string

	// Streaming selects live provider event streaming; when false the
	// orchestrator synthesizes progress events from blocking round-trips.
	Streaming bool
}

// Orchestrator drives turns: it brokers between the remote agent, the local
// tool registry, the session store and the event stream.
type Orchestrator struct {
	cfg Config
}

// NewOrchestrator creates an orchestrator, applying config defaults.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Agent == nil || cfg.Tools == nil || cfg.Sessions == nil || cfg.Threads == nil || cfg.TurnLog == nil {
		return nil, fmt.Errorf("orchestrator config is missing a required component")
	}
	if cfg.Cancels == nil {
		cfg.Cancels = NewRegistry()
	}
	if cfg.Cost == nil {
		cfg.Cost = ZeroCost
	}
	if cfg.Instructions == nil {
		cfg.Instructions = middleware.DefaultChain()
	}
	if cfg.MaxRoundTrips <= 0 {
		cfg.MaxRoundTrips = DefaultMaxRoundTrips
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Interrupt cancels an in-flight turn. Unknown turn ids are a no-op.
func (o *Orchestrator) Interrupt(turnID string) bool {
	return o.cfg.Cancels.Interrupt(turnID)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Thread Management
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EnsureThread loads an existing thread or creates a new one when id is
// empty. Unknown non-empty ids are an error, never silently recreated.
func (o *Orchestrator) EnsureThread(ctx context.Context, threadID string) (*api.Thread, error) {
	if threadID != "" {
		t, err := o.cfg.Threads.Get(ctx, threadID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %s", api.ErrThreadNotFound, threadID)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v", api.ErrStoreError, err)
		}
		return t, nil
	}

	now := time.Now()
	t := &api.Thread{
		ThreadID:  "thread_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.cfg.Threads.Put(ctx, t.ThreadID, t); err != nil {
		return nil, fmt.Errorf("%s: %v", api.ErrStoreError, err)
	}
	logger.Info("Orchestrator", "Created thread", map[string]interface{}{
		"thread_id": t.ThreadID,
	})
	return t, nil
}

// SetPreamble updates a thread's operator preamble. It applies to turns
// started after the call, never to in-flight ones.
func (o *Orchestrator) SetPreamble(ctx context.Context, threadID, preamble string) error {
	t, err := o.EnsureThread(ctx, threadID)
	if err != nil {
		return err
	}
	t.Preamble = preamble
	t.UpdatedAt = time.Now()
	if err := o.cfg.Threads.Put(ctx, t.ThreadID, t); err != nil {
		return fmt.Errorf("%s: %v", api.ErrStoreError, err)
	}
	return nil
}

// ListThreads returns all threads, most recently updated first.
func (o *Orchestrator) ListThreads(ctx context.Context) ([]*api.Thread, error) {
	ids, err := o.cfg.Threads.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", api.ErrStoreError, err)
	}
	threads := make([]*api.Thread, 0, len(ids))
	for _, id := range ids {
		t, err := o.cfg.Threads.Get(ctx, id)
		if err != nil {
			logger.Warn("Orchestrator", "Skipping unreadable thread", map[string]interface{}{
				"thread_id": id,
				"error":     err.Error(),
			})
			continue
		}
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

// ThreadMessages returns a thread's persisted message history in order.
func (o *Orchestrator) ThreadMessages(ctx context.Context, threadID string) ([]api.ConversationItem, error) {
	if _, err := o.EnsureThread(ctx, threadID); err != nil {
		return nil, err
	}
	h, err := o.cfg.Sessions.GetOrCreate(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return o.cfg.Sessions.ReadItems(ctx, h)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn Entry Points
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Send starts a turn and returns its event stream. The turn runs in a
// background goroutine; the stream ends after the done event.
func (o *Orchestrator) Send(ctx context.Context, req TurnRequest) (api.EventStream, error) {
	if strings.TrimSpace(req.UserText) == "" {
		return nil, fmt.Errorf("%s: empty user text", api.ErrValidation)
	}
	thread, err := o.EnsureThread(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}

	turnID := "turn_" + uuid.NewString()
	turnCtx, cancel := context.WithCancel(ctx)
	if _, err := o.cfg.Cancels.Register(turnID, thread.ThreadID, cancel); err != nil {
		cancel()
		return nil, err
	}
	watchdog := time.AfterFunc(o.cfg.TurnTimeout, cancel)

	stream := NewChannelEventStream(eventStreamBuffer)
	go o.runTurn(turnCtx, cancel, watchdog, stream, thread, turnID, model, req)
	return stream, nil
}

// RunTurn runs a turn to completion and returns its result, draining the
// event stream internally.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (api.TurnResult, error) {
	stream, err := o.Send(ctx, req)
	if err != nil {
		return api.TurnResult{}, err
	}
	defer stream.Close()

	var result api.TurnResult
	for {
		ev, err := stream.Recv(ctx)
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		if ev.Type == api.EventDone && ev.Done != nil {
			result = api.TurnResult{
				TurnID:          ev.TurnID,
				ThreadID:        ev.ThreadID,
				Status:          ev.Done.Status,
				Text:            ev.Done.Text,
				TurnsUsed:       ev.Done.TurnsUsed,
				BudgetExhausted: ev.Done.BudgetExhausted,
				Usage:           ev.Done.Usage,
				Error:           ev.Done.Error,
			}
		}
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn Runner
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// turnState accumulates everything a turn produces before finalization.
type turnState struct {
	answer    strings.Builder
	finalText string
	reasoning []string
	toolCalls []api.ToolCallRecord
	usage     api.Usage
	usageSeen bool

	toolChars      int
	reasoningChars int
	roundsUsed     int
	budgetHit      bool
}

func (o *Orchestrator) runTurn(ctx context.Context, cancel context.CancelFunc, watchdog *time.Timer, stream *ChannelEventStream, thread *api.Thread, turnID, model string, req TurnRequest) {
	startedAt := time.Now()

	writer, werr := o.cfg.TurnLog.OpenTurn(thread.ThreadID)
	if werr != nil {
		logger.Error("Orchestrator", "Failed to open turn log", map[string]interface{}{
			"thread_id": thread.ThreadID,
			"error":     werr.Error(),
		})
	}

	var seq atomic.Int64
	emit := func(e api.Event) {
		e.Version = 1
		e.ThreadID = thread.ThreadID
		e.TurnID = turnID
		e.Seq = seq.Add(1)
		if e.Ts.IsZero() {
			e.Ts = time.Now()
		}
		if writer != nil {
			if err := writer.AppendEvent(e); err != nil && err != io.ErrClosedPipe {
				logger.Warn("Orchestrator", "Turn log append failed", map[string]interface{}{
					"turn_id": turnID,
					"error":   err.Error(),
				})
			}
		}
		if err := stream.Send(e); err != nil {
			logger.Debug("Orchestrator", "Event dropped on closed stream", map[string]interface{}{
				"turn_id": turnID,
				"type":    string(e.Type),
			})
		}
	}

	defer func() {
		watchdog.Stop()
		cancel()
		o.cfg.Cancels.Remove(turnID)
		if writer != nil {
			writer.Close()
		}
		stream.Close()
	}()

	emit(api.Event{
		Type: api.EventMeta,
		Meta: &api.MetaPayload{ThreadID: thread.ThreadID, TurnID: turnID},
	})
	emit(api.Event{
		Type:   api.EventStatus,
		Status: &api.StatusPayload{Message: "starting"},
	})

	st := &turnState{}
	loopErr := o.agentLoop(ctx, thread, model, req, st, emit)

	// Map the loop outcome to a terminal status exactly once.
	status := api.TurnCompleted
	var errCode, errMsg string
	switch {
	case loopErr == nil:
	case errors.Is(loopErr, context.Canceled), errors.Is(loopErr, context.DeadlineExceeded):
		status = api.TurnInterrupted
	default:
		status = api.TurnError
		errMsg = loopErr.Error()
		errCode = api.ErrRemoteAgent
		var rerr *RemoteAgentError
		if !errors.As(loopErr, &rerr) {
			errCode = api.ErrStoreError
		}
		emit(api.Event{
			Type:  api.EventError,
			Error: &api.ErrorPayload{Code: errCode, Message: errMsg},
		})
	}

	text := st.finalText
	if text == "" {
		text = st.answer.String()
	}

	usage := st.usage
	if !st.usageSeen {
		usage = EstimateUsage(len(req.UserText), st.toolChars, st.reasoningChars, len(text))
	}
	usage.CostUSD = o.cfg.Cost(model, usage)

	if status == api.TurnCompleted {
		o.persistOutcome(ctx, thread, st, text)
	}

	turn := api.Turn{
		TurnID:          turnID,
		ThreadID:        thread.ThreadID,
		Model:           model,
		StartedAt:       startedAt,
		FinishedAt:      time.Now(),
		Status:          status,
		Text:            text,
		Usage:           usage,
		ToolCalls:       st.toolCalls,
		Reasoning:       st.reasoning,
		TurnsUsed:       st.roundsUsed,
		BudgetExhausted: st.budgetHit,
		Error:           errMsg,
	}

	emit(api.Event{
		Type: api.EventDone,
		Done: &api.DonePayload{
			Status:          status,
			Text:            text,
			TurnsUsed:       st.roundsUsed,
			BudgetExhausted: st.budgetHit,
			Usage:           usage,
			Error:           errMsg,
		},
	})

	if writer != nil {
		if err := writer.AppendTurn(turn); err != nil {
			logger.Warn("Orchestrator", "Turn record append failed", map[string]interface{}{
				"turn_id": turnID,
				"error":   err.Error(),
			})
		}
	}

	logger.Info("Orchestrator", "Turn finished", map[string]interface{}{
		"turn_id":     turnID,
		"thread_id":   thread.ThreadID,
		"status":      string(status),
		"rounds":      st.roundsUsed,
		"tool_calls":  len(st.toolCalls),
		"duration_ms": time.Since(startedAt).Milliseconds(),
	})
}

// persistOutcome writes the completed answer into the session store and the
// thread preview. Both are best-effort: failures never change the turn's
// status.
func (o *Orchestrator) persistOutcome(ctx context.Context, thread *api.Thread, st *turnState, text string) {
	h, err := o.cfg.Sessions.GetOrCreate(ctx, thread.ThreadID)
	if err == nil {
		items := make([]api.ConversationItem, 0, len(st.reasoning)+1)
		for _, r := range st.reasoning {
			items = append(items, api.ConversationItem{Kind: api.ItemReasoning, Text: r})
		}
		items = append(items, api.ConversationItem{Kind: api.ItemMessage, Role: "assistant", Text: text})
		if err := o.cfg.Sessions.AppendItems(ctx, h, items); err != nil {
			var werr *session.WriteError
			if errors.As(err, &werr) {
				logger.Warn("Orchestrator", "Partial session append", map[string]interface{}{
					"thread_id":    thread.ThreadID,
					"sent_batches": werr.SentBatches,
					"error":        werr.Error(),
				})
			} else {
				logger.Warn("Orchestrator", "Session append failed", map[string]interface{}{
					"thread_id": thread.ThreadID,
					"error":     err.Error(),
				})
			}
		}
	}

	thread.Preview = api.MakePreview(text)
	thread.UpdatedAt = time.Now()
	if err := o.cfg.Threads.Put(ctx, thread.ThreadID, thread); err != nil {
		logger.Warn("Orchestrator", "Thread preview update failed", map[string]interface{}{
			"thread_id": thread.ThreadID,
			"error":     err.Error(),
		})
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Agent Loop
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) agentLoop(ctx context.Context, thread *api.Thread, model string, req TurnRequest, st *turnState, emit func(api.Event)) error {
	h, err := o.cfg.Sessions.GetOrCreate(ctx, thread.ThreadID)
	if err != nil {
		return err
	}

	// The user message persists even if the turn later fails.
	userItem := []api.ConversationItem{{Kind: api.ItemMessage, Role: "user", Text: req.UserText}}
	if err := o.cfg.Sessions.AppendItems(ctx, h, userItem); err != nil {
		logger.Warn("Orchestrator", "User message append failed", map[string]interface{}{
			"thread_id": thread.ThreadID,
			"error":     err.Error(),
		})
	}

	var schemas []tools.Schema
	for _, t := range o.cfg.Tools.All() {
		schemas = append(schemas, t.Schema())
	}

	instructions, err := o.cfg.Instructions.Build(ctx, thread.Preamble)
	if err != nil {
		return err
	}

	agentReq := AgentRequest{
		Model:          model,
		Instructions:   instructions,
		ConversationID: h.ConversationID,
		UserText:       req.UserText,
		Tools:          schemas,
	}

	for round := 1; round <= o.cfg.MaxRoundTrips; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.roundsUsed = round

		var result RoundResult
		var err error
		if req.Streaming {
			result, err = o.streamRound(ctx, agentReq, st, emit)
		} else {
			result, err = o.blockingRound(ctx, agentReq, st, emit)
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return err
		}

		st.reasoning = append(st.reasoning, result.ReasoningSummaries...)
		for _, r := range result.ReasoningSummaries {
			st.reasoningChars += len(r)
		}
		if result.Usage != nil {
			addUsage(&st.usage, *result.Usage)
			st.usageSeen = true
		}
		if result.Text != "" {
			st.finalText = result.Text
		}

		if len(result.ToolCalls) == 0 {
			return nil
		}

		outputs, err := o.executeToolCalls(ctx, result.ToolCalls, st, emit)
		if err != nil {
			return err
		}

		// Continuation rounds carry tool outputs, never the user text.
		agentReq.UserText = ""
		agentReq.ToolOutputs = outputs
	}

	// Round-trip budget exhausted with tool calls still pending. The turn
	// completes with whatever answer exists; it does not error.
	st.budgetHit = true
	logger.Warn("Orchestrator", "Round-trip budget exhausted", map[string]interface{}{
		"thread_id": thread.ThreadID,
		"rounds":    st.roundsUsed,
	})
	if st.finalText == "" && st.answer.Len() == 0 {
		st.finalText = "I could not finish within the allowed number of steps. Partial findings may be incomplete."
	}
	return nil
}

// streamRound runs one round-trip over the live event stream, forwarding
// normalized process events and buffering answer text.
func (o *Orchestrator) streamRound(ctx context.Context, agentReq AgentRequest, st *turnState, emit func(api.Event)) (RoundResult, error) {
	rs, err := o.cfg.Agent.Stream(ctx, agentReq)
	if err != nil {
		return RoundResult{}, err
	}
	defer rs.Close()

	for {
		raw, err := rs.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return RoundResult{}, err
		}
		t := TranslateRawEvent(raw)
		for _, e := range t.Events {
			emit(e)
		}
		if t.AnswerDelta != "" {
			st.answer.WriteString(t.AnswerDelta)
		}
		if t.Failed != "" {
			return RoundResult{}, &RemoteAgentError{Message: t.Failed}
		}
	}
	return rs.Final()
}

// blockingRound runs one round-trip without streaming and synthesizes the
// process events the stream would have carried.
func (o *Orchestrator) blockingRound(ctx context.Context, agentReq AgentRequest, st *turnState, emit func(api.Event)) (RoundResult, error) {
	result, err := o.cfg.Agent.Complete(ctx, agentReq)
	if err != nil {
		return RoundResult{}, err
	}
	for i, summary := range result.ReasoningSummaries {
		emit(api.Event{
			Type: api.EventReasoningSummary,
			Reasoning: &api.ReasoningSummaryPayload{
				Phase: api.ReasoningDone,
				Index: i,
				Text:  summary,
			},
		})
	}
	if result.Usage != nil {
		emit(api.Event{
			Type:  api.EventUsageUpdate,
			Usage: &api.UsagePayload{Usage: *result.Usage},
		})
	}
	return result, nil
}

// executeToolCalls runs the agent's requested tool calls in order and
// returns their serialized outputs for the next round-trip.
func (o *Orchestrator) executeToolCalls(ctx context.Context, calls []AgentToolCall, st *turnState, emit func(api.Event)) ([]ToolOutput, error) {
	outputs := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var args api.Args
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				args = nil
			}
		}

		emit(api.Event{
			Type: api.EventToolProgress,
			ToolProgress: &api.ToolProgressPayload{
				ToolName: call.Name,
				Payload:  args,
			},
		})

		start := time.Now()
		output, status := o.runTool(ctx, call, args)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st.toolChars += len(output)
		st.toolCalls = append(st.toolCalls, api.ToolCallRecord{
			ToolCallID: call.CallID,
			ToolName:   call.Name,
			Args:       args,
			Status:     status,
			OutputLen:  len(output),
			DurationMs: time.Since(start).Milliseconds(),
		})
		outputs = append(outputs, ToolOutput{CallID: call.CallID, Output: output})
	}
	return outputs, nil
}

// runTool executes one tool call. Failures are serialized into the output
// so the agent can adapt; they never abort the turn.
func (o *Orchestrator) runTool(ctx context.Context, call AgentToolCall, args api.Args) (output, status string) {
	tool, ok := o.cfg.Tools.Get(call.Name)
	if !ok {
		return toolFailure(fmt.Sprintf("unknown tool: %s", call.Name)), "error"
	}
	if args == nil && call.Arguments != "" {
		return toolFailure(fmt.Sprintf("%s: malformed tool arguments", api.ErrValidation)), "error"
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		logger.Error("Orchestrator", "Tool execution failed", map[string]interface{}{
			"tool":  call.Name,
			"error": err.Error(),
		})
		return toolFailure(err.Error()), "error"
	}
	if result.Status == "error" {
		return toolFailure(result.Error), "error"
	}
	return result.Content, "success"
}

func toolFailure(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return msg
	}
	return string(data)
}

func addUsage(dst *api.Usage, u api.Usage) {
	dst.InputTokens += u.InputTokens
	dst.CachedTokens += u.CachedTokens
	dst.OutputTokens += u.OutputTokens
	dst.ReasoningTokens += u.ReasoningTokens
	dst.TotalTokens += u.TotalTokens
}
