package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/engine/session"
	"CorpusAgent/pkg/engine/store"
	"CorpusAgent/pkg/engine/tools"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Fakes
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

type memThreadStore struct {
	mu sync.Mutex
	m  map[string]*api.Thread
}

func newMemThreadStore() *memThreadStore {
	return &memThreadStore{m: make(map[string]*api.Thread)}
}

func (s *memThreadStore) Get(ctx context.Context, id string) (*api.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memThreadStore) Put(ctx context.Context, id string, t *api.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.m[id] = &cp
	return nil
}

func (s *memThreadStore) Del(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *memThreadStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.m {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeConvAPI struct {
	mu    sync.Mutex
	items []api.ConversationItem
}

func (f *fakeConvAPI) CreateConversation(ctx context.Context) (string, error) {
	return "conv_test", nil
}

func (f *fakeConvAPI) AddItems(ctx context.Context, conversationID string, items []api.ConversationItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeConvAPI) ListItems(ctx context.Context, conversationID string) ([]api.ConversationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.ConversationItem(nil), f.items...), nil
}

// fakeAgent replays scripted round results. When block is set, Complete
// hangs until the context is cancelled.
type fakeAgent struct {
	mu     sync.Mutex
	rounds []RoundResult
	raws   [][]json.RawMessage
	next   int
	reqs   []AgentRequest
	block  bool
}

func (f *fakeAgent) Complete(ctx context.Context, req AgentRequest) (RoundResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block := f.block
	idx := f.next
	if idx < len(f.rounds) {
		f.next++
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return RoundResult{}, ctx.Err()
	}
	if idx >= len(f.rounds) {
		return RoundResult{}, &RemoteAgentError{Message: "script exhausted"}
	}
	return f.rounds[idx], nil
}

func (f *fakeAgent) Stream(ctx context.Context, req AgentRequest) (RawStream, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	idx := f.next
	if idx < len(f.rounds) {
		f.next++
	}
	f.mu.Unlock()

	if idx >= len(f.rounds) {
		return nil, &RemoteAgentError{Message: "script exhausted"}
	}
	var raws []json.RawMessage
	if idx < len(f.raws) {
		raws = f.raws[idx]
	}
	return &scriptedStream{events: raws, final: f.rounds[idx]}, nil
}

type scriptedStream struct {
	events []json.RawMessage
	final  RoundResult
	pos    int
}

func (s *scriptedStream) Recv(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func (s *scriptedStream) Final() (RoundResult, error) { return s.final, nil }
func (s *scriptedStream) Close() error                { return nil }

func newTestOrchestrator(t *testing.T, agent AgentClient, maxRounds int) (*Orchestrator, *fakeConvAPI, *memThreadStore) {
	t.Helper()

	turnLog, err := store.NewTurnLog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	conv := &fakeConvAPI{}
	threads := newMemThreadStore()

	orch, err := NewOrchestrator(Config{
		Agent:         agent,
		Tools:         tools.CorpusRegistry(t.TempDir()),
		Sessions:      session.NewStore(conv),
		Threads:       threads,
		TurnLog:       turnLog,
		Model:         "test-model",
		MaxRoundTrips: maxRounds,
	})
	if err != nil {
		t.Fatal(err)
	}
	return orch, conv, threads
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Tests
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestRunTurn_CompletesWithoutTools(t *testing.T) {
	agent := &fakeAgent{rounds: []RoundResult{{Text: "the answer"}}}
	orch, _, _ := newTestOrchestrator(t, agent, 5)

	result, err := orch.RunTurn(context.Background(), TurnRequest{UserText: "question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != api.TurnCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}
	if result.Text != "the answer" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.TurnsUsed != 1 {
		t.Fatalf("expected 1 round, got %d", result.TurnsUsed)
	}
	if !result.Usage.Estimated {
		t.Fatalf("expected estimated usage when provider reports none")
	}
}

func TestRunTurn_ExecutesToolsThenAnswers(t *testing.T) {
	agent := &fakeAgent{rounds: []RoundResult{
		{ToolCalls: []AgentToolCall{{CallID: "call_1", Name: "list_files", Arguments: "{}"}}},
		{Text: "done after tool"},
	}}
	orch, _, _ := newTestOrchestrator(t, agent, 5)

	result, err := orch.RunTurn(context.Background(), TurnRequest{UserText: "question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != api.TurnCompleted || result.TurnsUsed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()
	if len(agent.reqs) != 2 {
		t.Fatalf("expected 2 round-trips, got %d", len(agent.reqs))
	}
	second := agent.reqs[1]
	if second.UserText != "" {
		t.Fatalf("continuation round must not repeat the user text")
	}
	if len(second.ToolOutputs) != 1 || second.ToolOutputs[0].CallID != "call_1" {
		t.Fatalf("expected tool output for call_1, got %+v", second.ToolOutputs)
	}
}

func TestRunTurn_BudgetExhaustionCompletes(t *testing.T) {
	// The agent always wants another tool round; the budget stops it.
	toolRound := RoundResult{ToolCalls: []AgentToolCall{{CallID: "c", Name: "list_files", Arguments: "{}"}}}
	agent := &fakeAgent{rounds: []RoundResult{toolRound, toolRound, toolRound}}
	orch, _, _ := newTestOrchestrator(t, agent, 2)

	result, err := orch.RunTurn(context.Background(), TurnRequest{UserText: "question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != api.TurnCompleted {
		t.Fatalf("budget exhaustion must complete, got %s", result.Status)
	}
	if !result.BudgetExhausted {
		t.Fatalf("expected budget_exhausted flag")
	}
	if result.TurnsUsed != 2 {
		t.Fatalf("expected 2 rounds used, got %d", result.TurnsUsed)
	}
}

func TestRunTurn_RemoteFailureIsErrorStatus(t *testing.T) {
	agent := &fakeAgent{}
	orch, _, _ := newTestOrchestrator(t, agent, 3)

	result, err := orch.RunTurn(context.Background(), TurnRequest{UserText: "question"})
	if err != nil {
		t.Fatalf("turn failures surface in the result, not as errors: %v", err)
	}
	if result.Status != api.TurnError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if result.Error == "" {
		t.Fatalf("expected error message")
	}
}

func TestSend_InterruptYieldsInterruptedStatus(t *testing.T) {
	agent := &fakeAgent{block: true}
	orch, _, _ := newTestOrchestrator(t, agent, 3)

	stream, err := orch.Send(context.Background(), TurnRequest{UserText: "question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	interrupted := false
	for {
		e, err := stream.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.Type == api.EventMeta && !interrupted {
			interrupted = true
			go func(turnID string) {
				time.Sleep(50 * time.Millisecond)
				orch.Interrupt(turnID)
			}(e.Meta.TurnID)
		}
		if e.Type == api.EventDone {
			if e.Done.Status != api.TurnInterrupted {
				t.Fatalf("expected interrupted, got %s", e.Done.Status)
			}
			return
		}
	}
	t.Fatalf("stream ended without a done event")
}

func TestSend_EventSequenceIsMonotonic(t *testing.T) {
	agent := &fakeAgent{rounds: []RoundResult{{Text: "ok"}}}
	orch, _, _ := newTestOrchestrator(t, agent, 3)

	stream, err := orch.Send(context.Background(), TurnRequest{UserText: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	ctx := context.Background()
	var lastSeq int64
	var lastType api.EventType
	for {
		e, err := stream.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.Seq <= lastSeq {
			t.Fatalf("seq not monotonic: %d after %d", e.Seq, lastSeq)
		}
		lastSeq = e.Seq
		lastType = e.Type
	}
	if lastType != api.EventDone {
		t.Fatalf("expected done last, got %s", lastType)
	}
}

func TestStreaming_AnswerDeliveredAtomicallyInDone(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"type":"response.created"}`),
		json.RawMessage(`{"type":"response.output_text.delta","delta":"Hello "}`),
		json.RawMessage(`{"type":"response.output_text.delta","delta":"world"}`),
		json.RawMessage(`{"type":"response.output_text.done","text":"Hello world"}`),
	}
	agent := &fakeAgent{
		rounds: []RoundResult{{Text: "Hello world"}},
		raws:   [][]json.RawMessage{raws},
	}
	orch, _, _ := newTestOrchestrator(t, agent, 3)

	stream, err := orch.Send(context.Background(), TurnRequest{UserText: "q", Streaming: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	ctx := context.Background()
	for {
		e, err := stream.Recv(ctx)
		if err == io.EOF {
			t.Fatalf("stream ended without a done event")
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// No live event may carry answer text fragments.
		if e.Type == api.EventDone {
			if e.Done.Text != "Hello world" {
				t.Fatalf("expected full answer in done, got %q", e.Done.Text)
			}
			return
		}
		if e.Status != nil && strings.Contains(e.Status.Message, "Hello") {
			t.Fatalf("answer text leaked into a live event: %+v", e)
		}
	}
}

func TestRunTurn_PreviewTruncatedTo200Runes(t *testing.T) {
	long := strings.Repeat("é", 350)
	agent := &fakeAgent{rounds: []RoundResult{{Text: long}}}
	orch, _, threads := newTestOrchestrator(t, agent, 3)

	result, err := orch.RunTurn(context.Background(), TurnRequest{UserText: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	thread, err := threads.Get(context.Background(), result.ThreadID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runes := []rune(thread.Preview)
	if len(runes) != api.PreviewMaxChars+1 {
		t.Fatalf("expected %d runes plus ellipsis, got %d", api.PreviewMaxChars, len(runes))
	}
	if runes[len(runes)-1] != '…' {
		t.Fatalf("expected ellipsis suffix, got %q", string(runes[len(runes)-1]))
	}
}

func TestEnsureThread_UnknownIDIsAnError(t *testing.T) {
	agent := &fakeAgent{}
	orch, _, _ := newTestOrchestrator(t, agent, 3)

	_, err := orch.EnsureThread(context.Background(), "thread_missing")
	if err == nil {
		t.Fatalf("expected error for unknown thread")
	}
	if !strings.Contains(err.Error(), api.ErrThreadNotFound) {
		t.Fatalf("expected %s, got %v", api.ErrThreadNotFound, err)
	}
}

func TestRunTurn_PersistsUserAndAssistantMessages(t *testing.T) {
	agent := &fakeAgent{rounds: []RoundResult{{Text: "answer", ReasoningSummaries: []string{"chain"}}}}
	orch, conv, _ := newTestOrchestrator(t, agent, 3)

	if _, err := orch.RunTurn(context.Background(), TurnRequest{UserText: "question"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	var kinds []string
	for _, it := range conv.items {
		kinds = append(kinds, fmt.Sprintf("%s/%s", it.Kind, it.Role))
	}
	// user message, then reasoning with its assistant follower.
	want := []string{"message/user", "reasoning/", "message/assistant"}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}
