package store

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"CorpusAgent/pkg/engine/api"
)

func newTestTurnLog(t *testing.T) *TurnLog {
	t.Helper()
	l, err := NewTurnLog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestTurnLog_AppendAndReplayInOrder(t *testing.T) {
	l := newTestTurnLog(t)
	ctx := context.Background()

	w, err := l.OpenTurn("thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i <= 3; i++ {
		e := api.Event{Type: api.EventStatus, Seq: int64(i), Status: &api.StatusPayload{Message: "working"}}
		if err := w.AppendEvent(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := w.AppendTurn(api.Turn{TurnID: "turn_1", ThreadID: "thread_1", Status: api.TurnCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, turns, err := l.Replay(ctx, "thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 || len(turns) != 1 {
		t.Fatalf("expected 3 events and 1 turn, got %d/%d", len(events), len(turns))
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Fatalf("replay out of order at %d: seq %d", i, e.Seq)
		}
	}
	if turns[0].TurnID != "turn_1" {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
}

func TestTurnLog_ReplayToleratesTornLines(t *testing.T) {
	l := newTestTurnLog(t)
	ctx := context.Background()

	w, err := l.OpenTurn("thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.AppendEvent(api.Event{Type: api.EventStatus, Seq: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Close()

	// Simulate a crash mid-write: a torn, unparseable trailing line.
	f, err := os.OpenFile(l.path("thread_1"), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"kind":"event","ev`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, _, err := l.Replay(ctx, "thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the intact event only, got %d", len(events))
	}
}

func TestTurnLog_ReplayMissingThreadIsEmpty(t *testing.T) {
	l := newTestTurnLog(t)

	events, turns, err := l.Replay(context.Background(), "thread_nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 || len(turns) != 0 {
		t.Fatalf("expected empty replay, got %d/%d", len(events), len(turns))
	}
}

func TestTurnWriter_CloseIsIdempotent(t *testing.T) {
	l := newTestTurnLog(t)

	w, err := l.OpenTurn("thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
	if err := w.AppendEvent(api.Event{Type: api.EventStatus}); err != io.ErrClosedPipe {
		t.Fatalf("expected ErrClosedPipe after close, got %v", err)
	}
}

func TestTurnLog_RejectsTraversalIDs(t *testing.T) {
	l := newTestTurnLog(t)

	if _, err := l.OpenTurn("../escape"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if _, _, err := l.Replay(context.Background(), "../escape"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}
