package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"CorpusAgent/pkg/engine/api"
)

func newTestThreadStore(t *testing.T) *FileThreadStore {
	t.Helper()
	s, err := NewFileThreadStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFileThreadStore_PutGetRoundtrip(t *testing.T) {
	s := newTestThreadStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	in := &api.Thread{
		ThreadID:  "thread_1",
		CreatedAt: now,
		UpdatedAt: now,
		Preamble:  "You are helping a historian.",
		Preview:   "last answer",
	}
	if err := s.Put(ctx, in.ThreadID, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ThreadID != in.ThreadID || got.Preamble != in.Preamble || got.Preview != in.Preview {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestFileThreadStore_GetMissingIsErrNotFound(t *testing.T) {
	s := newTestThreadStore(t)

	_, err := s.Get(context.Background(), "thread_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileThreadStore_RejectsTraversalIDs(t *testing.T) {
	s := newTestThreadStore(t)
	ctx := context.Background()

	for _, id := range []string{"../escape", "../../etc/passwd", ".."} {
		if _, err := s.Get(ctx, id); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Get(%q): expected ErrInvalidPath, got %v", id, err)
		}
		if err := s.Put(ctx, id, &api.Thread{ThreadID: id}); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Put(%q): expected ErrInvalidPath, got %v", id, err)
		}
	}
}

func TestFileThreadStore_Del(t *testing.T) {
	s := newTestThreadStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "thread_1", &api.Thread{ThreadID: "thread_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Del(ctx, "thread_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(ctx, "thread_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Del(ctx, "thread_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
}

func TestFileThreadStore_ListSkipsTempFiles(t *testing.T) {
	s := newTestThreadStore(t)
	ctx := context.Background()

	for _, id := range []string{"thread_a", "thread_b"} {
		if err := s.Put(ctx, id, &api.Thread{ThreadID: id}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// A leftover temp file from an interrupted write must not be listed.
	leftover := filepath.Join(s.baseDir, "thread_c.json.tmp")
	if err := os.WriteFile(leftover, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 threads, got %v", ids)
	}
}
