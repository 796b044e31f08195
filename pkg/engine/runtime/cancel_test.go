package runtime

import (
	"context"
	"testing"
)

func TestRegistry_InterruptCancelsContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := r.Register("turn_1", "thread_1", cancel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Interrupt("turn_1") {
		t.Fatalf("expected interrupt to report success")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected context to be cancelled")
	}
}

func TestRegistry_StaleInterruptIsNoOp(t *testing.T) {
	r := NewRegistry()
	if r.Interrupt("turn_unknown") {
		t.Fatalf("interrupt for unknown turn must be a no-op")
	}

	// A finished turn (removed handle) behaves the same.
	_, cancel := context.WithCancel(context.Background())
	if _, err := r.Register("turn_1", "thread_1", cancel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Remove("turn_1")
	if r.Interrupt("turn_1") {
		t.Fatalf("interrupt after removal must be a no-op")
	}
}

func TestRegistry_DuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	_, cancel := context.WithCancel(context.Background())

	if _, err := r.Register("turn_1", "thread_1", cancel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register("turn_1", "thread_1", cancel); err == nil {
		t.Fatalf("expected error for duplicate registration")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 handle, got %d", r.Len())
	}
}
