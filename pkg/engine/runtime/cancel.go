package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CorpusAgent/pkg/logger"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Cancellation Registry
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Handle is the cancellation handle of one in-flight turn.
type Handle struct {
	TurnID    string
	ThreadID  string
	CreatedAt time.Time

	cancel context.CancelFunc
}

// Registry is the process-wide table of in-flight turns, keyed by turn
// identifier. It is in-memory only: a restart loses the ability to
// interrupt previously started turns. Registries are injected, never
// ambient, so tests can substitute a fresh one per case.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty cancellation registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register inserts a handle for a starting turn. At most one handle may
// exist per turn identifier.
func (r *Registry) Register(turnID, threadID string, cancel context.CancelFunc) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[turnID]; exists {
		return nil, fmt.Errorf("turn already registered: %s", turnID)
	}
	h := &Handle{
		TurnID:    turnID,
		ThreadID:  threadID,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}
	r.handles[turnID] = h
	return h, nil
}

// Remove drops a turn's handle. Called exactly when the turn finalizes,
// never earlier.
func (r *Registry) Remove(turnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, turnID)
}

// Interrupt cancels an in-flight turn. Unknown or already-finished turn
// identifiers are a no-op; stale interrupts never raise.
func (r *Registry) Interrupt(turnID string) bool {
	r.mu.Lock()
	h, ok := r.handles[turnID]
	r.mu.Unlock()

	if !ok {
		logger.Debug("Cancel", "Interrupt for unknown turn ignored", map[string]interface{}{
			"turn_id": turnID,
		})
		return false
	}
	h.cancel()
	return true
}

// Len returns the number of in-flight turns.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
