package session

import (
	"context"
	"fmt"
	"sync"

	"CorpusAgent/pkg/engine/api"
	"CorpusAgent/pkg/logger"
)

// ConversationAPI is the durable remote conversation store. It accepts
// ordered item batches of at most BatchCeiling items and rejects batches
// that separate a reasoning item from its immediate follower; the Store is
// solely responsible for respecting both constraints.
type ConversationAPI interface {
	CreateConversation(ctx context.Context) (string, error)
	AddItems(ctx context.Context, conversationID string, items []api.ConversationItem) error
	ListItems(ctx context.Context, conversationID string) ([]api.ConversationItem, error)
}

// WriteError reports a failed append. Batches sent before the failure stay
// persisted remotely (there is no rollback); callers must treat this as
// partial success and must not retry the already-sent batches.
type WriteError struct {
	SentBatches int
	Err         error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %d batch(es) sent before failure: %v", api.ErrSessionWrite, e.SentBatches, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Handle is the ownership-bound binding between a thread and a remote
// conversation. Callers never touch the transport directly.
type Handle struct {
	ThreadID       string
	ConversationID string

	mu sync.Mutex
	// pending is a reasoning item held back from the previous append because
	// it had no successor in that call; it is prepended to the next delta so
	// it always ships with its follower.
	pending *api.ConversationItem
}

// Store maps thread identifiers to remote conversation handles. Exactly one
// handle exists per thread per process lifetime; handles are created lazily
// and cached.
type Store struct {
	remote ConversationAPI

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewStore creates a session store over the given remote conversation API.
func NewStore(remote ConversationAPI) *Store {
	return &Store{
		remote:  remote,
		handles: make(map[string]*Handle),
	}
}

// GetOrCreate returns the cached handle for a thread or creates one bound
// to a fresh remote conversation.
func (s *Store) GetOrCreate(ctx context.Context, threadID string) (*Handle, error) {
	s.mu.Lock()
	if h, ok := s.handles[threadID]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	conversationID, err := s.remote.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent caller may have won the race; its handle stays canonical.
	if h, ok := s.handles[threadID]; ok {
		return h, nil
	}
	h := &Handle{ThreadID: threadID, ConversationID: conversationID}
	s.handles[threadID] = h

	logger.Info("Session", "Bound thread to remote conversation", map[string]interface{}{
		"thread_id":       threadID,
		"conversation_id": conversationID,
	})
	return h, nil
}

// AppendItems persists a conversation delta. Items are filtered to message
// and reasoning kinds, merged with any pending held-back item, chunked into
// ceiling-sized batches that never split a reasoning item from its
// follower, and sent strictly in order, awaiting each batch before the
// next. Correctness of remote item order depends on the sequential sends.
func (s *Store) AppendItems(ctx context.Context, h *Handle, items []api.ConversationItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delta := persistable(items)
	if h.pending != nil {
		delta = append([]api.ConversationItem{*h.pending}, delta...)
		h.pending = nil
	}

	// Hold back a trailing reasoning item: it must ship with its follower,
	// which will arrive in a later call.
	var hold *api.ConversationItem
	if n := len(delta); n > 0 && delta[n-1].NeedsFollower() {
		last := delta[n-1]
		hold = &last
		delta = delta[:n-1]
	}

	batches := ChunkItems(delta, BatchCeiling)
	for i, batch := range batches {
		if err := s.remote.AddItems(ctx, h.ConversationID, batch); err != nil {
			// The held-back item was never attempted; keep it pending so a
			// later append still delivers it with its follower.
			h.pending = hold
			return &WriteError{SentBatches: i, Err: err}
		}
	}

	h.pending = hold
	return nil
}

// ReadItems returns the thread's persisted message items in order, for
// reconstructing user-visible history.
func (s *Store) ReadItems(ctx context.Context, h *Handle) ([]api.ConversationItem, error) {
	items, err := s.remote.ListItems(ctx, h.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation items: %w", err)
	}
	out := make([]api.ConversationItem, 0, len(items))
	for _, it := range items {
		if it.Kind == api.ItemMessage {
			out = append(out, it)
		}
	}
	return out, nil
}
