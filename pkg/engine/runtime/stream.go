// Package runtime provides the turn orchestration engine.
package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"

	"CorpusAgent/pkg/engine/api"
)

// ChannelEventStream implements api.EventStream using a buffered channel.
//
// Close may be called by the consumer while the turn goroutine is still
// sending, so shutdown is signalled through a separate done channel; the
// event channel itself is never closed. Events buffered before Close are
// still delivered by Recv before it reports EOF.
type ChannelEventStream struct {
	ch   chan api.Event
	done chan struct{}
	once sync.Once
}

// NewChannelEventStream creates a new channel-based event stream.
func NewChannelEventStream(bufferSize int) *ChannelEventStream {
	return &ChannelEventStream{
		ch:   make(chan api.Event, bufferSize),
		done: make(chan struct{}),
	}
}

// Send sends an event to the stream. It fails once the stream is closed
// and never blocks past a concurrent Close.
func (s *ChannelEventStream) Send(e api.Event) error {
	select {
	case <-s.done:
		return fmt.Errorf("stream is closed")
	default:
	}
	select {
	case s.ch <- e:
		return nil
	case <-s.done:
		return fmt.Errorf("stream is closed")
	}
}

// Recv receives an event from the stream. After Close it drains buffered
// events, then returns io.EOF.
func (s *ChannelEventStream) Recv(ctx context.Context) (api.Event, error) {
	select {
	case <-ctx.Done():
		return api.Event{}, ctx.Err()
	case e := <-s.ch:
		return e, nil
	case <-s.done:
		select {
		case e := <-s.ch:
			return e, nil
		default:
			return api.Event{}, io.EOF
		}
	}
}

// Close closes the stream. Safe to call more than once and safe to call
// concurrently with Send.
func (s *ChannelEventStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
