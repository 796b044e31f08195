package runtime

import (
	"context"
	"io"
	"sync"
	"testing"

	"CorpusAgent/pkg/engine/api"
)

func TestChannelEventStream_SendRecv(t *testing.T) {
	s := NewChannelEventStream(4)
	if err := s.Send(api.Event{Type: api.EventStatus, Seq: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, err := s.Recv(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Seq != 1 {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestChannelEventStream_RecvDrainsBufferAfterClose(t *testing.T) {
	s := NewChannelEventStream(4)
	for i := 1; i <= 3; i++ {
		if err := s.Send(api.Event{Type: api.EventStatus, Seq: int64(i)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	s.Close()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		e, err := s.Recv(ctx)
		if err != nil {
			t.Fatalf("event %d: unexpected error: %v", i, err)
		}
		if e.Seq != int64(i) {
			t.Fatalf("event %d: got seq %d", i, e.Seq)
		}
	}
	if _, err := s.Recv(ctx); err != io.EOF {
		t.Fatalf("expected EOF after drain, got %v", err)
	}
}

func TestChannelEventStream_SendAfterCloseFails(t *testing.T) {
	s := NewChannelEventStream(1)
	s.Close()
	if err := s.Send(api.Event{Type: api.EventStatus}); err == nil {
		t.Fatalf("expected error for send after close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
}

// A consumer may close the stream while the turn goroutine is still
// emitting (client disconnect, cancelled caller context). That must never
// panic or block the sender, whatever the interleaving.
func TestChannelEventStream_ConcurrentSendAndClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := NewChannelEventStream(1)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := s.Send(api.Event{Type: api.EventStatus, Seq: int64(j)}); err != nil {
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
		wg.Wait()
	}
}

// A sender blocked on a full buffer must be released by Close rather than
// hang the turn goroutine forever.
func TestChannelEventStream_CloseUnblocksFullBufferSend(t *testing.T) {
	s := NewChannelEventStream(1)
	if err := s.Send(api.Event{Type: api.EventStatus, Seq: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- s.Send(api.Event{Type: api.EventStatus, Seq: 2})
	}()
	s.Close()

	// Receiving proves the sender returned; whether it won the buffer race
	// or got the closed-stream error does not matter.
	<-sendErr
}
