package session

import (
	"fmt"
	"testing"

	"CorpusAgent/pkg/engine/api"
)

func msg(id string) api.ConversationItem {
	return api.ConversationItem{ID: id, Kind: api.ItemMessage, Role: "assistant", Text: "m"}
}

func reasoning(id string) api.ConversationItem {
	return api.ConversationItem{ID: id, Kind: api.ItemReasoning, Text: "r"}
}

func makeItems(n int) []api.ConversationItem {
	items := make([]api.ConversationItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, msg(fmt.Sprintf("m%d", i)))
	}
	return items
}

func TestChunkItems_SingleBatchUnderCeiling(t *testing.T) {
	batches := ChunkItems(makeItems(5), BatchCeiling)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if len(batches[0]) != 5 {
		t.Fatalf("expected 5 items, got %d", len(batches[0]))
	}
}

func TestChunkItems_SplitsAtCeiling(t *testing.T) {
	batches := ChunkItems(makeItems(45), BatchCeiling)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, b := range batches[:2] {
		if len(b) != BatchCeiling {
			t.Fatalf("batch %d: expected %d items, got %d", i, BatchCeiling, len(b))
		}
	}
	if len(batches[2]) != 5 {
		t.Fatalf("last batch: expected 5 items, got %d", len(batches[2]))
	}
}

func TestChunkItems_ReasoningAtCeilingCarriedForward(t *testing.T) {
	// Item 20 (index 19) is a reasoning item landing exactly on the
	// ceiling boundary; its follower is item 21.
	items := makeItems(19)
	items = append(items, reasoning("r19"), msg("m20"))

	batches := ChunkItems(items, BatchCeiling)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if len(batches[0]) != 19 {
		t.Fatalf("first batch: expected 19 items, got %d", len(batches[0]))
	}
	if got := batches[1][0].ID; got != "r19" {
		t.Fatalf("expected reasoning item first in second batch, got %s", got)
	}
	if got := batches[1][1].ID; got != "m20" {
		t.Fatalf("expected follower after reasoning item, got %s", got)
	}
}

func TestChunkItems_ReasoningWithoutSuccessorStaysInBatch(t *testing.T) {
	// When the reasoning item is the last input item, there is no follower
	// to pair with; the caller is responsible for holding it back.
	items := makeItems(19)
	items = append(items, reasoning("r19"))

	batches := ChunkItems(items, BatchCeiling)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if len(batches[0]) != 20 {
		t.Fatalf("expected 20 items, got %d", len(batches[0]))
	}
}

func TestChunkItems_PreservesOrder(t *testing.T) {
	items := makeItems(43)
	batches := ChunkItems(items, BatchCeiling)

	var flat []api.ConversationItem
	for _, b := range batches {
		flat = append(flat, b...)
	}
	if len(flat) != len(items) {
		t.Fatalf("expected %d items after chunking, got %d", len(items), len(flat))
	}
	for i := range items {
		if flat[i].ID != items[i].ID {
			t.Fatalf("order broken at %d: got %s, want %s", i, flat[i].ID, items[i].ID)
		}
	}
}

func TestPersistable_DropsToolCalls(t *testing.T) {
	items := []api.ConversationItem{
		msg("m0"),
		{ID: "t0", Kind: api.ItemToolCall},
		reasoning("r0"),
	}
	got := persistable(items)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].ID != "m0" || got[1].ID != "r0" {
		t.Fatalf("unexpected items: %+v", got)
	}
}
