// Package session binds threads to durable remote conversations and
// persists conversation deltas under the remote store's batch constraints.
package session

import "CorpusAgent/pkg/engine/api"

// BatchCeiling is the remote store's per-request item limit.
const BatchCeiling = 20

// ChunkItems partitions items into ordered batches of at most ceiling items.
// When a batch fills up and its last item requires its immediate successor
// (a reasoning item), the batch is shrunk by one and the item carried into
// the next batch, so the pair is never split across requests.
//
// Callers must hold back a trailing follower-requiring item before chunking;
// ChunkItems only guarantees adjacency for items that have a successor in
// the input.
func ChunkItems(items []api.ConversationItem, ceiling int) [][]api.ConversationItem {
	if ceiling <= 0 {
		ceiling = BatchCeiling
	}

	var batches [][]api.ConversationItem
	var current []api.ConversationItem
	for i := 0; i < len(items); i++ {
		current = append(current, items[i])
		if len(current) < ceiling {
			continue
		}

		last := current[len(current)-1]
		if last.NeedsFollower() && i+1 < len(items) {
			// The ceiling-th item must ship with its follower: carry it
			// into the next batch instead.
			batches = append(batches, current[:len(current)-1])
			current = []api.ConversationItem{last}
			continue
		}

		batches = append(batches, current)
		current = nil
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// persistable filters a delta down to the item kinds worth storing remotely.
// Tool-call traces are dropped: they are not needed to resume a conversation
// and would inflate writes.
func persistable(items []api.ConversationItem) []api.ConversationItem {
	out := make([]api.ConversationItem, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case api.ItemMessage, api.ItemReasoning:
			out = append(out, it)
		}
	}
	return out
}
