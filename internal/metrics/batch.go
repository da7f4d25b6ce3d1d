package metrics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"qametrics/internal/azure"
)

// DedupeIDs drops repeated ids, preserving first-seen order. IDs discovered
// through multiple suites or plans must only be fetched and counted once.
func DedupeIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ChunkIDs partitions ids into chunks of at most size.
func ChunkIDs(ids []int, size int) [][]int {
	var chunks [][]int
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

// fetchWorkItemsChunked fetches details for an arbitrarily large id set by
// deduplicating, splitting into batch-endpoint chunks, and fanning the chunk
// requests out concurrently. Each goroutine writes only its own result slot;
// the flattened result carries no ordering guarantee. Any failed chunk fails
// the whole call.
func (e *Engine) fetchWorkItemsChunked(ctx context.Context, ids []int, fields []string) ([]azure.WorkItem, error) {
	unique := DedupeIDs(ids)
	if len(unique) == 0 {
		return nil, nil
	}

	chunks := ChunkIDs(unique, ChunkSize)
	results := make([][]azure.WorkItem, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			items, err := e.Gateway.GetWorkItemsBatch(gctx, chunk, fields)
			if err != nil {
				return fmt.Errorf("fetch work item batch %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []azure.WorkItem
	for _, r := range results {
		items = append(items, r...)
	}
	return items, nil
}
