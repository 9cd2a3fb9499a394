package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings removes empty and repeated values, keeping first occurrences.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// BatchOf assigns id to one of totalBatches batches. In-process stores use it
// to mirror the hash partitioning the Postgres store does in SQL.
func BatchOf(id string, totalBatches int) int {
	if totalBatches <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(totalBatches))
}

// EnsureIndexes creates every missing index in indexes.
func EnsureIndexes(ctx context.Context, vs VectorStore, indexes ...common.VertexType) error {
	for _, idx := range indexes {
		ok, err := vs.Exists(ctx, idx)
		if err != nil {
			return fmt.Errorf("check index %s: %w", idx, err)
		}
		if ok {
			continue
		}
		if err := vs.CreateIndex(ctx, idx); err != nil {
			return fmt.Errorf("create index %s: %w", idx, err)
		}
	}
	return nil
}

// ChildDescription joins the non-empty descriptions of a community child,
// falling back to its id.
func ChildDescription(id string, descs []string) string {
	descs = DedupeStrings(descs)
	if len(descs) == 0 {
		return id
	}
	return strings.Join(descs, "\n")
}
