package partition

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/turbot/reshard/internal/record"
)

// Shard is one of Of contiguous, disjoint slices of the aggregate
type Shard struct {
	// 0 based
	Index   int
	Of      int
	Records []record.Record
}

func (s Shard) Len() int {
	return len(s.Records)
}

// Partition splits records into g shards of near-equal size: the first len(records) % g shards
// receive one extra record. Shards are contiguous in input order, so the result is deterministic for a given input.
// The shards share the backing array of records.
func Partition(records []record.Record, g int) ([]Shard, error) {
	if g < 1 {
		return nil, fmt.Errorf("shard count must be at least 1, got %d", g)
	}

	n := len(records)
	base, extra := n/g, n%g

	shards := make([]Shard, g)
	start := 0
	for i := 0; i < g; i++ {
		size := base
		if i < extra {
			size++
		}
		shards[i] = Shard{
			Index:   i,
			Of:      g,
			Records: records[start : start+size : start+size],
		}
		start += size
	}
	return shards, nil
}

// SortRecords orders records by timestamp then id, in place.
// Merge order depends on scheduling so this is used when byte-identical output is required across runs.
func SortRecords(records []record.Record) {
	slices.SortStableFunc(records, func(a, b record.Record) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := compareIDs(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Source, b.Source)
	})
}

// compareIDs orders numeric ids numerically (shorter first) and falls back to lexical order
func compareIDs(a, b string) int {
	if isDigits(a) && isDigits(b) && len(a) != len(b) {
		return len(a) - len(b)
	}
	return cmp.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
