package aggregate

import (
	"fmt"
	"slices"
	"sync"

	"github.com/turbot/reshard/internal/record"
)

// Store is the append-only collection of every record produced by the run.
// Merges are mutually exclusive. Len always equals the total size of the merged batches.
type Store struct {
	mu      sync.Mutex
	records []record.Record
	batches int
}

func NewStore() *Store {
	return &Store{}
}

// Merge appends the records of b, returning the store length before and after.
// A batch can only be merged once - a second attempt returns record.ErrBatchAlreadyMerged and leaves the store unchanged.
func (s *Store) Merge(b *record.Batch) (before, after int, err error) {
	if b == nil {
		return 0, 0, fmt.Errorf("cannot merge a nil batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before = len(s.records)
	if err := b.MarkMerged(); err != nil {
		return before, before, fmt.Errorf("%s: %w", b.Path, err)
	}
	s.records = append(s.records, b.Records...)
	s.batches++
	return before, len(s.records), nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Batches returns the number of batches merged
func (s *Store) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// Snapshot returns a copy of the records in merge order.
// It is only meaningful once all writers have finished.
func (s *Store) Snapshot() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}
