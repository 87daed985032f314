package record

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/turbot/reshard/internal/failures"
)

// ErrBatchAlreadyMerged is returned when a batch is handed to the store a second time
var ErrBatchAlreadyMerged = errors.New("batch has already been merged")

// Location is a normalized place resolved from free text
type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
}

// Record is the normalized form of one input line.
// Records are never mutated after construction.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Location  *Location `json:"location,omitempty"`
	// sorted, de-duplicated, lower case
	Tags []string `json:"tags,omitempty"`
	// the id of the record this one is derived from (e.g. the original of a retweet)
	DerivedFrom string `json:"derived_from,omitempty"`
	// the source file the record was read from
	Source string `json:"source,omitempty"`
}

// IsDerived returns whether the record is linked to another record
func (r *Record) IsDerived() bool {
	return r.DerivedFrom != ""
}

// Batch is the ordered set of records produced from a single source file
type Batch struct {
	Path    string
	Records []Record
	// lines which were skipped - malformed, blank or dropped incomplete records
	SkippedLines int64
	// the line failures which were recorded for the skipped lines
	LineFailures []*failures.LineError
	// compressed bytes read from the source file
	BytesRead int64

	merged atomic.Bool
}

func NewBatch(path string) *Batch {
	return &Batch{Path: path}
}

func (b *Batch) Len() int {
	return len(b.Records)
}

// MarkMerged flags the batch as merged, returning ErrBatchAlreadyMerged if it already was
func (b *Batch) MarkMerged() error {
	if !b.merged.CompareAndSwap(false, true) {
		return ErrBatchAlreadyMerged
	}
	return nil
}
