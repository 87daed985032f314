package decode

import (
	"time"

	"github.com/turbot/reshard/internal/record"
)

// IncompletePolicy controls what happens to a record whose linked sub-document is malformed
type IncompletePolicy string

const (
	// IncompleteSkip drops the record and counts the line as skipped
	IncompleteSkip IncompletePolicy = "skip"
	// IncompleteFail abandons the whole file
	IncompleteFail IncompletePolicy = "fail"
)

const (
	DefaultMaxLineBytes = 16 * 1024 * 1024
	DefaultOpenRetries  = 5
	DefaultOpenBackoff  = 20 * time.Millisecond

	initialLineBuffer = 64 * 1024
)

// Options are shared by every decode task of a run
type Options struct {
	Parser     record.Parser
	Normalizer *record.Normalizer

	IncompleteRecords IncompletePolicy
	// the longest line which will be read - a longer line fails the file
	MaxLineBytes int
	// how many times a transient open failure is retried
	OpenRetries uint64
	OpenBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Parser == nil {
		o.Parser = record.JSONLineParser{}
	}
	if o.Normalizer == nil {
		o.Normalizer = record.NewNormalizer(nil)
	}
	if o.IncompleteRecords == "" {
		o.IncompleteRecords = IncompleteSkip
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	if o.OpenBackoff <= 0 {
		o.OpenBackoff = DefaultOpenBackoff
	}
	return o
}
