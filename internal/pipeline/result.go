package pipeline

import (
	"time"

	"github.com/turbot/reshard/internal/encode"
	"github.com/turbot/reshard/internal/failures"
)

// Result is returned by Coordinator.Run
type Result struct {
	RunID    string
	State    State
	Started  time.Time
	Finished time.Time
	Stats    StatsSnapshot

	// failed source files and shards, sorted by path
	FileFailures []*failures.FileError
	// skipped lines, sorted by path and line - capped by the max line errors option
	LineFailures []*failures.LineError
	// line failures which were not kept because of the cap
	LineFailuresDropped int64

	// the shards which were written, in index order
	Shards       []encode.Result
	ManifestPath string
}

// FailedSourceFiles returns the number of input files which contributed no records because of a failure
func (r *Result) FailedSourceFiles() int64 {
	return r.Stats.FilesFailed
}
