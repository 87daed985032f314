package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats are the counters of a single run. They are updated concurrently by the workers
// and read by the coordinator and progress display.
type Stats struct {
	FilesDiscovered atomic.Int64
	FilesSucceeded  atomic.Int64
	FilesFailed     atomic.Int64
	LinesSkipped    atomic.Int64
	RecordsProduced atomic.Int64
	BytesRead       atomic.Int64
	ShardsWritten   atomic.Int64
	ShardsFailed    atomic.Int64
	BytesWritten    atomic.Int64
	// high-water marks of concurrently running units
	DecodePeak atomic.Int64
	EncodePeak atomic.Int64
}

// StatsSnapshot is a point in time copy of Stats
type StatsSnapshot struct {
	FilesDiscovered int64         `json:"files_discovered"`
	FilesSucceeded  int64         `json:"files_succeeded"`
	FilesFailed     int64         `json:"files_failed"`
	LinesSkipped    int64         `json:"lines_skipped"`
	RecordsProduced int64         `json:"records_produced"`
	BytesRead       int64         `json:"bytes_read"`
	ShardsWritten   int64         `json:"shards_written"`
	ShardsFailed    int64         `json:"shards_failed"`
	BytesWritten    int64         `json:"bytes_written"`
	DecodePeak      int64         `json:"decode_peak"`
	EncodePeak      int64         `json:"encode_peak"`
	Duration        time.Duration `json:"duration_ns"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FilesDiscovered: s.FilesDiscovered.Load(),
		FilesSucceeded:  s.FilesSucceeded.Load(),
		FilesFailed:     s.FilesFailed.Load(),
		LinesSkipped:    s.LinesSkipped.Load(),
		RecordsProduced: s.RecordsProduced.Load(),
		BytesRead:       s.BytesRead.Load(),
		ShardsWritten:   s.ShardsWritten.Load(),
		ShardsFailed:    s.ShardsFailed.Load(),
		BytesWritten:    s.BytesWritten.Load(),
		DecodePeak:      s.DecodePeak.Load(),
		EncodePeak:      s.EncodePeak.Load(),
	}
}

// FilesPending returns the number of discovered files which have not completed yet
func (s StatsSnapshot) FilesPending() int64 {
	return s.FilesDiscovered - s.FilesSucceeded - s.FilesFailed
}
