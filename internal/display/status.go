package display

import (
	"fmt"

	"github.com/turbot/reshard/internal/pipeline"
)

// StatusLine is the progress text shown next to the spinner
func StatusLine(state pipeline.State, s pipeline.StatsSnapshot) string {
	switch state {
	case pipeline.StateDiscovering:
		return " discovering files"
	case pipeline.StateDecoding, pipeline.StateBarrier:
		return fmt.Sprintf(" decoding files (%s/%s done, %s failed, %s records)",
			humanizeCount(s.FilesSucceeded+s.FilesFailed),
			humanizeCount(s.FilesDiscovered),
			humanizeCount(s.FilesFailed),
			humanizeCount(s.RecordsProduced))
	case pipeline.StatePartitioning:
		return fmt.Sprintf(" partitioning %s records", humanizeCount(s.RecordsProduced))
	case pipeline.StateEncoding:
		return fmt.Sprintf(" writing shards (%s written, %s)",
			humanizeCount(s.ShardsWritten),
			humanizeBytes(s.BytesWritten))
	}
	return " " + state.String()
}
