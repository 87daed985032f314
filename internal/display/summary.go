package display

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/turbot/reshard/internal/pipeline"
)

// maxFailuresShown limits the failure rows of the summary - the full list is in the manifest
const maxFailuresShown = 20

// RenderSummary writes the end of run report
func RenderSummary(w io.Writer, res *pipeline.Result, verbose bool) {
	s := res.Stats

	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Run %s: %s", res.RunID, res.State))
	t.AppendRows([]table.Row{
		{"Files discovered", humanizeCount(s.FilesDiscovered)},
		{"Files succeeded", humanizeCount(s.FilesSucceeded)},
		{"Files failed", humanizeCount(s.FilesFailed)},
		{"Lines skipped", humanizeCount(s.LinesSkipped)},
		{"Records", humanizeCount(s.RecordsProduced)},
		{"Read", humanizeBytes(s.BytesRead)},
		{"Shards written", humanizeCount(s.ShardsWritten)},
		{"Shards failed", humanizeCount(s.ShardsFailed)},
		{"Written", humanizeBytes(s.BytesWritten)},
		{"Peak decoders / encoders", fmt.Sprintf("%d / %d", s.DecodePeak, s.EncodePeak)},
		{"Duration", humanizeDuration(s.Duration)},
	})
	if res.ManifestPath != "" {
		t.AppendRow(table.Row{"Manifest", res.ManifestPath})
	}
	t.Render()

	if verbose && len(res.Shards) > 0 {
		st := newTable(w)
		st.AppendHeader(table.Row{"Shard", "File", "Records", "Size"})
		for _, shard := range res.Shards {
			st.AppendRow(table.Row{shard.Index, filepath.Base(shard.Path), humanizeCount(int64(shard.Records)), humanizeBytes(shard.Bytes)})
		}
		st.Render()
	}

	renderFailures(w, res)
}

func renderFailures(w io.Writer, res *pipeline.Result) {
	if len(res.FileFailures) == 0 && len(res.LineFailures) == 0 {
		return
	}

	ft := newTable(w)
	ft.AppendHeader(table.Row{"Path", "Line", "Kind", "Error"})
	shown := 0
	for _, f := range res.FileFailures {
		if shown == maxFailuresShown {
			break
		}
		ft.AppendRow(table.Row{f.Path, "", f.Kind, f.Err})
		shown++
	}
	for _, l := range res.LineFailures {
		if shown == maxFailuresShown {
			break
		}
		ft.AppendRow(table.Row{l.Path, l.Line, "line", l.Err})
		shown++
	}
	hidden := int64(len(res.FileFailures)+len(res.LineFailures)-shown) + res.LineFailuresDropped
	if hidden > 0 {
		ft.AppendFooter(table.Row{fmt.Sprintf("... and %s more", humanizeCount(hidden)), "", "", ""})
	}
	ft.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}
