package display

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/filepaths"
)

// FileRow is a discovered file with the codec detected from its content, if it was checked
type FileRow struct {
	filepaths.SourceFile
	// empty if the content was not checked
	Detected codec.Name
	// the error reading the header, if any
	Err error
}

// RenderFiles writes the table of discovered files
func RenderFiles(w io.Writer, rows []FileRow, verified bool) {
	t := newTable(w)
	header := table.Row{"Path", "Codec", "Size"}
	if verified {
		header = append(header, "Detected")
	}
	t.AppendHeader(header)

	var total int64
	for _, r := range rows {
		row := table.Row{r.Path, r.Codec, humanizeBytes(r.Size)}
		if verified {
			row = append(row, detected(r))
		}
		t.AppendRow(row)
		total += r.Size
	}

	footer := table.Row{humanizeCount(int64(len(rows))) + " files", "", humanizeBytes(total)}
	if verified {
		footer = append(footer, "")
	}
	t.AppendFooter(footer)
	t.Render()
}

func detected(r FileRow) string {
	switch {
	case r.Err != nil:
		return "error: " + r.Err.Error()
	case r.Detected != r.Codec:
		return string(r.Detected) + " (mismatch)"
	}
	return string(r.Detected)
}
