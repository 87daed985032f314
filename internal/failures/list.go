package failures

import (
	"slices"
	"strings"
	"sync"
)

// List collects the file and line failures of a run.
// It is safe for concurrent use.
// Line failures are capped - once the cap is reached further line failures are only counted.
type List struct {
	mut          sync.Mutex
	files        []*FileError
	lines        []*LineError
	maxLines     int
	droppedLines int64
}

// NewList creates a List which retains at most maxLines line failures (a negative value means no cap)
func NewList(maxLines int) *List {
	return &List{maxLines: maxLines}
}

func (l *List) AddFile(errs ...*FileError) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.files = append(l.files, errs...)
}

func (l *List) AddLines(errs ...*LineError) {
	l.mut.Lock()
	defer l.mut.Unlock()
	for _, e := range errs {
		if l.maxLines >= 0 && len(l.lines) >= l.maxLines {
			l.droppedLines++
			continue
		}
		l.lines = append(l.lines, e)
	}
}

// Files returns the file failures, sorted by path
func (l *List) Files() []*FileError {
	l.mut.Lock()
	res := slices.Clone(l.files)
	l.mut.Unlock()

	slices.SortStableFunc(res, func(a, b *FileError) int {
		return strings.Compare(a.Path, b.Path)
	})
	return res
}

// Lines returns the retained line failures, sorted by path and line number
func (l *List) Lines() []*LineError {
	l.mut.Lock()
	res := slices.Clone(l.lines)
	l.mut.Unlock()

	slices.SortStableFunc(res, func(a, b *LineError) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return int(a.Line - b.Line)
	})
	return res
}

// DroppedLines returns the number of line failures which were not retained because of the cap
func (l *List) DroppedLines() int64 {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.droppedLines
}
