package failures

import (
	"context"
	"errors"
	"fmt"

	"github.com/turbot/reshard/internal/workpool"
)

// ErrInvalidRoot is the only fatal error of a run - the input root is missing, unreadable or not a directory
var ErrInvalidRoot = errors.New("invalid input root")

// Kind classifies a file level failure
type Kind string

const (
	KindFileAccess       Kind = "file-access"
	KindCodec            Kind = "codec"
	KindTimeout          Kind = "timeout"
	KindCancelled        Kind = "cancelled"
	KindIncompleteRecord Kind = "incomplete-record"
	KindEncode           Kind = "encode"
	KindInternal         Kind = "internal"
)

// FileError reports a failure which caused a whole file (source or shard) to be abandoned
type FileError struct {
	Path string
	Kind Kind
	Err  error
}

func NewFileError(path string, kind Kind, err error) *FileError {
	return &FileError{
		Path: path,
		Kind: kind,
		Err:  err,
	}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s error: %s", e.Path, e.Kind, e.Err)
}

// Unwrap implements error wrapping.
func (e *FileError) Unwrap() error {
	return e.Err
}

// LineError reports a single line which was skipped
type LineError struct {
	Path string
	// 1 based line number
	Line int64
	Err  error
}

func NewLineError(path string, line int64, err error) *LineError {
	return &LineError{
		Path: path,
		Line: line,
		Err:  err,
	}
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Err)
}

// Unwrap implements error wrapping.
func (e *LineError) Unwrap() error {
	return e.Err
}

// IncompleteRecordError is returned when a record's required linked sub-document is malformed
type IncompleteRecordError struct {
	Field  string
	Reason string
}

func NewIncompleteRecordError(field, reason string) *IncompleteRecordError {
	return &IncompleteRecordError{Field: field, Reason: reason}
}

func (e *IncompleteRecordError) Error() string {
	return fmt.Sprintf("incomplete record - %s: %s", e.Field, e.Reason)
}

// AsFileError returns err as a *FileError, wrapping it with the given path and KindInternal if it is not one already
func AsFileError(path string, err error) *FileError {
	var fileErr *FileError
	if errors.As(err, &fileErr) {
		return fileErr
	}
	return NewFileError(path, KindInternal, err)
}

// FromContext converts a done context into the failure for path.
// Only a unit which ran past its own deadline is a timeout - a cancelled run, or a run whose
// deadline expired, is a cancellation.
func FromContext(ctx context.Context, path string) *FileError {
	err := ctx.Err()
	if cause := context.Cause(ctx); errors.Is(cause, workpool.ErrUnitTimeout) {
		return NewFileError(path, KindTimeout, fmt.Errorf("%w: %w", cause, err))
	}
	return NewFileError(path, KindCancelled, err)
}
