package decode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/failures"
	"github.com/turbot/reshard/internal/filepaths"
	"github.com/turbot/reshard/internal/record"
)

// Task decodes a single source file into a Batch.
// The task owns the file handle and decompressor for the duration of Run.
type Task struct {
	File filepaths.SourceFile
	opts Options
}

func NewTask(file filepaths.SourceFile, opts Options) *Task {
	return &Task{
		File: file,
		opts: opts.withDefaults(),
	}
}

// Run reads, parses and normalizes every line of the file.
//
// Bad lines are skipped and counted in the batch. Anything which prevents the rest of the file being read
// (open failure, corrupt stream, cancellation, deadline) returns a *failures.FileError and no batch:
// a file contributes all of its valid records or none of them.
func (t *Task) Run(ctx context.Context) (*record.Batch, error) {
	path := t.File.Path
	start := time.Now()

	if ctx.Err() != nil {
		return nil, failures.FromContext(ctx, path)
	}

	f, err := t.open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, failures.FromContext(ctx, path)
		}
		return nil, failures.NewFileError(path, failures.KindFileAccess, err)
	}
	defer f.Close()

	c, err := codec.Lookup(t.File.Codec)
	if err != nil {
		return nil, failures.NewFileError(path, failures.KindCodec, err)
	}
	counter := &countingReader{r: f}
	r, err := c.NewReader(counter)
	if err != nil {
		return nil, failures.NewFileError(path, failures.KindCodec, fmt.Errorf("failed to create %s reader: %w", c.Name(), err))
	}
	defer r.Close()

	batch, err := t.scan(ctx, r)
	if err != nil {
		slog.Debug("decode failed", "path", path, "error", err)
		return nil, err
	}
	batch.BytesRead = counter.n

	slog.Debug("decoded file", "path", path, "records", batch.Len(), "skipped", batch.SkippedLines, "duration", time.Since(start))
	return batch, nil
}

func (t *Task) scan(ctx context.Context, r io.Reader) (*record.Batch, error) {
	path := t.File.Path
	batch := record.NewBatch(path)

	scanner := bufio.NewScanner(r)
	// the scanner needs room for the newline as well as the line itself
	maxToken := t.opts.MaxLineBytes + 1
	scanner.Buffer(make([]byte, 0, min(initialLineBuffer, maxToken)), maxToken)

	var lineNo int64
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, failures.FromContext(ctx, path)
		}
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			batch.SkippedLines++
			continue
		}

		raw, err := t.opts.Parser.Parse(line)
		if err != nil {
			t.skipLine(batch, lineNo, err)
			continue
		}

		rec, err := t.opts.Normalizer.Normalize(raw, path)
		if err != nil {
			var incomplete *failures.IncompleteRecordError
			if errors.As(err, &incomplete) && t.opts.IncompleteRecords == IncompleteFail {
				return nil, failures.NewFileError(path, failures.KindIncompleteRecord, failures.NewLineError(path, lineNo, err))
			}
			t.skipLine(batch, lineNo, err)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	if err := scanner.Err(); err != nil {
		// a cancelled context may surface as a read error
		if ctx.Err() != nil {
			return nil, failures.FromContext(ctx, path)
		}
		if errors.Is(err, bufio.ErrTooLong) {
			err = fmt.Errorf("line %d exceeds %d bytes: %w", lineNo+1, t.opts.MaxLineBytes, err)
		}
		return nil, failures.NewFileError(path, failures.KindCodec, err)
	}
	// the last line may have been the one which observed the cancellation
	if ctx.Err() != nil {
		return nil, failures.FromContext(ctx, path)
	}
	return batch, nil
}

func (t *Task) skipLine(batch *record.Batch, lineNo int64, err error) {
	batch.SkippedLines++
	batch.LineFailures = append(batch.LineFailures, failures.NewLineError(t.File.Path, lineNo, err))
}

// open opens the source file, retrying errors caused by transient handle exhaustion
func (t *Task) open(ctx context.Context) (*os.File, error) {
	var f *os.File
	backoff := retry.WithMaxRetries(t.opts.OpenRetries, retry.NewExponential(t.opts.OpenBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		f, err = os.Open(t.File.Path)
		if err != nil {
			if filepaths.IsTransientOpenError(err) {
				slog.Debug("retrying open", "path", t.File.Path, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	return f, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
