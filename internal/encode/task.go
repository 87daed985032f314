package encode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/sethvargo/go-retry"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/failures"
	"github.com/turbot/reshard/internal/filepaths"
	"github.com/turbot/reshard/internal/partition"
)

const (
	DefaultCreateRetries = 5
	createBackoff        = 20 * time.Millisecond
	writeBufferSize      = 256 * 1024
)

// Options are shared by every encode task of a run
type Options struct {
	OutputDir string
	Codec     codec.Codec
	// how many times a transient failure to create the temp file is retried
	CreateRetries uint64
}

// Result describes a shard file which was written
type Result struct {
	Index    int           `json:"index"`
	Path     string        `json:"path"`
	Records  int           `json:"records"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"-"`
}

// Task writes one shard to its output file as newline delimited JSON, compressed with the output codec.
// The file is written to a temp file in the output directory and renamed into place,
// so a shard file either exists complete or not at all.
type Task struct {
	Shard partition.Shard
	opts  Options
}

func NewTask(shard partition.Shard, opts Options) *Task {
	return &Task{
		Shard: shard,
		opts:  opts,
	}
}

func (t *Task) Path() string {
	return filepaths.ShardPath(t.opts.OutputDir, t.Shard.Index, t.Shard.Of, t.opts.Codec.Extension())
}

func (t *Task) Run(ctx context.Context) (Result, error) {
	path := t.Path()
	start := time.Now()

	if ctx.Err() != nil {
		return Result{}, failures.FromContext(ctx, path)
	}

	tmp, err := t.createTemp(ctx)
	if err != nil {
		return Result{}, failures.NewFileError(path, failures.KindEncode, fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpPath := tmp.Name()

	bytesWritten, err := t.write(ctx, tmp)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		if ctx.Err() != nil {
			return Result{}, failures.FromContext(ctx, path)
		}
		return Result{}, failures.NewFileError(path, failures.KindEncode, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, failures.NewFileError(path, failures.KindEncode, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, failures.NewFileError(path, failures.KindEncode, fmt.Errorf("failed to rename shard file: %w", err))
	}

	res := Result{
		Index:    t.Shard.Index,
		Path:     path,
		Records:  t.Shard.Len(),
		Bytes:    bytesWritten,
		Duration: time.Since(start),
	}
	slog.Debug("wrote shard", "path", path, "records", res.Records, "bytes", res.Bytes, "duration", res.Duration)
	return res, nil
}

// write encodes every record of the shard into f and syncs it, returning the number of bytes written
func (t *Task) write(ctx context.Context, f *os.File) (int64, error) {
	counter := &countingWriter{w: f}
	cw, err := t.opts.Codec.NewWriter(counter)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s writer: %w", t.opts.Codec.Name(), err)
	}
	bw := bufio.NewWriterSize(cw, writeBufferSize)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for i := range t.Shard.Records {
		if err := ctx.Err(); err != nil {
			_ = cw.Close()
			return 0, err
		}
		if err := enc.Encode(&t.Shard.Records[i]); err != nil {
			_ = cw.Close()
			return 0, fmt.Errorf("failed to encode record %s: %w", t.Shard.Records[i].ID, err)
		}
	}

	if err := bw.Flush(); err != nil {
		_ = cw.Close()
		return 0, err
	}
	// closing the compressor writes the stream trailer
	if err := cw.Close(); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return counter.n, nil
}

func (t *Task) createTemp(ctx context.Context) (*os.File, error) {
	var f *os.File
	backoff := retry.WithMaxRetries(t.opts.CreateRetries, retry.NewExponential(createBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		f, err = os.CreateTemp(t.opts.OutputDir, filepaths.ShardTempPattern(t.Shard.Index))
		if err != nil {
			if filepaths.IsTransientOpenError(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	return f, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
