package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/turbot/reshard/internal/aggregate"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/decode"
	"github.com/turbot/reshard/internal/encode"
	"github.com/turbot/reshard/internal/failures"
	"github.com/turbot/reshard/internal/filepaths"
	"github.com/turbot/reshard/internal/partition"
	"github.com/turbot/reshard/internal/record"
	"github.com/turbot/reshard/internal/workpool"
)

// Coordinator runs a single reshard: discovery, bounded parallel decode, merge, partition and
// bounded parallel encode. A Coordinator can only be run once.
type Coordinator struct {
	inputDir  string
	outputDir string
	pattern   string

	inputCodec  codec.Name
	outputCodec codec.Codec

	decodeWorkers int
	encodeWorkers int
	shards        int
	fileTimeout   time.Duration

	decodeOpts    decode.Options
	encodeOpts    encode.Options
	maxLineErrors int
	sortOutput    bool
	writeManifest bool

	observers []StateObserver

	runID    string
	stats    Stats
	failures *failures.List

	state     State
	stateLock sync.RWMutex
	started   atomic.Bool
}

func NewCoordinator(inputDir, outputDir string, opts ...CoordinatorOption) (*Coordinator, error) {
	gz, _ := codec.Lookup(codec.Gzip)
	c := &Coordinator{
		inputDir:      inputDir,
		outputDir:     outputDir,
		pattern:       DefaultPattern,
		outputCodec:   gz,
		decodeWorkers: DefaultDecodeWorkers,
		encodeWorkers: DefaultEncodeWorkers,
		shards:        DefaultShards,
		decodeOpts:    defaultDecodeOptions(),
		encodeOpts:    defaultEncodeOptions(),
		maxLineErrors: DefaultMaxLineErrors,
		writeManifest: true,
		runID:         xid.New().String(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.failures = failures.NewList(c.maxLineErrors)
	c.encodeOpts.OutputDir = c.outputDir
	c.encodeOpts.Codec = c.outputCodec
	return c, nil
}

func (c *Coordinator) validate() error {
	var errs []error
	if c.inputDir == "" {
		errs = append(errs, errors.New("input directory is required"))
	}
	if c.outputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.pattern == "" {
		errs = append(errs, errors.New("file pattern is required"))
	}
	return errors.Join(errs...)
}

func (c *Coordinator) RunID() string {
	return c.runID
}

func (c *Coordinator) State() State {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.state
}

// Stats returns the live counters of the run
func (c *Coordinator) Stats() *Stats {
	return &c.stats
}

// Run executes the pipeline.
//
// Per-file and per-line failures never stop the run - they are returned in the Result.
// The only fatal error is an invalid input root (or an unusable output directory), in which case the
// state is StateFailed, nothing is written and the returned error wraps failures.ErrInvalidRoot.
// If ctx is cancelled, files which have not been admitted are reported as cancelled, no shards are
// written for an incomplete aggregate and the returned error wraps the context error.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, errors.New("coordinator has already been run")
	}

	res := &Result{
		RunID:   c.runID,
		Started: time.Now(),
	}
	defer func() {
		res.State = c.State()
		res.Finished = time.Now()
		res.Stats = c.stats.Snapshot()
		res.Stats.Duration = res.Finished.Sub(res.Started)
		res.FileFailures = c.failures.Files()
		res.LineFailures = c.failures.Lines()
		res.LineFailuresDropped = c.failures.DroppedLines()
	}()

	slog.Info("starting run", "run id", c.runID, "input", c.inputDir, "output", c.outputDir, "pattern", c.pattern,
		"decode workers", c.decodeWorkers, "encode workers", c.encodeWorkers, "shards", c.shards)
	c.setState(StateDiscovering)

	files, err := c.discover()
	if err != nil {
		c.setState(StateFailed)
		return res, err
	}
	if err := ctx.Err(); err != nil {
		c.cancelFiles(files, err)
		c.setState(StateCancelled)
		return res, err
	}

	c.setState(StateDecoding)
	store, decodeErr := c.decode(ctx, files)
	if decodeErr != nil {
		// the failures have been recorded per file
		slog.Debug("decode completed with failures", "failed files", c.stats.FilesFailed.Load())
	}

	if err := ctx.Err(); err != nil {
		c.setState(StateCancelled)
		return res, err
	}

	c.setState(StatePartitioning)
	records := store.Snapshot()
	if c.sortOutput {
		partition.SortRecords(records)
	}
	shards, err := partition.Partition(records, c.shards)
	if err != nil {
		// the shard count was validated up front so this is a programming error
		return res, err
	}

	c.setState(StateEncoding)
	res.Shards = c.encode(ctx, shards)

	if err := ctx.Err(); err != nil {
		c.setState(StateCancelled)
		return res, err
	}

	if c.writeManifest {
		path := filepaths.ManifestPath(c.outputDir)
		if err := writeManifest(path, c.manifest(res)); err != nil {
			slog.Error("failed to write manifest", "path", path, "error", err)
			c.failures.AddFile(failures.NewFileError(path, failures.KindEncode, err))
		} else {
			res.ManifestPath = path
		}
	}

	c.setState(StateDone)
	return res, nil
}

func (c *Coordinator) discover() ([]filepaths.SourceFile, error) {
	files, skipped, err := filepaths.Discover(c.inputDir, c.pattern, c.inputCodec)
	if err != nil {
		slog.Error("discovery failed", "root", c.inputDir, "error", err)
		return nil, err
	}
	files = filepaths.ExcludeDir(files, c.outputDir)
	if err := filepaths.EnsureOutputDir(c.outputDir); err != nil {
		slog.Error("output directory is not usable", "path", c.outputDir, "error", err)
		return nil, err
	}
	// shards of an earlier run must not be left alongside the shards of this one
	if n, err := filepaths.PruneOutputDir(c.outputDir); err != nil {
		slog.Error("failed to remove previous output", "path", c.outputDir, "error", err)
		return nil, fmt.Errorf("failed to clear output directory %s: %w", c.outputDir, err)
	} else if n > 0 {
		slog.Info("removed previous output", "path", c.outputDir, "count", n)
	}

	// unreadable entries below the root count as discovered files which failed
	c.stats.FilesDiscovered.Add(int64(len(files) + len(skipped)))
	c.stats.FilesFailed.Add(int64(len(skipped)))
	c.failures.AddFile(skipped...)

	slog.Info("discovered files", "count", len(files), "unreadable", len(skipped))
	return files, nil
}

// decode runs every file through the decode pool and merges the batches into a new store.
// It returns once every admitted file has been merged or recorded as failed.
func (c *Coordinator) decode(ctx context.Context, files []filepaths.SourceFile) (*aggregate.Store, error) {
	store := aggregate.NewStore()
	agg := aggregate.NewAggregator(store,
		aggregate.WithBufferSize(c.decodeWorkers),
		aggregate.WithMergeHandler(c.onBatchMerged),
		aggregate.WithFailureHandler(c.onFileFailed),
	)

	pool, err := workpool.New[*record.Batch](ctx, "decode", c.decodeWorkers,
		workpool.WithCompletionHook[*record.Batch](agg.Deliver),
		workpool.WithUnitTimeout[*record.Batch](c.fileTimeout),
	)
	if err != nil {
		agg.Close()
		return store, err
	}

	for i, f := range files {
		task := decode.NewTask(f, c.decodeOpts)
		if _, err := pool.Submit(workpool.Unit[*record.Batch]{ID: f.Path, Run: task.Run}); err != nil {
			slog.Warn("stopped submitting files", "error", err, "remaining", len(files)-i)
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			c.cancelFiles(files[i:], err)
			break
		}
	}

	c.setState(StateBarrier)
	err = pool.Join()
	agg.Close()
	c.stats.DecodePeak.Store(pool.Peak())

	slog.Info("decode complete", "merged files", store.Batches(), "records", store.Len(), "failed files", c.stats.FilesFailed.Load())
	return store, err
}

// encode writes every shard through the encode pool, returning the results of the shards which were written
func (c *Coordinator) encode(ctx context.Context, shards []partition.Shard) []encode.Result {
	var results []encode.Result
	var resultsLock sync.Mutex

	hook := func(o workpool.Outcome[encode.Result]) {
		if o.Err != nil {
			c.stats.ShardsFailed.Add(1)
			c.failures.AddFile(failures.AsFileError(o.ID, o.Err))
			slog.Warn("shard failed", "shard", o.ID, "error", o.Err)
			return
		}
		c.stats.ShardsWritten.Add(1)
		c.stats.BytesWritten.Add(o.Value.Bytes)
		resultsLock.Lock()
		results = append(results, o.Value)
		resultsLock.Unlock()
	}

	pool, err := workpool.New[encode.Result](ctx, "encode", c.encodeWorkers,
		workpool.WithCompletionHook[encode.Result](hook))
	if err != nil {
		c.stats.ShardsFailed.Add(int64(len(shards)))
		return nil
	}

	for i, s := range shards {
		task := encode.NewTask(s, c.encodeOpts)
		if _, err := pool.Submit(workpool.Unit[encode.Result]{ID: task.Path(), Run: task.Run}); err != nil {
			for _, remaining := range shards[i:] {
				path := encode.NewTask(remaining, c.encodeOpts).Path()
				c.failures.AddFile(failures.NewFileError(path, failures.KindCancelled, err))
				c.stats.ShardsFailed.Add(1)
			}
			break
		}
	}
	if err := pool.Join(); err != nil {
		slog.Debug("encode completed with failures", "error", err)
	}
	c.stats.EncodePeak.Store(pool.Peak())

	sortResults(results)
	slog.Info("encode complete", "shards written", c.stats.ShardsWritten.Load(), "bytes", c.stats.BytesWritten.Load())
	return results
}

func (c *Coordinator) onBatchMerged(b *record.Batch) {
	c.stats.FilesSucceeded.Add(1)
	c.stats.RecordsProduced.Add(int64(b.Len()))
	c.stats.LinesSkipped.Add(b.SkippedLines)
	c.stats.BytesRead.Add(b.BytesRead)
	c.failures.AddLines(b.LineFailures...)
}

func (c *Coordinator) onFileFailed(err *failures.FileError) {
	c.stats.FilesFailed.Add(1)
	c.failures.AddFile(err)
}

// cancelFiles records files which were never admitted as cancelled with the given cause.
// A file which never ran cannot have timed out, whatever ended the run.
func (c *Coordinator) cancelFiles(files []filepaths.SourceFile, cause error) {
	for _, f := range files {
		c.onFileFailed(failures.NewFileError(f.Path, failures.KindCancelled, cause))
	}
}

func (c *Coordinator) setState(next State) {
	c.stateLock.Lock()
	prev := c.state
	if prev == next {
		c.stateLock.Unlock()
		return
	}
	if !prev.canTransitionTo(next) {
		c.stateLock.Unlock()
		panic(fmt.Sprintf("invalid state transition %s -> %s", prev, next))
	}
	c.state = next
	c.stateLock.Unlock()

	slog.Info("state changed", "run id", c.runID, "from", prev, "to", next)
	for _, o := range c.observers {
		o(prev, next)
	}
}
