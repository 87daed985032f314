package aggregate

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/turbot/reshard/internal/failures"
	"github.com/turbot/reshard/internal/record"
	"github.com/turbot/reshard/internal/workpool"
)

type AggregatorOption func(*Aggregator)

// WithMergeHandler is called by the collector after each batch is merged
func WithMergeHandler(f func(*record.Batch)) AggregatorOption {
	return func(a *Aggregator) {
		a.onMerge = f
	}
}

// WithFailureHandler is called by the collector for each failed decode outcome
func WithFailureHandler(f func(*failures.FileError)) AggregatorOption {
	return func(a *Aggregator) {
		a.onFailure = f
	}
}

// WithBufferSize sets the capacity of the completion channel
func WithBufferSize(size int) AggregatorOption {
	return func(a *Aggregator) {
		a.bufferSize = size
	}
}

// Aggregator receives decode outcomes on a channel and merges them into a Store from a single collector goroutine.
// Deliver may be called concurrently from any number of workers.
type Aggregator struct {
	store       *Store
	completions chan workpool.Outcome[*record.Batch]
	done        chan struct{}
	closeOnce   sync.Once
	bufferSize  int

	onMerge   func(*record.Batch)
	onFailure func(*failures.FileError)
}

// NewAggregator creates the aggregator and starts its collector
func NewAggregator(store *Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store: store,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.completions = make(chan workpool.Outcome[*record.Batch], max(a.bufferSize, 0))

	go a.collect()
	return a
}

// Deliver hands a decode outcome to the collector. It must not be called after Close.
func (a *Aggregator) Deliver(o workpool.Outcome[*record.Batch]) {
	a.completions <- o
}

// Close stops accepting outcomes and waits until every delivered outcome has been processed
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		close(a.completions)
	})
	<-a.done
}

func (a *Aggregator) Store() *Store {
	return a.store
}

func (a *Aggregator) collect() {
	defer close(a.done)

	for o := range a.completions {
		if o.Err != nil {
			a.fail(failures.AsFileError(o.ID, o.Err))
			continue
		}
		if o.Value == nil {
			a.fail(failures.NewFileError(o.ID, failures.KindInternal, errors.New("decode returned no batch")))
			continue
		}

		before, after, err := a.store.Merge(o.Value)
		if err != nil {
			slog.Error("failed to merge batch", "path", o.ID, "error", err)
			a.fail(failures.NewFileError(o.ID, failures.KindInternal, err))
			continue
		}
		slog.Debug("merged batch", "path", o.ID, "records", after-before, "store size", after)
		if a.onMerge != nil {
			a.onMerge(o.Value)
		}
	}
}

func (a *Aggregator) fail(err *failures.FileError) {
	slog.Warn("file failed", "path", err.Path, "kind", err.Kind, "error", err.Err)
	if a.onFailure != nil {
		a.onFailure(err)
	}
}
