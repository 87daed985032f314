package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turbot/go-kit/helpers"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolCancelled is returned by Submit once the pool has been cancelled
	ErrPoolCancelled = errors.New("pool cancelled")
	// ErrPoolClosed is returned by Submit once Join has been called
	ErrPoolClosed = errors.New("pool closed")
	// ErrUnitTimeout is the context cause seen by a unit which ran past the unit timeout
	ErrUnitTimeout = errors.New("unit timed out")
)

// Unit is a single piece of work admitted to a Pool
type Unit[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Outcome is the result of running a Unit
type Outcome[T any] struct {
	ID       string
	Value    T
	Err      error
	Duration time.Duration
}

// CompletionHook is called once for every unit which ran, on the worker goroutine,
// before the unit's slot is released. It may be called concurrently.
type CompletionHook[T any] func(Outcome[T])

type PoolOption[T any] func(*Pool[T])

// WithCompletionHook registers the hook called as each unit completes
func WithCompletionHook[T any](hook CompletionHook[T]) PoolOption[T] {
	return func(p *Pool[T]) {
		p.hook = hook
	}
}

// WithUnitTimeout sets a deadline for each unit - zero means no deadline
func WithUnitTimeout[T any](timeout time.Duration) PoolOption[T] {
	return func(p *Pool[T]) {
		p.unitTimeout = timeout
	}
}

// Pool runs units with at most size of them in flight at once.
//
// Submit blocks while the pool is full and admits the unit as soon as a slot frees.
// A failing unit does not affect any other unit.
type Pool[T any] struct {
	name string
	size int

	// the admission semaphore - one slot per running unit
	sem *semaphore.Weighted
	// cancelled by Cancel, or when the parent context is done
	ctx    context.Context
	cancel context.CancelFunc

	unitTimeout time.Duration
	hook        CompletionHook[T]

	// tracks admitted units - Join waits on this
	wg sync.WaitGroup
	// protects closed and orders wg.Add against Join
	stateLock sync.Mutex
	closed    bool

	// errors returned by units
	errors     []error
	errorsLock sync.Mutex

	active    atomic.Int64
	peak      atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a pool with the given number of slots.
// Cancelling ctx has the same effect as calling Cancel.
func New[T any](ctx context.Context, name string, size int, opts ...PoolOption[T]) (*Pool[T], error) {
	if size < 1 {
		return nil, fmt.Errorf("%s pool size must be at least 1, got %d", name, size)
	}
	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		name:   name,
		size:   size,
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    poolCtx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	slog.Debug("created pool", "pool", name, "size", size, "unit timeout", p.unitTimeout)
	return p, nil
}

// Submit admits a unit, blocking until a slot is free.
// It returns ErrPoolCancelled if the pool is cancelled before the unit is admitted and ErrPoolClosed if
// Join has already been called. A unit is never silently dropped: either Submit returns an error or the
// unit runs and the completion hook sees its outcome.
func (p *Pool[T]) Submit(u Unit[T]) (*Handle[T], error) {
	if err := p.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, ErrPoolCancelled)
	}
	if p.isClosed() {
		return nil, fmt.Errorf("%s: %w", p.name, ErrPoolClosed)
	}

	// wait for a slot
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", p.name, ErrPoolCancelled, err)
	}
	// Acquire may succeed even though the context is done
	if p.ctx.Err() != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("%s: %w", p.name, ErrPoolCancelled)
	}

	p.stateLock.Lock()
	if p.closed {
		p.stateLock.Unlock()
		p.sem.Release(1)
		return nil, fmt.Errorf("%s: %w", p.name, ErrPoolClosed)
	}
	p.wg.Add(1)
	p.stateLock.Unlock()

	p.submitted.Add(1)
	h := newHandle[T](u.ID)
	go p.run(u, h)
	return h, nil
}

// Join waits for every admitted unit to complete and returns the joined errors of the units which failed.
// No further units are admitted once Join has been called.
func (p *Pool[T]) Join() error {
	p.stateLock.Lock()
	p.closed = true
	p.stateLock.Unlock()

	p.wg.Wait()
	// release the context resources - all units are done
	p.cancel()

	p.errorsLock.Lock()
	defer p.errorsLock.Unlock()
	slog.Debug("pool joined", "pool", p.name, "completed", p.completed.Load(), "failed", p.failed.Load(), "peak", p.peak.Load())
	return errors.Join(p.errors...)
}

// Cancel raises the cancel signal: Submit refuses new units and running units see their context done.
func (p *Pool[T]) Cancel() {
	slog.Info("cancelling pool", "pool", p.name)
	p.cancel()
}

func (p *Pool[T]) Size() int        { return p.size }
func (p *Pool[T]) Active() int64    { return p.active.Load() }
func (p *Pool[T]) Peak() int64      { return p.peak.Load() }
func (p *Pool[T]) Submitted() int64 { return p.submitted.Load() }
func (p *Pool[T]) Completed() int64 { return p.completed.Load() }
func (p *Pool[T]) Failed() int64    { return p.failed.Load() }

func (p *Pool[T]) isClosed() bool {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.closed
}

func (p *Pool[T]) run(u Unit[T], h *Handle[T]) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	p.recordPeak(p.active.Add(1))

	ctx := p.ctx
	cancel := func() {}
	if p.unitTimeout > 0 {
		ctx, cancel = context.WithTimeoutCause(ctx, p.unitTimeout, ErrUnitTimeout)
	}

	start := time.Now()
	value, err := p.invoke(ctx, u)
	cancel()
	p.active.Add(-1)

	outcome := Outcome[T]{ID: u.ID, Value: value, Err: err, Duration: time.Since(start)}
	p.completed.Add(1)
	if err != nil {
		p.failed.Add(1)
		p.errorsLock.Lock()
		p.errors = append(p.errors, err)
		p.errorsLock.Unlock()
	}

	if p.hook != nil {
		p.hook(outcome)
	}
	h.complete(outcome)
}

// invoke runs the unit, converting a panic into an error
func (p *Pool[T]) invoke(ctx context.Context, u Unit[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s unit %s panicked: %w", p.name, u.ID, helpers.ToError(r))
		}
	}()
	return u.Run(ctx)
}

func (p *Pool[T]) recordPeak(n int64) {
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}
