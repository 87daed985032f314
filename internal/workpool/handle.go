package workpool

// Handle tracks a submitted unit
type Handle[T any] struct {
	id      string
	done    chan struct{}
	outcome Outcome[T]
}

func newHandle[T any](id string) *Handle[T] {
	return &Handle[T]{id: id, done: make(chan struct{})}
}

func (h *Handle[T]) ID() string {
	return h.id
}

// Done is closed once the unit has completed and the completion hook has returned
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the unit completes and returns its outcome
func (h *Handle[T]) Wait() Outcome[T] {
	<-h.done
	return h.outcome
}

func (h *Handle[T]) complete(o Outcome[T]) {
	h.outcome = o
	close(h.done)
}

// Outcome returns the unit's outcome - only valid once Done is closed
func (h *Handle[T]) Outcome() Outcome[T] {
	return h.outcome
}
