package pipeline

// State is a stage of a pipeline run
type State int

const (
	StateDiscovering State = iota
	StateDecoding
	StateBarrier
	StatePartitioning
	StateEncoding
	StateDone
	// StateFailed is only reachable from StateDiscovering
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "discovering"
	case StateDecoding:
		return "decoding"
	case StateBarrier:
		return "barrier"
	case StatePartitioning:
		return "partitioning"
	case StateEncoding:
		return "encoding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// validTransitions lists the states each state may move to
var validTransitions = map[State][]State{
	StateDiscovering:  {StateDecoding, StateFailed, StateCancelled},
	StateDecoding:     {StateBarrier},
	StateBarrier:      {StatePartitioning, StateCancelled},
	StatePartitioning: {StateEncoding},
	StateEncoding:     {StateDone, StateCancelled},
}

func (s State) canTransitionTo(next State) bool {
	for _, v := range validTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// StateObserver is notified of each state transition
type StateObserver func(from, to State)
