package engine

import "sync"

// State is the phase a migration run is currently in. States are a progress
// readout for callers, not a gate: the run loop owns every transition, and
// StateFailed is reachable from any phase.
type State int

const (
	StateIdle State = iota
	StateResuming
	StateFetching
	StateTransforming
	StateApplying
	StateCheckpointing
	StateDone
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateResuming:
		return "Resuming"
	case StateFetching:
		return "Fetching"
	case StateTransforming:
		return "Transforming"
	case StateApplying:
		return "Applying"
	case StateCheckpointing:
		return "Checkpointing"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// stateTracker publishes the run's current phase to concurrent observers.
type stateTracker struct {
	mu     sync.RWMutex
	state  State
	notify func(State)
}

// State returns the current phase of the run.
func (t *stateTracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *stateTracker) set(s State) {
	t.mu.Lock()
	t.state = s
	notify := t.notify
	t.mu.Unlock()

	if notify != nil {
		notify(s)
	}
}
