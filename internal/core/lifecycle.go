package core

import (
	"fmt"
	"sync"
)

// Phase is the lifecycle state of an engine.
type Phase int

const (
	Running Phase = iota
	Finished
	// Failed follows a tick that a task could not complete. The run is over
	// but the engine still has to be shut down.
	Failed
	ShutDown
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case ShutDown:
		return "shut down"
	default:
		return "unknown"
	}
}

// Lifecycle tracks the Running → Finished | Failed → ShutDown state machine
// shared by all engines. The zero value is Running.
type Lifecycle struct {
	mu    sync.Mutex
	phase Phase
	cause error
}

// Phase returns the current state.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// CanStep returns nil while Running.
func (l *Lifecycle) CanStep() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.phase {
	case Finished:
		return ErrFinished
	case Failed:
		return fmt.Errorf("%w: %w", ErrFailed, l.cause)
	case ShutDown:
		return ErrShutDown
	}
	return nil
}

// Fail moves Running to Failed, keeping cause for later Step calls.
func (l *Lifecycle) Fail(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == Running {
		l.phase = Failed
		l.cause = cause
	}
}

// Observe moves Running to Finished once no cell is infected.
func (l *Lifecycle) Observe(infected int) {
	if infected > 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == Running {
		l.phase = Finished
	}
}

// BeginShutdown moves to ShutDown and reports whether this call did so.
func (l *Lifecycle) BeginShutdown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == ShutDown {
		return false
	}
	l.phase = ShutDown
	return true
}
