package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks configuration rejected at construction.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrTaskFailed marks a parallel task that did not complete its range.
	ErrTaskFailed = errors.New("task failed")
	// ErrPoolRejected is returned when work is submitted to a closed pool.
	ErrPoolRejected = errors.New("worker pool rejected task")
	// ErrShutdownTimeout reports that workers had to be forcibly terminated.
	ErrShutdownTimeout = errors.New("shutdown grace period exceeded")
	// ErrFinished is returned by Step once no cell is Infected.
	ErrFinished = errors.New("engine finished")
	// ErrFailed is returned by Step once an earlier tick failed.
	ErrFailed = errors.New("engine failed")
	// ErrShutDown is returned by Step after Shutdown.
	ErrShutDown = errors.New("engine shut down")
)

// TaskError describes a parallel unit of work that failed on [Lo, Hi).
type TaskError struct {
	Engine string
	Lo, Hi int
	Cause  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: task [%d,%d): %v", e.Engine, e.Lo, e.Hi, e.Cause)
}

// Unwrap exposes both the failure class and its cause.
func (e *TaskError) Unwrap() []error { return []error{ErrTaskFailed, e.Cause} }

// Guard runs fn and converts a panic into a *TaskError.
func Guard(engine string, lo, hi int, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", r)
			}
			err = &TaskError{Engine: engine, Lo: lo, Hi: hi, Cause: cause}
		}
	}()
	fn()
	return nil
}
