package core

import (
	"errors"
	"testing"
	"time"
)

func TestLifecycle(t *testing.T) {
	var l Lifecycle
	if err := l.CanStep(); err != nil {
		t.Fatalf("zero lifecycle should be running, got %v", err)
	}
	l.Observe(3)
	if l.Phase() != Running {
		t.Fatalf("phase %s, expected running", l.Phase())
	}
	l.Observe(0)
	if !errors.Is(l.CanStep(), ErrFinished) {
		t.Fatalf("expected ErrFinished after extinction")
	}
	if !l.BeginShutdown() {
		t.Fatalf("first shutdown should report transition")
	}
	if l.BeginShutdown() {
		t.Fatalf("second shutdown should be a no-op")
	}
	if !errors.Is(l.CanStep(), ErrShutDown) {
		t.Fatalf("expected ErrShutDown")
	}
	l.Observe(0)
	if l.Phase() != ShutDown {
		t.Fatalf("observe must not leave shut down, got %s", l.Phase())
	}
}

func TestLifecycleFailure(t *testing.T) {
	var l Lifecycle
	cause := &TaskError{Engine: "test", Lo: 4, Hi: 8, Cause: errors.New("bad cell")}
	l.Fail(cause)
	if l.Phase() != Failed {
		t.Fatalf("phase %s, expected failed", l.Phase())
	}

	err := l.CanStep()
	if !errors.Is(err, ErrFailed) || !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("expected ErrFailed wrapping the task failure, got %v", err)
	}
	l.Observe(0)
	l.Fail(errors.New("second"))
	var te *TaskError
	if !errors.As(l.CanStep(), &te) || te.Lo != 4 {
		t.Fatalf("the first failure must be kept, got %v", l.CanStep())
	}

	if !l.BeginShutdown() {
		t.Fatalf("a failed engine must still shut down")
	}
	if !errors.Is(l.CanStep(), ErrShutDown) {
		t.Fatalf("expected ErrShutDown after shutdown")
	}
	l.Fail(errors.New("late"))
	if l.Phase() != ShutDown {
		t.Fatalf("fail must not leave shut down, got %s", l.Phase())
	}
}

func TestThrottle(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottle(10 * time.Second)
	th.now = func() time.Time { return now }

	if th.Ready() {
		t.Fatalf("first call only primes the throttle")
	}
	now = now.Add(9 * time.Second)
	if th.Ready() {
		t.Fatalf("fired before interval elapsed")
	}
	now = now.Add(time.Second)
	if !th.Ready() {
		t.Fatalf("expected report after a full interval")
	}
	if th.Ready() {
		t.Fatalf("fired twice within one interval")
	}
}

func TestGuardRecoversPanics(t *testing.T) {
	err := Guard("test", 2, 5, func() { panic("boom") })
	var te *TaskError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TaskError, got %v", err)
	}
	if te.Lo != 2 || te.Hi != 5 || !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("unexpected task error %+v", te)
	}
	if err := Guard("test", 0, 1, func() {}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
