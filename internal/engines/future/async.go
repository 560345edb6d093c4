package future

import "golang.org/x/sync/errgroup"

// Future is the eventual result of a task scheduled with Async.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Async schedules fn on g and returns a handle to its result. The task's
// error also fails the group.
func Async[T any](g *errgroup.Group, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	g.Go(func() error {
		defer close(f.done)
		f.val, f.err = fn()
		return f.err
	})
	return f
}

// Await blocks until the task has completed.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.val, f.err
}
