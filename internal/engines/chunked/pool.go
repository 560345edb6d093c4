package chunked

import (
	"context"
	"sync"
	"time"

	"sirsim/internal/core"
)

type task struct {
	run  func()
	done *sync.WaitGroup
}

// pool is a fixed set of worker goroutines fed through a buffered queue.
type pool struct {
	mu      sync.Mutex
	closed  bool
	tasks   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

func newPool(size, queue int) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{tasks: make(chan task, queue), ctx: ctx, cancel: cancel}
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.workers.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			t.run()
			t.done.Done()
		}
	}
}

// submit queues t. The queue holds a full tick of tasks, so it never blocks
// while the per-tick barrier is respected.
func (p *pool) submit(t task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return core.ErrPoolRejected
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return core.ErrPoolRejected
	}
}

// shutdown stops accepting tasks and waits up to grace for the workers to
// drain. If they do not, the pool context is cancelled and shutdown waits
// one more grace period before giving up; forced reports that escalation.
func (p *pool) shutdown(grace time.Duration) (forced bool, drained bool) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		p.cancel()
		return false, true
	case <-timer.C:
	}

	p.cancel()
	timer.Reset(grace)
	select {
	case <-done:
		return true, true
	case <-timer.C:
		return true, false
	}
}
