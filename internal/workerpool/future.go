package workerpool

import (
	"context"
	"sync"

	"alphapack/internal/services"
)

// Future resolves with the outcome of a submitted task.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the task has resolved or been rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the task outcome. It must only be called after Done is closed.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.value, f.err
}

// Wait blocks until the task resolves or ctx ends. A context exit does not
// cancel the task itself.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, services.Wrap(services.ErrUserCancelled, "workerpool", "wait", "stopped waiting for task", ctx.Err())
	}
}
