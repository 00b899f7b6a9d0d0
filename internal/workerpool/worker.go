package workerpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alphapack/internal/logging"
	"alphapack/internal/services"
)

// Status is the lifecycle state of a worker.
type Status int

const (
	StatusIdle Status = iota
	StatusBusy
	StatusCrashed
)

func (s Status) String() string {
	switch s {
	case StatusBusy:
		return "busy"
	case StatusCrashed:
		return "crashed"
	default:
		return "idle"
	}
}

type worker struct {
	id           int
	inbox        chan *task
	quit         chan struct{}
	status       Status
	pending      int
	lastActivity time.Time
	current      *task
	retired      bool
}

func (w *worker) retire() {
	if w.retired {
		return
	}
	w.retired = true
	close(w.quit)
}

// drainInbox removes tasks assigned to w that have not started. Caller
// holds the pool lock.
func (w *worker) drainInbox() []*task {
	var tasks []*task
	for {
		select {
		case t := <-w.inbox:
			w.pending--
			tasks = append(tasks, t)
		default:
			return tasks
		}
	}
}

type outcome struct {
	value    any
	err      error
	panicked any
	timedOut bool
}

func (p *Pool) run(w *worker) {
	defer p.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case t := <-w.inbox:
			if !p.execute(w, t) {
				return
			}
		}
	}
}

// execute runs one task and reports whether the worker survives it.
func (p *Pool) execute(w *worker, t *task) bool {
	p.mu.Lock()
	w.status = StatusBusy
	w.current = t
	w.lastActivity = time.Now()
	handler := p.handlers[t.taskType]
	p.mu.Unlock()

	var out outcome
	if err := t.ctx.Err(); err != nil {
		out.err = services.Wrap(services.ErrUserCancelled, "workerpool", t.taskType, "task cancelled before start", err)
	} else {
		out = p.invoke(t, handler)
	}

	if out.panicked != nil || out.timedOut {
		p.crash(w, t, out)
		return false
	}

	p.mu.Lock()
	w.pending--
	w.current = nil
	w.lastActivity = time.Now()
	if w.pending == 0 {
		w.status = StatusIdle
	}
	if out.err != nil {
		p.counters.failed++
	} else {
		p.counters.completed++
	}
	p.dispatchLocked()
	p.mu.Unlock()

	t.future.settle(out.value, out.err)
	return true
}

// invoke runs the handler on the worker goroutine. With a TaskTimeout the
// handler gets a deadline context; an overrun is only reported after the
// handler returns, so the task's payload is never shared with a new owner
// and a replacement worker never runs beside it.
func (p *Pool) invoke(t *task, handler HandlerFunc) outcome {
	if p.cfg.TaskTimeout <= 0 {
		return call(t.ctx, handler, t.payload)
	}
	ctx, cancel := context.WithTimeout(t.ctx, p.cfg.TaskTimeout)
	defer cancel()
	out := call(ctx, handler, t.payload)
	if out.panicked == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && t.ctx.Err() == nil {
		return outcome{timedOut: true}
	}
	return out
}

func call(ctx context.Context, handler HandlerFunc, payload any) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{panicked: r}
		}
	}()
	value, err := handler(ctx, payload)
	return outcome{value: value, err: err}
}

// crash removes w from the pool, rejects every task it owned and starts a
// replacement when the pool still has work or is below MinWorkers.
func (p *Pool) crash(w *worker, t *task, out outcome) {
	p.mu.Lock()
	w.status = StatusCrashed
	w.current = nil
	w.pending--
	orphans := w.drainInbox()
	w.retire()
	delete(p.workers, w.id)
	p.counters.crashed++
	p.ensureMinLocked()
	p.dispatchLocked()
	remaining := len(p.workers)
	p.mu.Unlock()

	var cause error
	if out.timedOut {
		cause = services.Wrap(services.ErrTimeout, "workerpool", t.taskType,
			fmt.Sprintf("worker %d exceeded task timeout %s", w.id, p.cfg.TaskTimeout), nil)
	} else {
		cause = services.Wrap(services.ErrWorkerFailure, "workerpool", t.taskType,
			fmt.Sprintf("worker %d crashed: %v", w.id, out.panicked), nil)
	}
	t.future.settle(nil, cause)
	for _, orphan := range orphans {
		orphan.future.settle(nil, services.Wrap(services.ErrWorkerFailure, "workerpool", orphan.taskType,
			fmt.Sprintf("worker %d crashed before the task started", w.id), nil))
	}

	logging.WarnWithContext(p.logger, "worker crashed", "worker_crash",
		logging.Int("worker_id", w.id),
		logging.String("task_type", t.taskType),
		logging.Int("orphaned_tasks", len(orphans)),
		logging.Int("workers_remaining", remaining),
		logging.Error(cause),
	)
}
