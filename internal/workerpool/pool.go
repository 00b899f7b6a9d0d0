package workerpool

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"sync"
	"time"

	"alphapack/internal/logging"
	"alphapack/internal/services"
)

const (
	DefaultIdleTimeout   = 30 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

var (
	// ErrPoolClosed rejects work submitted to, or still queued in, a pool that
	// has been shut down.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrUnknownTaskType rejects submissions with no registered handler.
	ErrUnknownTaskType = errors.New("unknown task type")
)

// HandlerFunc executes one task. The context is the submitter's context,
// bounded by TaskTimeout when configured. Long handlers should return
// ctx.Err() promptly once it is set.
type HandlerFunc func(ctx context.Context, payload any) (any, error)

// Config sizes the pool. Zero values select defaults.
type Config struct {
	MinWorkers        int
	MaxWorkers        int
	MaxTasksPerWorker int
	IdleTimeout       time.Duration
	SweepInterval     time.Duration
	// TaskTimeout bounds a single handler call. Zero disables the limit.
	TaskTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = max(1, runtime.NumCPU())
	}
	if c.MinWorkers <= 0 {
		c.MinWorkers = 1
	}
	if c.MinWorkers > c.MaxWorkers {
		c.MinWorkers = c.MaxWorkers
	}
	if c.MaxTasksPerWorker <= 0 {
		c.MaxTasksPerWorker = 1
	}
	if c.MaxTasksPerWorker > 255 {
		c.MaxTasksPerWorker = 255
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.TaskTimeout < 0 {
		c.TaskTimeout = 0
	}
	return c
}

// Pool is a priority task scheduler over goroutine workers.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	queue    taskQueue
	workers  map[int]*worker
	nextID   int
	seq      uint64
	started  bool
	closed   bool
	stop     chan struct{}
	wg       sync.WaitGroup
	counters counters
}

type counters struct {
	completed uint64
	failed    uint64
	crashed   uint64
	spawned   uint64
	evicted   uint64
}

// New constructs a pool. Workers start lazily on the first submission or
// eagerly via Start.
func New(cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:      cfg.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "workerpool"),
		handlers: make(map[string]HandlerFunc),
		workers:  make(map[int]*worker),
		stop:     make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Handle registers the handler for taskType, replacing any previous one.
func (p *Pool) Handle(taskType string, handler HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskType] = handler
}

// Start brings the pool up to MinWorkers and begins the idle sweep.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.ensureMinLocked()
	p.wg.Add(1)
	go p.sweepLoop()
	p.logger.Debug("worker pool started",
		logging.Int("min_workers", p.cfg.MinWorkers),
		logging.Int("max_workers", p.cfg.MaxWorkers),
		logging.Int("max_tasks_per_worker", p.cfg.MaxTasksPerWorker),
	)
}

// Submit queues a task. The returned future resolves with the handler
// result, or rejects if the worker crashes or the pool shuts down first.
func (p *Pool) Submit(ctx context.Context, taskType string, payload any, priority int64) (*Future, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if _, ok := p.handlers[taskType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrUserCancelled, "workerpool", "submit "+taskType, "task not queued", err)
	}
	p.seq++
	t := &task{
		ctx:      ctx,
		seq:      p.seq,
		priority: priority,
		taskType: taskType,
		payload:  payload,
		future:   newFuture(),
		queued:   time.Now(),
	}
	heap.Push(&p.queue, t)
	p.dispatchLocked()
	return t.future, nil
}

// Shutdown rejects queued work with ErrPoolClosed, stops every worker and
// waits for running handlers to return or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)

	rejected := make([]*task, 0, len(p.queue))
	for p.queue.Len() > 0 {
		rejected = append(rejected, heap.Pop(&p.queue).(*task))
	}
	for _, id := range slices.Sorted(maps.Keys(p.workers)) {
		w := p.workers[id]
		rejected = append(rejected, w.drainInbox()...)
		w.retire()
		delete(p.workers, id)
	}
	p.mu.Unlock()

	for _, t := range rejected {
		t.future.settle(nil, ErrPoolClosed)
	}
	if len(rejected) > 0 {
		p.logger.Info("worker pool shut down with queued work", logging.Int("rejected", len(rejected)))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
}

// dispatchLocked assigns queued tasks to workers with spare capacity,
// starting new workers up to MaxWorkers. Caller holds p.mu.
func (p *Pool) dispatchLocked() {
	if p.closed {
		return
	}
	for p.queue.Len() > 0 {
		w := p.pickWorkerLocked()
		if w == nil {
			if len(p.workers) >= p.cfg.MaxWorkers {
				return
			}
			w = p.spawnLocked()
		}
		t := heap.Pop(&p.queue).(*task)
		w.pending++
		w.inbox <- t
	}
}

// pickWorkerLocked prefers the least loaded worker below capacity, lowest
// id first.
func (p *Pool) pickWorkerLocked() *worker {
	var best *worker
	for _, w := range p.workers {
		if w.pending >= p.cfg.MaxTasksPerWorker {
			continue
		}
		if best == nil || w.pending < best.pending || (w.pending == best.pending && w.id < best.id) {
			best = w
		}
	}
	return best
}

func (p *Pool) spawnLocked() *worker {
	p.nextID++
	w := &worker{
		id:           p.nextID,
		inbox:        make(chan *task, p.cfg.MaxTasksPerWorker),
		quit:         make(chan struct{}),
		status:       StatusIdle,
		lastActivity: time.Now(),
	}
	p.workers[w.id] = w
	p.counters.spawned++
	p.wg.Add(1)
	go p.run(w)
	return w
}

func (p *Pool) ensureMinLocked() {
	if p.closed {
		return
	}
	for len(p.workers) < p.cfg.MinWorkers {
		p.spawnLocked()
	}
}

func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.sweep(now)
		}
	}
}

// sweep retires workers idle for longer than IdleTimeout while keeping at
// least MinWorkers alive. It returns the number of workers retired.
func (p *Pool) sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	evicted := 0
	for _, id := range slices.Sorted(maps.Keys(p.workers)) {
		if len(p.workers) <= p.cfg.MinWorkers {
			break
		}
		w := p.workers[id]
		if w.pending > 0 || now.Sub(w.lastActivity) <= p.cfg.IdleTimeout {
			continue
		}
		w.retire()
		delete(p.workers, id)
		evicted++
	}
	if evicted > 0 {
		p.counters.evicted += uint64(evicted)
		p.logger.Debug("retired idle workers",
			logging.Int("evicted", evicted),
			logging.Int("remaining", len(p.workers)),
		)
	}
	return evicted
}
