package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"alphapack/internal/logging"
	"alphapack/internal/services"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	pool := New(cfg, logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return pool
}

func waitResult(t *testing.T, f *Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestBusyWorkersNeverExceedMaxAndCrashRejectsOnlyItsTask(t *testing.T) {
	pool := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 4})

	var running, peak atomic.Int32
	pool.Handle("square", func(_ context.Context, payload any) (any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		v := payload.(int)
		if v == 17 {
			panic("simulated worker crash")
		}
		return v * v, nil
	})
	pool.Start()

	futures := make([]*Future, 50)
	for i := range futures {
		f, err := pool.Submit(context.Background(), "square", i, 0)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		futures[i] = f
	}

	for i, f := range futures {
		value, err := waitResult(t, f)
		if i == 17 {
			if !errors.Is(err, services.ErrWorkerFailure) {
				t.Fatalf("task 17: expected ErrWorkerFailure, got %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("task %d: %v", i, err)
		}
		if value.(int) != i*i {
			t.Fatalf("task %d = %v, want %d", i, value, i*i)
		}
	}

	if got := peak.Load(); got > 4 {
		t.Fatalf("peak concurrent handlers = %d, want <= 4", got)
	}
	stats := pool.Stats()
	if stats.Crashed != 1 {
		t.Fatalf("crashed = %d, want 1", stats.Crashed)
	}
	if stats.Completed != 49 {
		t.Fatalf("completed = %d, want 49", stats.Completed)
	}
	if len(stats.Workers) == 0 || len(stats.Workers) > 4 {
		t.Fatalf("workers = %d, want 1..4", len(stats.Workers))
	}
}

func TestPriorityOrderWithFIFOTies(t *testing.T) {
	pool := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	gate := make(chan struct{})
	started := make(chan struct{})
	pool.Handle("gate", func(context.Context, any) (any, error) {
		close(started)
		<-gate
		return nil, nil
	})
	var mu sync.Mutex
	var order []string
	pool.Handle("record", func(_ context.Context, payload any) (any, error) {
		mu.Lock()
		order = append(order, payload.(string))
		mu.Unlock()
		return nil, nil
	})

	gateFuture, err := pool.Submit(context.Background(), "gate", nil, 0)
	if err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	<-started

	submissions := []struct {
		name     string
		priority int64
	}{
		{"low", 1},
		{"high-a", 5},
		{"mid", 3},
		{"high-b", 5},
	}
	var futures []*Future
	for _, s := range submissions {
		f, err := pool.Submit(context.Background(), "record", s.name, s.priority)
		if err != nil {
			t.Fatalf("submit %s: %v", s.name, err)
		}
		futures = append(futures, f)
	}
	if queued := pool.Stats().Queued; queued != 4 {
		t.Fatalf("queued = %d, want 4", queued)
	}
	close(gate)

	if _, err := waitResult(t, gateFuture); err != nil {
		t.Fatalf("gate: %v", err)
	}
	for _, f := range futures {
		if _, err := waitResult(t, f); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	want := []string{"high-a", "high-b", "mid", "low"}
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHandlerErrorDoesNotCrashWorker(t *testing.T) {
	pool := newTestPool(t, Config{MaxWorkers: 1})
	boom := errors.New("boom")
	pool.Handle("fail", func(context.Context, any) (any, error) { return nil, boom })

	f, err := pool.Submit(context.Background(), "fail", nil, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := waitResult(t, f); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	stats := pool.Stats()
	if stats.Crashed != 0 || stats.Failed != 1 || stats.Spawned != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestSweepEvictsIdleWorkersDownToMin(t *testing.T) {
	pool := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 4, IdleTimeout: time.Millisecond})

	var arrived sync.WaitGroup
	arrived.Add(4)
	release := make(chan struct{})
	pool.Handle("hold", func(context.Context, any) (any, error) {
		arrived.Done()
		<-release
		return nil, nil
	})

	var futures []*Future
	for i := 0; i < 4; i++ {
		f, err := pool.Submit(context.Background(), "hold", i, 0)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		futures = append(futures, f)
	}
	arrived.Wait()
	if busy := pool.Stats().Busy; busy != 4 {
		t.Fatalf("busy = %d, want 4", busy)
	}
	if evicted := pool.sweep(time.Now().Add(time.Hour)); evicted != 0 {
		t.Fatalf("evicted busy workers: %d", evicted)
	}
	close(release)
	for _, f := range futures {
		if _, err := waitResult(t, f); err != nil {
			t.Fatalf("hold: %v", err)
		}
	}

	if evicted := pool.sweep(time.Now().Add(time.Hour)); evicted != 3 {
		t.Fatalf("evicted = %d, want 3", evicted)
	}
	stats := pool.Stats()
	if len(stats.Workers) != 1 || stats.Evicted != 3 {
		t.Fatalf("stats after sweep = %+v", stats)
	}
	if evicted := pool.sweep(time.Now().Add(time.Hour)); evicted != 0 {
		t.Fatalf("sweep went below min: %d", evicted)
	}
}

func TestTaskTimeoutRetiresWorker(t *testing.T) {
	pool := newTestPool(t, Config{MaxWorkers: 1, TaskTimeout: 20 * time.Millisecond})
	pool.Handle("stuck", func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	pool.Handle("echo", func(_ context.Context, payload any) (any, error) { return payload, nil })

	f, err := pool.Submit(context.Background(), "stuck", nil, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := waitResult(t, f); !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	f, err = pool.Submit(context.Background(), "echo", "ok", 0)
	if err != nil {
		t.Fatalf("submit echo: %v", err)
	}
	value, err := waitResult(t, f)
	if err != nil || value != "ok" {
		t.Fatalf("echo = %v, %v", value, err)
	}
	if crashed := pool.Stats().Crashed; crashed != 1 {
		t.Fatalf("crashed = %d, want 1", crashed)
	}
}

func TestTaskOverrunSettlesAfterHandlerReturns(t *testing.T) {
	pool := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 2, TaskTimeout: 5 * time.Millisecond})
	var running, peak atomic.Int32
	var returned atomic.Int32
	pool.Handle("slow", func(context.Context, any) (any, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(25 * time.Millisecond)
		running.Add(-1)
		returned.Add(1)
		return "late", nil
	})

	var futures []*Future
	for i := 0; i < 4; i++ {
		f, err := pool.Submit(context.Background(), "slow", i, 0)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		futures = append(futures, f)
	}
	for i, f := range futures {
		_, err := waitResult(t, f)
		if err == nil {
			t.Fatalf("task %d: expected a rejection", i)
		}
		if errors.Is(err, services.ErrTimeout) && returned.Load() == 0 {
			t.Fatalf("task %d rejected before any handler returned", i)
		}
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrent handlers = %d, want <= 2", p)
	}
}

func TestShutdownRejectsQueuedAndBlocksSubmit(t *testing.T) {
	pool := New(Config{MaxWorkers: 1}, logging.NewNop())
	gate := make(chan struct{})
	started := make(chan struct{})
	pool.Handle("gate", func(context.Context, any) (any, error) {
		close(started)
		<-gate
		return "done", nil
	})
	pool.Handle("noop", func(context.Context, any) (any, error) { return nil, nil })

	running, err := pool.Submit(context.Background(), "gate", nil, 0)
	if err != nil {
		t.Fatalf("submit gate: %v", err)
	}
	<-started
	var queued []*Future
	for i := 0; i < 3; i++ {
		f, err := pool.Submit(context.Background(), "noop", nil, 0)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		queued = append(queued, f)
	}

	done := make(chan error, 1)
	go func() { done <- pool.Shutdown(context.Background()) }()

	for _, f := range queued {
		if _, err := waitResult(t, f); !errors.Is(err, ErrPoolClosed) {
			t.Fatalf("expected ErrPoolClosed, got %v", err)
		}
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if value, err := waitResult(t, running); err != nil || value != "done" {
		t.Fatalf("in-flight task = %v, %v", value, err)
	}
	if _, err := pool.Submit(context.Background(), "noop", nil, 0); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed after shutdown, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	pool := newTestPool(t, Config{MaxWorkers: 2})
	pool.Handle("noop", func(context.Context, any) (any, error) { return nil, nil })

	if _, err := pool.Submit(context.Background(), "missing", nil, 0); !errors.Is(err, ErrUnknownTaskType) {
		t.Fatalf("expected ErrUnknownTaskType, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Submit(ctx, "noop", nil, 0)
	if !errors.Is(err, services.ErrUserCancelled) || !services.IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{MinWorkers: 9, MaxWorkers: 3, MaxTasksPerWorker: 1000}.withDefaults()
	if cfg.MinWorkers != 3 || cfg.MaxTasksPerWorker != 255 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.IdleTimeout != DefaultIdleTimeout || cfg.SweepInterval != DefaultSweepInterval || cfg.TaskTimeout != 0 {
		t.Fatalf("durations = %+v", cfg)
	}
	if def := (Config{}).withDefaults(); def.MaxWorkers < 1 || def.MinWorkers != 1 {
		t.Fatalf("defaults = %+v", def)
	}
}
