package compositor

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"alphapack/internal/alphacodec"
	"alphapack/internal/bufpool"
	"alphapack/internal/logging"
	"alphapack/internal/services"
	"alphapack/internal/workerpool"
)

func newTestCompositor(t *testing.T, opts ...Option) (*Compositor, *workerpool.Pool, *bufpool.Pool) {
	t.Helper()
	return newTestCompositorWithPool(t, workerpool.Config{MinWorkers: 1, MaxWorkers: 4}, opts...)
}

func newTestCompositorWithPool(t *testing.T, cfg workerpool.Config, opts ...Option) (*Compositor, *workerpool.Pool, *bufpool.Pool) {
	t.Helper()
	pool := workerpool.New(cfg, logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	buffers := bufpool.New()
	return New(pool, buffers, opts...), pool, buffers
}

func gradientFrame(t *testing.T, buffers *bufpool.Pool, w, h int) *bufpool.Buffer {
	t.Helper()
	buf, err := buffers.Acquire(w * h * 4)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	data := buf.Bytes()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			data[i] = uint8(x)
			data[i+1] = uint8(y)
			data[i+2] = uint8(x ^ y)
			data[i+3] = uint8((x + y) * 3)
		}
	}
	return buf
}

func TestPartition300(t *testing.T) {
	blocks := Partition(300, 300, 128)
	if len(blocks) != 9 {
		t.Fatalf("blocks = %d, want 9", len(blocks))
	}
	covered := make([]int, 300*300)
	for i, b := range blocks {
		row, col := i/3, i%3
		wantW, wantH := 128, 128
		if col == 2 {
			wantW = 44
		}
		if row == 2 {
			wantH = 44
		}
		if b.Dx() != wantW || b.Dy() != wantH {
			t.Fatalf("block %d = %v, want %dx%d", i, b, wantW, wantH)
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				covered[y*300+x]++
			}
		}
	}
	for i, n := range covered {
		if n != 1 {
			t.Fatalf("pixel %d covered %d times", i, n)
		}
	}
}

func TestPartitionEdgeCases(t *testing.T) {
	if got := Partition(0, 10, 128); got != nil {
		t.Fatalf("expected nil for empty frame, got %v", got)
	}
	blocks := Partition(10, 5, 0)
	if len(blocks) != 1 || blocks[0] != image.Rect(0, 0, 10, 5) {
		t.Fatalf("blocks = %v", blocks)
	}
}

func TestCompositeMatchesSequentialCodec(t *testing.T) {
	comp, _, buffers := newTestCompositor(t, WithBlockSize(16))
	const w, h = 70, 37
	src := gradientFrame(t, buffers, w, h)

	var percents []int
	res, err := comp.Composite(context.Background(), FrameTask{FrameIndex: 3, Source: src, Width: w, Height: h, Mode: alphacodec.AlphaLeftColorRight},
		func(frame uint32, percent int) {
			if frame != 3 {
				t.Errorf("progress frame = %d", frame)
			}
			percents = append(percents, percent)
		})
	if err != nil {
		t.Fatalf("composite: %v", err)
	}

	wantDual, _ := alphacodec.ComposeDualChannel(src.Bytes(), w, h, alphacodec.AlphaLeftColorRight)
	wantBlack, _ := alphacodec.FlattenToBlackBackground(wantDual, w*2, h)
	if string(res.DualChannel.Bytes()) != string(wantDual) {
		t.Fatal("dual-channel output differs from sequential compose")
	}
	if string(res.BlackBacked.Bytes()) != string(wantBlack) {
		t.Fatal("black-backed output differs from sequential flatten")
	}
	if res.Width != w || res.Height != h || res.FrameIndex != 3 {
		t.Fatalf("result header = %+v", res)
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress = %v, want to end at 100", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Fatalf("progress not increasing: %v", percents)
		}
	}

	back, err := comp.Decompose(context.Background(), DecomposeTask{FrameIndex: 3, Source: res.DualChannel, FullWidth: w * 2, Height: h, Matte: alphacodec.Left}, nil)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	wantRGBA, _ := alphacodec.DecomposeDualChannel(wantDual, w*2, h, alphacodec.Left)
	if string(back.RGBA.Bytes()) != string(wantRGBA) {
		t.Fatal("decomposed output differs from sequential decompose")
	}
}

func TestCompositeFailureReleasesBuffers(t *testing.T) {
	comp, pool, buffers := newTestCompositor(t, WithBlockSize(8))
	var once sync.Once
	pool.Handle(TaskComposeBlock, func(_ context.Context, payload any) (any, error) {
		b := payload.(composeBlock)
		if b.rect.Min.X == 8 && b.rect.Min.Y == 8 {
			once.Do(func() { panic("block crash") })
		}
		alphacodec.ComposeRect(b.src, b.width, b.dual, b.black, b.rect, b.mode)
		return nil, nil
	})

	src := gradientFrame(t, buffers, 32, 32)
	before := buffers.Stats()
	_, err := comp.Composite(context.Background(), FrameTask{Source: src, Width: 32, Height: 32}, nil)
	if !errors.Is(err, services.ErrWorkerFailure) {
		t.Fatalf("expected ErrWorkerFailure, got %v", err)
	}
	after := buffers.Stats()
	// Both outputs (8192 and 6144 bytes) share the 8192-byte class.
	if after.Pooled[8192] != before.Pooled[8192]+2 {
		t.Fatalf("pooled 8 KiB buffers = %d, want %d", after.Pooled[8192], before.Pooled[8192]+2)
	}

	res, err := comp.Composite(context.Background(), FrameTask{Source: src, Width: 32, Height: 32}, nil)
	if err != nil {
		t.Fatalf("second composite after crash: %v", err)
	}
	buffers.Release(res.DualChannel)
	buffers.Release(res.BlackBacked)
}

func TestCompositeCancelledBeforeDispatch(t *testing.T) {
	comp, _, buffers := newTestCompositor(t)
	src := gradientFrame(t, buffers, 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := comp.Composite(ctx, FrameTask{Source: src, Width: 4, Height: 4}, nil)
	if !services.IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestCompositeValidatesInput(t *testing.T) {
	comp, _, buffers := newTestCompositor(t)
	src := gradientFrame(t, buffers, 4, 4)
	if _, err := comp.Composite(context.Background(), FrameTask{Source: src, Width: 8, Height: 8}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := comp.Decompose(context.Background(), DecomposeTask{Source: src, FullWidth: 3, Height: 4}, nil); !errors.Is(err, services.ErrUnsupportedCarrier) {
		t.Fatalf("expected ErrUnsupportedCarrier, got %v", err)
	}
}

func TestBlockPriorityFavoursEarlierFrames(t *testing.T) {
	if BlockPriority(1) <= BlockPriority(2) {
		t.Fatal("frame 1 should outrank frame 2")
	}
}

func requireZeroed(t *testing.T, buf *bufpool.Buffer, when string) {
	t.Helper()
	for i, b := range buf.Bytes() {
		if b != 0 {
			t.Fatalf("%s: byte %d = %d, want a zero-filled buffer", when, i, b)
		}
	}
}

func TestCompositeTimeoutReleasesBuffersOnlyAfterBlocksStop(t *testing.T) {
	comp, pool, buffers := newTestCompositorWithPool(t,
		workerpool.Config{MinWorkers: 1, MaxWorkers: 2, TaskTimeout: 5 * time.Millisecond},
		WithBlockSize(512))
	var finished atomic.Bool
	// Ignores ctx and keeps writing well past the deadline.
	pool.Handle(TaskComposeBlock, func(_ context.Context, payload any) (any, error) {
		b := payload.(composeBlock)
		time.Sleep(30 * time.Millisecond)
		alphacodec.ComposeRect(b.src, b.width, b.dual, b.black, b.rect, b.mode)
		finished.Store(true)
		return nil, nil
	})

	const w, h = 64, 64
	src := gradientFrame(t, buffers, w, h)
	_, err := comp.Composite(context.Background(), FrameTask{Source: src, Width: w, Height: h}, nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !finished.Load() {
		t.Fatal("Composite returned while a timed-out block was still running")
	}

	reused, err := buffers.Acquire(w * h * 8)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer buffers.Release(reused)
	requireZeroed(t, reused, "at acquire")
	time.Sleep(40 * time.Millisecond)
	requireZeroed(t, reused, "after the timed-out block")
	if busy := pool.Stats().Busy; busy != 0 {
		t.Fatalf("busy workers = %d after timeout", busy)
	}
}

func TestBlockHandlersStopOnExpiredDeadline(t *testing.T) {
	comp, _, buffers := newTestCompositorWithPool(t,
		workerpool.Config{MinWorkers: 1, MaxWorkers: 2, TaskTimeout: time.Nanosecond},
		WithBlockSize(4096))

	const w, h = 512, 512
	src := gradientFrame(t, buffers, w, h)
	_, err := comp.Composite(context.Background(), FrameTask{Source: src, Width: w, Height: h}, nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	reused, err := buffers.Acquire(w * h * 8)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer buffers.Release(reused)
	time.Sleep(10 * time.Millisecond)
	requireZeroed(t, reused, "after timeout")
}

func TestProgressFollowsBlockCompletion(t *testing.T) {
	comp, pool, buffers := newTestCompositorWithPool(t, workerpool.Config{MinWorkers: 2, MaxWorkers: 2}, WithBlockSize(8))
	gate := make(chan struct{})
	var release sync.Once
	var starved atomic.Bool
	// The first block waits until progress has been reported for the second.
	pool.Handle(TaskComposeBlock, func(_ context.Context, payload any) (any, error) {
		b := payload.(composeBlock)
		if b.rect.Min.X == 0 {
			select {
			case <-gate:
			case <-time.After(2 * time.Second):
				starved.Store(true)
			}
		}
		alphacodec.ComposeRect(b.src, b.width, b.dual, b.black, b.rect, b.mode)
		return nil, nil
	})

	src := gradientFrame(t, buffers, 16, 8)
	var percents []int
	res, err := comp.Composite(context.Background(), FrameTask{Source: src, Width: 16, Height: 8}, func(_ uint32, percent int) {
		percents = append(percents, percent)
		release.Do(func() { close(gate) })
	})
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	buffers.Release(res.DualChannel)
	buffers.Release(res.BlackBacked)
	if starved.Load() {
		t.Fatal("progress waited on the first submitted block instead of the finished one")
	}
	if len(percents) != 2 || percents[0] != 50 || percents[1] != 100 {
		t.Fatalf("progress = %v, want [50 100]", percents)
	}
}
