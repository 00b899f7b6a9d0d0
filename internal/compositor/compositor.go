package compositor

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"alphapack/internal/alphacodec"
	"alphapack/internal/bufpool"
	"alphapack/internal/logging"
	"alphapack/internal/services"
	"alphapack/internal/workerpool"
)

// Task types registered on the worker pool.
const (
	TaskComposeBlock   = "compositor.compose_block"
	TaskDecomposeBlock = "compositor.decompose_block"
)

// FrameTask is a straight-alpha RGBA frame to turn into a dual-channel frame.
type FrameTask struct {
	FrameIndex uint32
	Source     *bufpool.Buffer
	Width      int
	Height     int
	Mode       alphacodec.ChannelMode
}

// Result holds the dual-channel RGBA frame ((2*Width)×Height) and the same
// frame flattened onto black as packed RGB. Both buffers belong to the
// caller, who must release them to the buffer pool.
type Result struct {
	FrameIndex  uint32
	DualChannel *bufpool.Buffer
	BlackBacked *bufpool.Buffer
	Width       int
	Height      int
}

// DecomposeTask is a dual-channel carrier frame of FullWidth×Height RGBA.
type DecomposeTask struct {
	FrameIndex uint32
	Source     *bufpool.Buffer
	FullWidth  int
	Height     int
	Matte      alphacodec.Side
}

// Decoded is a recovered straight-alpha frame of Width×Height RGBA owned by
// the caller.
type Decoded struct {
	FrameIndex uint32
	RGBA       *bufpool.Buffer
	Width      int
	Height     int
}

// ProgressFunc receives whole-percent progress for one frame. It is called
// from the goroutine that called Composite or Decompose.
type ProgressFunc func(frameIndex uint32, percent int)

type composeBlock struct {
	src   []byte
	width int
	dual  []byte
	black []byte
	rect  image.Rectangle
	mode  alphacodec.ChannelMode
}

type decomposeBlock struct {
	src   []byte
	width int
	dst   []byte
	rect  image.Rectangle
	matte alphacodec.Side
}

// Option customizes a Compositor.
type Option func(*Compositor)

// WithBlockSize overrides DefaultBlockSize.
func WithBlockSize(size int) Option {
	return func(c *Compositor) {
		if size > 0 {
			c.blockSize = size
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = logger
	}
}

// Compositor fans frame work out to a worker pool block by block.
type Compositor struct {
	pool      *workerpool.Pool
	buffers   *bufpool.Pool
	blockSize int
	logger    *slog.Logger
}

// New constructs a compositor and registers its block handlers on pool.
func New(pool *workerpool.Pool, buffers *bufpool.Pool, opts ...Option) *Compositor {
	c := &Compositor{
		pool:      pool,
		buffers:   buffers,
		blockSize: DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "compositor")

	pool.Handle(TaskComposeBlock, func(ctx context.Context, payload any) (any, error) {
		b := payload.(composeBlock)
		return nil, eachRow(ctx, b.rect, func(row image.Rectangle) {
			alphacodec.ComposeRect(b.src, b.width, b.dual, b.black, row, b.mode)
		})
	})
	pool.Handle(TaskDecomposeBlock, func(ctx context.Context, payload any) (any, error) {
		b := payload.(decomposeBlock)
		return nil, eachRow(ctx, b.rect, func(row image.Rectangle) {
			alphacodec.DecomposeRect(b.src, b.width, b.dst, row, b.matte)
		})
	})
	return c
}

// eachRow hands rect to fn one row at a time and stops between rows once
// ctx is done.
func eachRow(ctx context.Context, rect image.Rectangle, fn func(image.Rectangle)) error {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(image.Rect(rect.Min.X, y, rect.Max.X, y+1))
	}
	return nil
}

// BlockSize reports the block edge length in use.
func (c *Compositor) BlockSize() int {
	return c.blockSize
}

// BlockPriority is the pool priority of block tasks for a frame. Earlier
// frames run first so in-order consumers are not starved.
func BlockPriority(frameIndex uint32) int64 {
	return -int64(frameIndex)
}

// Composite converts one straight-alpha frame into its dual-channel and
// black-backed forms.
func (c *Compositor) Composite(ctx context.Context, task FrameTask, progress ProgressFunc) (*Result, error) {
	w, h := task.Width, task.Height
	if w <= 0 || h <= 0 {
		return nil, services.Wrap(services.ErrValidation, "compositor", "composite",
			fmt.Sprintf("frame %d has invalid size %dx%d", task.FrameIndex, w, h), nil)
	}
	if task.Source.Len() < w*h*4 {
		return nil, services.Wrap(services.ErrValidation, "compositor", "composite",
			fmt.Sprintf("frame %d holds %d bytes, need %d", task.FrameIndex, task.Source.Len(), w*h*4), nil)
	}

	dual, err := c.buffers.Acquire(w * h * 8)
	if err != nil {
		return nil, err
	}
	black, err := c.buffers.Acquire(w * h * 6)
	if err != nil {
		c.buffers.Release(dual)
		return nil, err
	}

	src := task.Source.Bytes()
	err = c.runBlocks(ctx, task.FrameIndex, TaskComposeBlock, Partition(w, h, c.blockSize), func(rect image.Rectangle) any {
		return composeBlock{src: src, width: w, dual: dual.Bytes(), black: black.Bytes(), rect: rect, mode: task.Mode}
	}, progress)
	if err != nil {
		c.buffers.Release(dual)
		c.buffers.Release(black)
		return nil, err
	}
	return &Result{FrameIndex: task.FrameIndex, DualChannel: dual, BlackBacked: black, Width: w, Height: h}, nil
}

// Decompose recovers a straight-alpha frame from a dual-channel carrier frame.
func (c *Compositor) Decompose(ctx context.Context, task DecomposeTask, progress ProgressFunc) (*Decoded, error) {
	if task.FullWidth <= 0 || task.FullWidth%2 != 0 || task.Height <= 0 {
		return nil, services.Wrap(services.ErrUnsupportedCarrier, "compositor", "decompose",
			fmt.Sprintf("frame %d has unsplittable size %dx%d", task.FrameIndex, task.FullWidth, task.Height), nil)
	}
	w, h := task.FullWidth/2, task.Height
	if task.Source.Len() < task.FullWidth*h*4 {
		return nil, services.Wrap(services.ErrValidation, "compositor", "decompose",
			fmt.Sprintf("frame %d holds %d bytes, need %d", task.FrameIndex, task.Source.Len(), task.FullWidth*h*4), nil)
	}

	dst, err := c.buffers.Acquire(w * h * 4)
	if err != nil {
		return nil, err
	}
	src := task.Source.Bytes()
	err = c.runBlocks(ctx, task.FrameIndex, TaskDecomposeBlock, Partition(w, h, c.blockSize), func(rect image.Rectangle) any {
		return decomposeBlock{src: src, width: w, dst: dst.Bytes(), rect: rect, matte: task.Matte}
	}, progress)
	if err != nil {
		c.buffers.Release(dst)
		return nil, err
	}
	return &Decoded{FrameIndex: task.FrameIndex, RGBA: dst, Width: w, Height: h}, nil
}

// runBlocks submits one task per block and waits for every dispatched block,
// even after a failure, so output buffers are never released while a worker
// may still write to them.
func (c *Compositor) runBlocks(ctx context.Context, frameIndex uint32, taskType string, blocks []image.Rectangle, payload func(image.Rectangle) any, progress ProgressFunc) error {
	futures := make([]*workerpool.Future, 0, len(blocks))
	var firstErr error
	for _, rect := range blocks {
		if err := ctx.Err(); err != nil {
			firstErr = services.Wrap(services.ErrUserCancelled, "compositor", taskType,
				fmt.Sprintf("frame %d dispatch stopped after %d of %d blocks", frameIndex, len(futures), len(blocks)), err)
			break
		}
		f, err := c.pool.Submit(ctx, taskType, payload(rect), BlockPriority(frameIndex))
		if err != nil {
			firstErr = fmt.Errorf("frame %d: submit block %v: %w", frameIndex, rect, err)
			break
		}
		futures = append(futures, f)
	}

	// Futures are collected in completion order so progress tracks the
	// blocks that have actually finished.
	completed := make(chan int, len(futures))
	for i, f := range futures {
		go func() {
			<-f.Done()
			completed <- i
		}()
	}
	lastPercent := -1
	for done := 1; done <= len(futures); done++ {
		i := <-completed
		_, err := futures[i].Result()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("frame %d: block %v: %w", frameIndex, blocks[i], err)
		}
		if progress != nil && firstErr == nil {
			percent := done * 100 / len(blocks)
			if percent > lastPercent {
				lastPercent = percent
				progress(frameIndex, percent)
			}
		}
	}
	if firstErr != nil {
		logger := logging.WithContext(services.WithFrameIndex(ctx, int(frameIndex)), c.logger)
		logger.Debug("frame failed",
			logging.Int("blocks_dispatched", len(futures)),
			logging.Error(firstErr),
		)
	}
	return firstErr
}
