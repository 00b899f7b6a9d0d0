package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"alphapack/internal/bufpool"
	"alphapack/internal/compositor"
	"alphapack/internal/config"
	"alphapack/internal/jobs"
	"alphapack/internal/logging"
	"alphapack/internal/raster"
	"alphapack/internal/workerpool"
)

// TaskEncodePNG is the worker pool task type for frame PNG encoding.
const TaskEncodePNG = "pipeline.encode_png"

// pngPriorityOffset keeps PNG encodes behind every queued block task so
// blocks of later frames are not starved by finished frames waiting on
// compression.
const pngPriorityOffset int64 = 1 << 33

type pngPayload struct {
	pix    []byte
	width  int
	height int
	level  raster.Level
}

// Runtime holds the long-lived resources shared by pipeline runs.
type Runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	buffers    *bufpool.Pool
	pool       *workerpool.Pool
	compositor *compositor.Compositor
	store      *jobs.Store
}

// NewRuntime builds the buffer pool, worker pool and compositor from cfg and
// opens the job ledger when it is enabled. Close releases all of them.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("pipeline runtime: nil config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	buffers := bufpool.New(bufpool.WithMaxPooled(cfg.Pool.MaxPooledMiB << 20))
	pool := workerpool.New(workerpool.Config{
		MinWorkers:        cfg.Pool.MinWorkers,
		MaxWorkers:        cfg.Pool.MaxWorkers,
		MaxTasksPerWorker: cfg.Pool.MaxTasksPerWorker,
		IdleTimeout:       time.Duration(cfg.Pool.IdleTimeoutMS) * time.Millisecond,
		SweepInterval:     time.Duration(cfg.Pool.SweepIntervalMS) * time.Millisecond,
		TaskTimeout:       time.Duration(cfg.Pool.TaskTimeoutMS) * time.Millisecond,
	}, logger)
	comp := compositor.New(pool, buffers,
		compositor.WithBlockSize(cfg.Pool.BlockSize),
		compositor.WithLogger(logger),
	)
	pool.Handle(TaskEncodePNG, func(ctx context.Context, payload any) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := payload.(pngPayload)
		return raster.EncodePNG(p.pix, p.width, p.height, p.level)
	})

	rt := &Runtime{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		buffers:    buffers,
		pool:       pool,
		compositor: comp,
	}
	if cfg.Jobs.Enabled {
		store, err := jobs.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open job ledger: %w", err)
		}
		rt.store = store
	}
	pool.Start()
	return rt, nil
}

// Store returns the job ledger, or nil when it is disabled.
func (r *Runtime) Store() *jobs.Store {
	return r.store
}

// Stats reports worker pool and buffer pool counters.
func (r *Runtime) Stats() (workerpool.Stats, bufpool.Stats) {
	return r.pool.Stats(), r.buffers.Stats()
}

// Close stops the worker pool and closes the ledger.
func (r *Runtime) Close(ctx context.Context) error {
	poolErr := r.pool.Shutdown(ctx)
	var storeErr error
	if r.store != nil {
		storeErr = r.store.Close()
	}
	return errors.Join(poolErr, storeErr)
}

// encodePNG compresses one frame on the worker pool. It waits for the task
// to settle even after ctx ends because the worker reads pix.
func (r *Runtime) encodePNG(ctx context.Context, frameIndex uint32, pix []byte, width, height int) ([]byte, error) {
	future, err := r.pool.Submit(ctx, TaskEncodePNG, pngPayload{
		pix:    pix,
		width:  width,
		height: height,
		level:  r.cfg.PNGLevel(),
	}, pngPriority(frameIndex))
	if err != nil {
		return nil, fmt.Errorf("frame %d: submit png encode: %w", frameIndex, err)
	}
	value, err := future.Result()
	if err != nil {
		return nil, fmt.Errorf("frame %d: png encode: %w", frameIndex, err)
	}
	return value.([]byte), nil
}

func pngPriority(frameIndex uint32) int64 {
	return compositor.BlockPriority(frameIndex) - pngPriorityOffset
}
