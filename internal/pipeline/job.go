package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"alphapack/internal/jobs"
	"alphapack/internal/logging"
	"alphapack/internal/services"
)

const (
	progressPersistInterval = time.Second
	ledgerWriteTimeout      = 2 * time.Second
)

// run tracks one pipeline invocation: its ledger row, its logger and its
// sampled progress output.
type run struct {
	store   *jobs.Store
	id      string
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	mu            sync.Mutex
	stage         string
	lastPersisted time.Time
}

// beginRun creates the ledger row (when enabled) and returns a context
// carrying the job id. Ledger failures are logged and the run continues
// without one.
func (r *Runtime) beginRun(ctx context.Context, kind jobs.Kind, input, output string) (context.Context, *run) {
	id := uuid.NewString()
	// The ledger records cancelled runs too.
	ledgerCtx := context.WithoutCancel(ctx)
	var store *jobs.Store
	if r.store != nil {
		job, err := r.store.Create(ledgerCtx, kind, input, output)
		if err != nil {
			logging.WarnWithContext(r.logger, "job ledger unavailable", "ledger_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run is not recorded in the job history"),
			)
		} else {
			id = job.ID
			store = r.store
		}
	}

	ctx = services.WithJobID(ctx, id)
	logger := r.logger
	if store != nil {
		logger = logging.TeeLogger(logger, jobs.NewEventHandler(store, id))
	}
	logger = logging.WithContext(ctx, logger).With(logging.String("kind", string(kind)))

	rn := &run{store: store, id: id, logger: logger, sampler: logging.NewProgressSampler(10)}
	if store != nil {
		if err := store.Start(ledgerCtx, id); err != nil {
			logger.Warn("failed to mark job running", logging.Error(err))
		}
	}
	logger.Info("run started", logging.String("input", input), logging.String("output", output))
	return ctx, rn
}

// enterStage switches the current stage and persists it.
func (rn *run) enterStage(ctx context.Context, stage string, total int) context.Context {
	rn.mu.Lock()
	rn.stage = stage
	rn.lastPersisted = time.Time{}
	rn.sampler.Reset()
	rn.mu.Unlock()
	rn.logger.Info("stage started", logging.Stage(stage))
	rn.persist(ctx, stage, 0, total)
	return services.WithStage(ctx, stage)
}

// progress records frame progress. Log lines are sampled to 10% buckets;
// ledger writes are throttled.
func (rn *run) progress(ctx context.Context, done, total int) {
	percent := logging.FramePercent(done, total)
	rn.mu.Lock()
	stage := rn.stage
	due := done >= total || time.Since(rn.lastPersisted) >= progressPersistInterval
	if due {
		rn.lastPersisted = time.Now()
	}
	emit := rn.sampler.ShouldLog(percent, stage)
	rn.mu.Unlock()

	if emit {
		rn.logger.Info("progress",
			logging.Stage(stage),
			logging.Int("frames_done", done),
			logging.Int("frames_total", total),
			logging.Float64("percent", percent),
		)
	}
	if due {
		rn.persist(ctx, stage, done, total)
	}
}

func (rn *run) persist(ctx context.Context, stage string, done, total int) {
	if rn.store == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := rn.store.UpdateProgress(writeCtx, rn.id, stage, done, total); err != nil {
		rn.logger.Debug("job progress not persisted", logging.Error(err))
	}
}

// finish stores the terminal status and logs the outcome.
func (rn *run) finish(ctx context.Context, outputBytes int64, runErr error, started time.Time) {
	elapsed := time.Since(started)
	switch {
	case runErr == nil:
		rn.logger.Info("run finished",
			logging.Int64("output_bytes", outputBytes),
			logging.Duration("elapsed", elapsed),
		)
	case services.IsCancellation(runErr):
		rn.logger.Info("run cancelled", logging.Error(runErr), logging.Duration("elapsed", elapsed))
	default:
		logging.ErrorWithContext(rn.logger, "run failed", "run_failed",
			logging.Error(runErr),
			logging.String("error_kind", services.ErrorKind(runErr)),
			logging.Duration("elapsed", elapsed),
		)
	}
	if rn.store == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := rn.store.Finish(writeCtx, rn.id, outputBytes, runErr); err != nil {
		rn.logger.Warn("failed to record job outcome", logging.Error(err))
	}
}
