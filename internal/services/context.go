package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	stageKey
	frameIndexKey
)

func valueFrom[T any](ctx context.Context, key contextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithJobID tags ctx with the ledger id of the running job.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

func JobIDFromContext(ctx context.Context) (string, bool) {
	return valueFrom[string](ctx, jobIDKey)
}

// WithStage tags ctx with the pipeline stage. A blank stage leaves ctx as is.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return valueFrom[string](ctx, stageKey)
}

// WithFrameIndex tags ctx with the output frame being processed.
func WithFrameIndex(ctx context.Context, index int) context.Context {
	if index < 0 {
		return ctx
	}
	return context.WithValue(ctx, frameIndexKey, index)
}

func FrameIndexFromContext(ctx context.Context) (int, bool) {
	return valueFrom[int](ctx, frameIndexKey)
}
