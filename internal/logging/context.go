package logging

import (
	"context"
	"log/slog"

	"alphapack/internal/services"
)

// Structured field keys shared by every package.
const (
	FieldComponent  = "component"
	FieldJobID      = "job_id"
	FieldStage      = "stage"
	FieldFrameIndex = "frame_index"
	FieldEventType  = "event_type"
	FieldErrorHint  = "error_hint"
	FieldImpact     = "impact"
)

type contextField func(context.Context) (slog.Attr, bool)

// Order matters: the console handler renders the header in this order.
var contextFields = []contextField{
	func(ctx context.Context) (slog.Attr, bool) {
		id, ok := services.JobIDFromContext(ctx)
		return slog.String(FieldJobID, id), ok
	},
	func(ctx context.Context) (slog.Attr, bool) {
		stage, ok := services.StageFromContext(ctx)
		return Stage(stage), ok
	},
	func(ctx context.Context) (slog.Attr, bool) {
		idx, ok := services.FrameIndexFromContext(ctx)
		return Frame(idx), ok
	},
}

// ContextFields returns the job, stage and frame attributes carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, extract := range contextFields {
		if attr, ok := extract(ctx); ok {
			fields = append(fields, attr)
		}
	}
	return fields
}

// WithContext binds the fields carried by ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
