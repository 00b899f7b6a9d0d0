package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const eventWriteTimeout = 2 * time.Second

// EventHandler is a slog.Handler that copies warnings and errors into the
// ledger for one job. Tee it next to the console handler.
type EventHandler struct {
	store *Store
	jobID string
	level slog.Level
	attrs []slog.Attr
}

// NewEventHandler records records at or above slog.LevelWarn.
func NewEventHandler(store *Store, jobID string) *EventHandler {
	return &EventHandler{store: store, jobID: jobID, level: slog.LevelWarn}
}

func (h *EventHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.store != nil && level >= h.level
}

func (h *EventHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.Enabled(ctx, record.Level) {
		return nil
	}
	eventType := ""
	find := func(a slog.Attr) bool {
		if a.Key == "event_type" {
			eventType = a.Value.String()
			return false
		}
		return true
	}
	for _, a := range h.attrs {
		if !find(a) {
			break
		}
	}
	record.Attrs(find)

	// The run context may already be cancelled when the final error is logged.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventWriteTimeout)
	defer cancel()
	return h.store.AddEvent(writeCtx, h.jobID, strings.ToLower(record.Level.String()), record.Message, eventType)
}

func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *EventHandler) WithGroup(string) slog.Handler {
	return h
}
