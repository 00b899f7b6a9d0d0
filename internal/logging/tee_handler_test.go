package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("ledger closed") }

func TestNewTeeHandlerCollapses(t *testing.T) {
	if h := newTeeHandler(nil, nil); h != slog.DiscardHandler {
		t.Fatalf("expected discard handler for all nil handlers, got %T", h)
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := newTeeHandler(nil, inner); h != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
}

func TestTeeHandlerRespectsLevels(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	h := newTeeHandler(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug to be disabled")
	}
	logger := slog.New(h)
	logger.Info("frame composed")
	logger.Warn("matte side guessed")

	if !strings.Contains(infoBuf.String(), "frame composed") || !strings.Contains(infoBuf.String(), "matte side guessed") {
		t.Fatalf("info handler missing records: %q", infoBuf.String())
	}
	if strings.Contains(warnBuf.String(), "frame composed") {
		t.Fatalf("warn handler received info record: %q", warnBuf.String())
	}
	if !strings.Contains(warnBuf.String(), "matte side guessed") {
		t.Fatalf("warn handler missing warning: %q", warnBuf.String())
	}
}

func TestTeeHandlerWithAttrsAndGroup(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newTeeHandler(slog.NewTextHandler(&buf1, nil), slog.NewTextHandler(&buf2, nil))
	logger := slog.New(h.WithAttrs([]slog.Attr{Stage("decompose")}).WithGroup("pool"))
	logger.Info("spawned", "worker", 3)

	for _, out := range []string{buf1.String(), buf2.String()} {
		if !strings.Contains(out, "stage=decompose") || !strings.Contains(out, "pool.worker=3") {
			t.Fatalf("unexpected output %q", out)
		}
	}
}

func TestTeeHandlerKeepsWritingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, nil)
	h := newTeeHandler(failingHandler{text}, text)
	err := h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelWarn, "carrier_short", 0))
	if err == nil || !strings.Contains(err.Error(), "ledger closed") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(buf.String(), "carrier_short") {
		t.Fatalf("second handler skipped: %q", buf.String())
	}
}

func TestTeeLogger(t *testing.T) {
	var base, extra bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewTextHandler(&base, nil)), slog.NewTextHandler(&extra, nil))
	logger.Info("tee")
	if !strings.Contains(base.String(), "tee") || !strings.Contains(extra.String(), "tee") {
		t.Fatalf("expected both outputs, got %q and %q", base.String(), extra.String())
	}

	var only bytes.Buffer
	TeeLogger(nil, slog.NewTextHandler(&only, nil)).Info("solo")
	if !strings.Contains(only.String(), "solo") {
		t.Fatalf("expected nil base to still log, got %q", only.String())
	}
}

func TestWarnWithContextDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	WarnWithContext(logger, "matte guessed", "matte_ambiguous", String(FieldImpact, "halves may be swapped"))
	out := buf.String()
	for _, want := range []string{"event_type=matte_ambiguous", "error_hint=", `impact="halves may be swapped"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}

	buf.Reset()
	ErrorWithContext(logger, "run failed", "run_failed", Frame(7))
	if strings.Contains(buf.String(), "impact=") || !strings.Contains(buf.String(), "frame_index=7") {
		t.Fatalf("unexpected error record %q", buf.String())
	}
}
