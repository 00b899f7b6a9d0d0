package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const logTimestampLayout = "2006-01-02 15:04:05.000"

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
	color     bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource, color: color}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})
	kvs = dedupeKVsByKey(kvs)

	head, fields := splitHeader(kvs)

	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.Grow(128 + len(fields)*24)

	style := styleFor(record.Level)
	h.paint(&buf, ansiDim, timestamp.In(time.Local).Format(logTimestampLayout))
	buf.WriteByte(' ')
	h.paint(&buf, style.color, fmt.Sprintf("%-5s", style.label))
	if head.component != "" {
		buf.WriteString(" [" + head.component + "]")
	}
	if subject := head.subject(); subject != "" {
		buf.WriteByte(' ')
		h.paint(&buf, ansiCyan, subject)
	}
	buf.WriteString(" - ")
	buf.WriteString(message)

	if src := record.Source(); h.addSource && src != nil && src.File != "" {
		buf.WriteByte(' ')
		h.paint(&buf, ansiDim, fmt.Sprintf("(%s:%d)", filepath.Base(src.File), src.Line))
	}

	for _, f := range fields {
		buf.WriteByte(' ')
		h.paint(&buf, ansiDim, f.key+"=")
		buf.WriteString(renderValue(f.value, true))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) paint(buf *bytes.Buffer, code, text string) {
	if !h.color || code == "" {
		buf.WriteString(text)
		return
	}
	buf.WriteString(code)
	buf.WriteString(text)
	buf.WriteString(ansiReset)
}

// header holds the fields rendered before the message instead of as k=v.
type header struct {
	component, jobID, stage, frame string
}

func splitHeader(kvs []kv) (header, []kv) {
	var head header
	fields := kvs[:0]
	for _, f := range kvs {
		switch f.key {
		case FieldComponent:
			head.component = renderValue(f.value, false)
		case FieldJobID:
			head.jobID = renderValue(f.value, false)
		case FieldStage:
			head.stage = renderValue(f.value, false)
		case FieldFrameIndex:
			head.frame = renderValue(f.value, false)
		case "":
		default:
			fields = append(fields, f)
		}
	}
	return head, fields
}

// subject reads like "job 01234567 · compose · frame 12".
func (hd header) subject() string {
	var parts []string
	if id := hd.jobID; id != "" {
		parts = append(parts, "job "+id[:min(len(id), 8)])
	}
	if hd.stage != "" {
		parts = append(parts, hd.stage)
	}
	if hd.frame != "" {
		parts = append(parts, "frame "+hd.frame)
	}
	return strings.Join(parts, " · ")
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	clone.groups = append([]string(nil), h.groups...)
	return &clone
}

type kv struct {
	key   string
	value slog.Value
}

// dedupeKVsByKey keeps the first position of each key with its last value.
func dedupeKVsByKey(attrs []kv) []kv {
	if len(attrs) < 2 {
		return attrs
	}
	positions := make(map[string]int, len(attrs))
	deduped := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := positions[attr.key]; ok {
			deduped[pos].value = attr.value
			continue
		}
		positions[attr.key] = len(deduped)
		deduped = append(deduped, attr)
	}
	return deduped
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		flattenAttrs(dst, next, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(append([]string(nil), prefix...), key), ".")
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

type levelStyle struct {
	min   slog.Level
	label string
	color string
}

// Highest first.
var levelStyles = []levelStyle{
	{slog.LevelError, "ERROR", ansiRed},
	{slog.LevelWarn, "WARN", ansiYellow},
	{slog.LevelInfo, "INFO", ""},
}

func styleFor(level slog.Level) levelStyle {
	for _, st := range levelStyles {
		if level >= st.min {
			return st
		}
	}
	return levelStyle{label: "DEBUG", color: ansiDim}
}

// renderValue formats v for the console. Quoting applies only to trailing
// k=v fields; header values are printed raw.
func renderValue(v slog.Value, quote bool) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool, slog.KindInt64, slog.KindUint64, slog.KindDuration:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().In(time.Local).Format(logTimestampLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if quote && needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	return s == "" || strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}
