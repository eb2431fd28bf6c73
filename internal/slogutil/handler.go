// Package slogutil provides the slog handlers and logger constructors used
// across callrec.
package slogutil

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LineHandler writes one record per line:
//
//	2026-01-02T15:04:05Z [warn] Model pool exhausted | key=org/x/Button@org.x archive=org.x:x:1.0.0
//
// Values containing spaces, quotes or '=' are quoted.
type LineHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
}

// NewLineHandler creates a LineHandler. opts may be nil.
func NewLineHandler(w io.Writer, opts *slog.HandlerOptions) *LineHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &LineHandler{out: w, mu: &sync.Mutex{}, level: level}
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.Grow(96)

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	sb.WriteString(t.UTC().Format(time.RFC3339))
	sb.WriteString(" [")
	sb.WriteString(levelName(r.Level))
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	sep := " | "
	write := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Key == "" || a.Value.Equal(slog.Value{}) {
			return
		}
		sb.WriteString(sep)
		sep = " "
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		sb.WriteString(renderValue(a.Value))
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		for _, flat := range flatten(h.prefix, a) {
			write(flat)
		}
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		c.attrs = append(c.attrs, flatten(h.prefix, a)...)
	}
	return c
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix = h.prefix + name + "."
	return c
}

func (h *LineHandler) clone() *LineHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

// flatten expands group attributes into dotted keys.
func flatten(prefix string, a slog.Attr) []slog.Attr {
	if a.Value.Kind() != slog.KindGroup {
		return []slog.Attr{{Key: prefix + a.Key, Value: a.Value}}
	}
	inner := prefix
	if a.Key != "" {
		inner += a.Key + "."
	}
	var out []slog.Attr
	for _, g := range a.Value.Group() {
		out = append(out, flatten(inner, g)...)
	}
	return out
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

func renderValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', 4, 64)
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}
