// Package adapter connects host logging frameworks to a logging.Emitter.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
)

// SlogRecord exposes a slog.Record as a logging.Record. Attributes are
// appended to the message as key=value pairs.
type SlogRecord struct {
	Record slog.Record
	Attrs  []slog.Attr
}

func (r SlogRecord) Created() float64 {
	if r.Record.Time.IsZero() {
		return logging.Seconds(time.Now())
	}
	return logging.Seconds(r.Record.Time)
}

func (r SlogRecord) LevelName() string {
	return r.Record.Level.String()
}

func (r SlogRecord) Message() (string, error) {
	var sb strings.Builder
	sb.WriteString(r.Record.Message)

	for _, a := range r.Attrs {
		appendAttr(&sb, "", a)
	}
	r.Record.Attrs(func(a slog.Attr) bool {
		appendAttr(&sb, "", a)
		return true
	})

	return sb.String(), nil
}

func appendAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(sb, prefix, ga)
		}
		return
	}

	if a.Key == "" {
		return
	}
	fmt.Fprintf(sb, " %s%s=%s", prefix, a.Key, quoteIfNeeded(a.Value.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// SlogHandler is a slog.Handler feeding an Emitter.
//
//	h, _ := batch.NewLokiHandler(url, labels, nil)
//	logger := slog.New(adapter.NewSlogHandler(h, nil))
type SlogHandler struct {
	emitter logging.Emitter
	level   slog.Leveler
	attrs   []slog.Attr
	groups  []string
}

type SlogOptions struct {
	// Level is the minimum level handled. The default is slog.LevelInfo.
	Level slog.Leveler
}

func NewSlogHandler(e logging.Emitter, opts *SlogOptions) *SlogHandler {
	h := &SlogHandler{emitter: e, level: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	rec := SlogRecord{Record: r, Attrs: h.attrs}

	// record attrs belong to the innermost group
	if len(h.groups) > 0 && r.NumAttrs() > 0 {
		var inner []any
		r.Attrs(func(a slog.Attr) bool {
			inner = append(inner, a)
			return true
		})
		grouped := slog.Group(h.groups[len(h.groups)-1], inner...)
		for i := len(h.groups) - 2; i >= 0; i-- {
			grouped = slog.Group(h.groups[i], grouped)
		}

		rec.Record = slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		rec.Record.AddAttrs(grouped)
	}

	return h.emitter.Emit(rec)
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = append(append([]slog.Attr(nil), h.attrs...), h.wrapGroups(attrs)...)
	return &h2
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

func (h *SlogHandler) wrapGroups(attrs []slog.Attr) []slog.Attr {
	if len(h.groups) == 0 {
		return attrs
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	grouped := slog.Group(h.groups[len(h.groups)-1], args...)
	for i := len(h.groups) - 2; i >= 0; i-- {
		grouped = slog.Group(h.groups[i], grouped)
	}
	return []slog.Attr{grouped}
}
