package server

import (
	"context"
	"log/slog"
	"time"
)

// LogPayload is one log record forwarded to a streaming client.
type LogPayload struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// StreamLogHandler is a slog.Handler that hands the records of one request to emit, in addition
// to the process-wide handler it wraps. Records below Level are only passed to the wrapped handler.
type StreamLogHandler struct {
	Next  slog.Handler
	Level slog.Leveler
	emit  func(LogPayload)
	attrs []slog.Attr
}

func NewStreamLogHandler(next slog.Handler, level slog.Leveler, emit func(LogPayload)) *StreamLogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &StreamLogHandler{Next: next, Level: level, emit: emit}
}

func (h *StreamLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.Level.Level() || h.Next.Enabled(ctx, level)
}

func (h *StreamLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.Level.Level() && h.emit != nil {
		attrs := make(map[string]string, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			attrs[a.Key] = a.Value.String()
		}
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.String()
			return true
		})
		h.emit(LogPayload{Time: r.Time, Level: r.Level.String(), Message: r.Message, Attrs: attrs})
	}
	if h.Next.Enabled(ctx, r.Level) {
		return h.Next.Handle(ctx, r)
	}
	return nil
}

func (h *StreamLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.Next = h.Next.WithAttrs(attrs)
	cp.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &cp
}

// WithGroup only groups the wrapped handler; streamed attributes stay flat.
func (h *StreamLogHandler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.Next = h.Next.WithGroup(name)
	return &cp
}
