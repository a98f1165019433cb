package logger

import (
	"context"
	"io"
	"log/slog"
)

// ColorTextHandler wraps slog.TextHandler and prefixes the message with the
// level in an ANSI color.
type ColorTextHandler struct {
	*slog.TextHandler
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	return &ColorTextHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // Red
	case l >= slog.LevelWarn:
		return "\033[33m" // Yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // Green
	default:
		return "\033[36m" // Cyan
	}
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = levelColor(r.Level) + r.Level.String() + "\033[0m  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithAttrs(attrs).(*slog.TextHandler)}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithGroup(name).(*slog.TextHandler)}
}
