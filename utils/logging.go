package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// NewLogger returns a json logger understood by Cloud Logging when format is "json", and a human readable
// logger otherwise.
func NewLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			ReplaceAttr: GCPLoggerAttributeReplacer,
		}))
	}
	return slog.New(LocalDevHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelDebug},
		UseColor: true,
	}.NewLocalDevHandler(os.Stderr))
}

func GCPLoggerAttributeReplacer(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.MessageKey:
		// Cloud Logging reads the main message from "message"
		a.Key = "message"
	case slog.LevelKey:
		a.Key = "severity"
		level, _ := a.Value.Any().(slog.Level)
		a.Value = slog.StringValue(gcpSeverity(level))
	}
	return a
}

func gcpSeverity(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// LocalDevHandler prints the time, level and message in front of the attributes, which are formatted by a text handler
type LocalDevHandler struct {
	opts     LocalDevHandlerOptions
	internal slog.Handler

	mu *sync.Mutex
	w  io.Writer
}

type LocalDevHandlerOptions struct {
	SlogOpts slog.HandlerOptions
	UseColor bool
}

func (opts LocalDevHandlerOptions) NewLocalDevHandler(w io.Writer) *LocalDevHandler {
	internalOpts := opts.SlogOpts
	internalOpts.AddSource = false
	internalOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
			return slog.Attr{}
		}
		if opts.SlogOpts.ReplaceAttr != nil {
			return opts.SlogOpts.ReplaceAttr(groups, a)
		}
		return a
	}
	return &LocalDevHandler{
		opts:     opts,
		w:        w,
		mu:       &sync.Mutex{},
		internal: slog.NewTextHandler(w, &internalOpts),
	}
}

func (h *LocalDevHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.internal.Enabled(ctx, level)
}

func (h *LocalDevHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer
	level := r.Level.String()
	if h.opts.UseColor {
		level = colorizeLevel(r.Level)
	}
	fmt.Fprintf(&buf, "%s %s %s ", r.Time.Format(time.RFC3339), level, r.Message)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(buf.Bytes()); err != nil {
		return err
	}
	return h.internal.Handle(ctx, r)
}

func (h *LocalDevHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LocalDevHandler{opts: h.opts, w: h.w, mu: h.mu, internal: h.internal.WithAttrs(attrs)}
}

func (h *LocalDevHandler) WithGroup(name string) slog.Handler {
	return &LocalDevHandler{opts: h.opts, w: h.w, mu: h.mu, internal: h.internal.WithGroup(name)}
}

func colorizeLevel(level slog.Level) string {
	color := 31 // red
	switch {
	case level < slog.LevelInfo:
		color = 35 // magenta
	case level < slog.LevelWarn:
		color = 34 // blue
	case level < slog.LevelError:
		color = 33 // yellow
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, level.String())
}
