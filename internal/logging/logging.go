// Package logging carries a slog logger and the attributes of the work in progress
// (equipment, calculation, queue subject) on the context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
)

// scope is what a context carries: the logger to write to and the attributes added so
// far. A scope is never modified after it is stored.
type scope struct {
	logger *slog.Logger
	attrs  []slog.Attr
}

type scopeKey struct{}

var fallback = New(os.Stderr, slog.LevelInfo)

// New builds the text logger used by the server, the CLI and the worker.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func current(ctx context.Context) scope {
	if ctx != nil {
		if s, ok := ctx.Value(scopeKey{}).(scope); ok {
			return s
		}
	}
	return scope{logger: fallback}
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		return ctx
	}
	s := current(ctx)
	s.logger = logger
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithAttrs adds attributes to every later log call on ctx. An attribute whose key is
// already present replaces the earlier value in place.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(attrs) == 0 {
		return ctx
	}
	s := current(ctx)
	s.attrs = merge(s.attrs, attrs)
	return context.WithValue(ctx, scopeKey{}, s)
}

func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelDebug, msg, attrs)
}

func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelInfo, msg, attrs)
}

func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelWarn, msg, attrs)
}

func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelError, msg, attrs)
}

func emit(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := current(ctx)
	if !s.logger.Enabled(ctx, level) {
		return
	}
	s.logger.LogAttrs(ctx, level, msg, merge(s.attrs, attrs)...)
}

// merge returns a new slice; base is never written to.
func merge(base, extra []slog.Attr) []slog.Attr {
	out := slices.Clone(base)
	for _, a := range extra {
		i := slices.IndexFunc(out, func(b slog.Attr) bool { return a.Key != "" && b.Key == a.Key })
		if i >= 0 {
			out[i] = a
			continue
		}
		out = append(out, a)
	}
	return out
}
