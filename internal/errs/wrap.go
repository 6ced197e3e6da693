package errs

import (
	"errors"
	"fmt"
	"log/slog"
)

// Wrap prefixes err with the operation that failed. The kind of a wrapped *Error is kept.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Loggable renders err as a log group: the message, and for a typed failure its kind,
// offending field, standards reference and whether a retry can help. A joined
// validation error also reports every field it names.
//
//	logging.Warn(ctx, "assessment rejected", slog.Any("err", errs.Loggable(err)))
func Loggable(err error) slog.LogValuer { return logValue{err} }

type logValue struct{ err error }

func (v logValue) LogValue() slog.Value {
	if v.err == nil {
		return slog.GroupValue()
	}
	attrs := []slog.Attr{slog.String("message", v.err.Error())}

	var e *Error
	if !errors.As(v.err, &e) {
		if chain := Chain(v.err); len(chain) > 1 {
			attrs = append(attrs, slog.String("cause", chain[len(chain)-1]))
		}
		return slog.GroupValue(attrs...)
	}
	attrs = append(attrs, slog.String("kind", e.Kind.String()))
	if e.Op != "" {
		attrs = append(attrs, slog.String("op", e.Op))
	}
	if e.Citation != "" {
		attrs = append(attrs, slog.String("citation", e.Citation))
	}
	if fields := Fields(v.err); len(fields) > 1 {
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Field
		}
		attrs = append(attrs, slog.Any("fields", names))
	} else if e.Field != "" {
		attrs = append(attrs, slog.String("field", e.Field))
	}
	if Retryable(v.err) {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	return slog.GroupValue(attrs...)
}

// Chain lists the messages of err and everything it wraps, outermost first.
func Chain(err error) []string {
	var out []string
	for ; err != nil; err = errors.Unwrap(err) {
		out = append(out, err.Error())
	}
	return out
}
