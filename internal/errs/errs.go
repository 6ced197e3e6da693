package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind separates "fix your input" failures from "system problem, retry" failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindResolution
	KindComputation
	KindPersistence
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResolution:
		return "insufficient_data"
	case KindComputation:
		return "computation"
	case KindPersistence:
		return "persistence"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the calculation core and its adapters.
type Error struct {
	Kind     Kind
	Op       string
	Field    string
	Reason   string
	Citation string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Field != "" {
		b.WriteString(" [")
		b.WriteString(e.Field)
		b.WriteString("]")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Citation != "" {
		b.WriteString(" (")
		b.WriteString(e.Citation)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Cite attaches a standards reference to the error.
func (e *Error) Cite(citation string) *Error {
	e.Citation = citation
	return e
}

func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

func Validationf(field, format string, args ...any) *Error {
	return Validation(field, fmt.Sprintf(format, args...))
}

// Resolution reports data that could not be resolved; what names the missing dimension,
// material or history.
func Resolution(what, reason string) *Error {
	return &Error{Kind: KindResolution, Field: what, Reason: reason}
}

func Computation(op, field, reason string) *Error {
	return &Error{Kind: KindComputation, Op: op, Field: field, Reason: reason}
}

func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

func Invariant(op, reason string) *Error {
	return &Error{Kind: KindInvariant, Op: op, Reason: reason}
}

// KindOf returns the kind of the first typed error in the chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether re-submitting the same request can succeed unchanged.
func Retryable(err error) bool {
	return IsKind(err, KindPersistence)
}

// Join combines field errors; nil entries are dropped and an empty list yields nil.
func Join(list ...*Error) error {
	out := make([]error, 0, len(list))
	for _, e := range list {
		if e != nil {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	if len(out) == 1 {
		return out[0]
	}
	return errors.Join(out...)
}

// Fields lists every typed error contained in err, including joined ones.
func Fields(err error) []*Error {
	if err == nil {
		return nil
	}
	var out []*Error
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if typed, ok := e.(*Error); ok {
			out = append(out, typed)
			return
		}
		if multi, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				walk(inner)
			}
			return
		}
		walk(errors.Unwrap(e))
	}
	walk(err)
	return out
}
