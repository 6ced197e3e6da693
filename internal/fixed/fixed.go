// Package fixed holds the base-10 arithmetic helpers shared by the calculation core.
// Thickness, pressure, stress and rate values never pass through float64.
package fixed

import (
	"time"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
)

// Precision is the number of decimal places kept by intermediate divisions.
const Precision = 16

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Two     = decimal.NewFromInt(2)
	Hundred = decimal.NewFromInt(100)
	Half    = decimal.RequireFromString("0.5")

	daysPerYear = decimal.RequireFromString("365.25")
)

// Div divides a by b at Precision places; a zero divisor is a computation error naming field.
func Div(a, b decimal.Decimal, field string) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, errs.Computation("divide", field, "division by zero")
	}
	return a.DivRound(b, Precision), nil
}

// MustDiv is Div for divisors that are non-zero by construction (table constants).
func MustDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		panic("fixed: division by zero constant")
	}
	return a.DivRound(b, Precision)
}

// Years is the civil-day span between two dates expressed in years of 365.25 days.
func Years(from, to time.Time) decimal.Decimal {
	days := Days(from, to)
	return decimal.NewFromInt(days).DivRound(daysPerYear, Precision)
}

// Days counts whole calendar days between the UTC dates of from and to.
func Days(from, to time.Time) int64 {
	f := DateOnly(from)
	t := DateOnly(to)
	return int64(t.Sub(f) / (24 * time.Hour))
}

func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DownToHalf rounds toward negative infinity on a 0.5 grid (pressure display).
func DownToHalf(d decimal.Decimal) decimal.Decimal {
	return d.Mul(Two).Floor().Mul(Half)
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp bounds d to [lo, hi]. Callers use it only where bounding is the defined behavior.
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	return Min(Max(d, lo), hi)
}

// RelativeDiff is |a-b|/|ref|; ref must be non-zero.
func RelativeDiff(a, b, ref decimal.Decimal, field string) (decimal.Decimal, error) {
	return Div(a.Sub(b).Abs(), ref.Abs(), field)
}

// Null wraps a value as a present NullDecimal.
func Null(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Or returns the value of n, or def when n is absent.
func Or(n decimal.NullDecimal, def decimal.Decimal) decimal.Decimal {
	if n.Valid {
		return n.Decimal
	}
	return def
}
