package corrosion

import (
	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

// Default confidence curve: three readings give half the count credit, and a residual
// variance of 0.0004 in² (0.02 in scatter) halves the variance credit.
var (
	DefaultCountHalfSaturation = decimal.NewFromInt(3)
	DefaultVarianceScale       = decimal.RequireFromString("0.0004")
)

// Engine computes corrosion rates and scores them. It holds only the confidence curve
// parameters and is safe for concurrent use.
type Engine struct {
	K  decimal.Decimal
	V0 decimal.Decimal
}

func NewEngine(k, v0 decimal.Decimal) (*Engine, error) {
	if !k.IsPositive() {
		return nil, errs.Validation("confidence.count_half_saturation", "must be positive")
	}
	if !v0.IsPositive() {
		return nil, errs.Validation("confidence.variance_scale", "must be positive")
	}
	return &Engine{K: k, V0: v0}, nil
}

func DefaultEngine() *Engine {
	return &Engine{K: DefaultCountHalfSaturation, V0: DefaultVarianceScale}
}

// Score is 100 · n/(n+K) · V0/(V0+variance), rounded to 2 places. It is non-decreasing
// in n, non-increasing in variance and stays within [0, 100].
//
// Variance is the scatter about the fitted trend, so a location with exactly two
// observations always has zero variance and is limited by the count term alone.
func (e *Engine) Score(n int, variance decimal.Decimal) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	if variance.IsNegative() {
		variance = decimal.Zero
	}
	count := decimal.NewFromInt(int64(n))
	countTerm := fixed.MustDiv(count, count.Add(e.K))
	spreadTerm := fixed.MustDiv(e.V0, e.V0.Add(variance))
	return fixed.Clamp(fixed.Hundred.Mul(countTerm).Mul(spreadTerm).Round(2), decimal.Zero, fixed.Hundred)
}

// Summary is the inspection-level view across all monitoring locations.
type Summary struct {
	Governing  Result          `json:"governing"`
	Locations  []Result        `json:"locations"`
	Readings   int             `json:"readings"`
	Variance   decimal.Decimal `json:"variance"`
	Confidence decimal.Decimal `json:"confidence"`
}

// Summarize picks the governing location (largest governing rate, then thinnest current
// wall, then location name) and scores all contributing observations together using the
// pooled residual variance.
func (e *Engine) Summarize(results []Result) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, &errs.Error{Kind: errs.KindResolution, Op: "corrosion summary", Field: "readings", Err: ErrInsufficientData}
	}
	gov := results[0]
	total := 0
	weighted := decimal.Zero
	for i, r := range results {
		total += r.Readings
		weighted = weighted.Add(r.Variance.Mul(decimal.NewFromInt(int64(r.Readings))))
		if i > 0 && governs(r, gov) {
			gov = r
		}
	}
	if total == 0 {
		return Summary{}, &errs.Error{Kind: errs.KindResolution, Op: "corrosion summary", Field: "readings", Err: ErrInsufficientData}
	}
	variance := fixed.MustDiv(weighted, decimal.NewFromInt(int64(total))).Round(varianceplaces)
	locs := make([]Result, len(results))
	copy(locs, results)
	return Summary{
		Governing:  gov,
		Locations:  locs,
		Readings:   total,
		Variance:   variance,
		Confidence: e.Score(total, variance),
	}, nil
}

func governs(a, b Result) bool {
	if c := a.GoverningRate.Cmp(b.GoverningRate); c != 0 {
		return c > 0
	}
	if c := a.CurrentThickness.Cmp(b.CurrentThickness); c != 0 {
		return c < 0
	}
	return a.Location < b.Location
}
