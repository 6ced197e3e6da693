package corrosion

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

// ErrInsufficientData is wrapped by Compute when a location has fewer than two observations.
var ErrInsufficientData = errors.New("at least two thickness observations are required to compute a corrosion rate")

type Observation struct {
	Thickness decimal.Decimal `json:"thickness"`
	Date      time.Time       `json:"date"`
}

// Series is the measurement history of one corrosion monitoring location, oldest first.
type Series struct {
	Location     string          `json:"location"`
	Nominal      decimal.Decimal `json:"nominal"`
	InstallDate  *time.Time      `json:"install_date,omitempty"`
	Observations []Observation   `json:"observations"`
}

type Basis string

const (
	BasisLongTerm  Basis = "LONG_TERM"
	BasisShortTerm Basis = "SHORT_TERM"
	BasisNone      Basis = "NONE"
)

type Result struct {
	Location         string              `json:"location"`
	CurrentThickness decimal.Decimal     `json:"current_thickness"`
	LatestDate       time.Time           `json:"latest_date"`
	LongTermRate     decimal.NullDecimal `json:"long_term_rate"`
	ShortTermRate    decimal.NullDecimal `json:"short_term_rate"`
	TrendRate        decimal.NullDecimal `json:"trend_rate"`
	GoverningRate    decimal.Decimal     `json:"governing_rate"`
	Basis            Basis               `json:"basis"`
	Negligible       bool                `json:"negligible"`
	ReviewRequired   bool                `json:"review_required"`
	Readings         int                 `json:"readings"`
	Variance         decimal.Decimal     `json:"variance"`
	Confidence       decimal.Decimal     `json:"confidence"`
	Assumptions      []string            `json:"assumptions,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
}

const (
	rateplaces     = 5
	varianceplaces = 10
)

// Compute derives long-term, short-term and trend rates for one location and picks
// the governing rate. Rates are wall loss in inches per year; positive means thinning.
func (e *Engine) Compute(s Series) (Result, error) {
	if len(s.Observations) < 2 {
		return Result{}, &errs.Error{Kind: errs.KindResolution, Op: "corrosion rate", Field: location(s), Err: ErrInsufficientData}
	}
	if err := validate(s); err != nil {
		return Result{}, err
	}

	obs := s.Observations
	first, prev, last := obs[0], obs[len(obs)-2], obs[len(obs)-1]
	res := Result{
		Location:         s.Location,
		CurrentThickness: last.Thickness,
		LatestDate:       last.Date,
		Readings:         len(obs),
	}

	baseThickness, baseDate := s.Nominal, time.Time{}
	if s.InstallDate != nil {
		baseDate = *s.InstallDate
	} else {
		baseThickness, baseDate = first.Thickness, first.Date
		res.Assumptions = append(res.Assumptions, fmt.Sprintf(
			"no installation date for %s; long-term rate measured from the first observation on %s",
			location(s), first.Date.Format(time.DateOnly)))
	}
	long, err := rate(baseThickness, last.Thickness, baseDate, last.Date, "long_term_rate")
	if err != nil {
		return Result{}, err
	}
	short, err := rate(prev.Thickness, last.Thickness, prev.Date, last.Date, "short_term_rate")
	if err != nil {
		return Result{}, err
	}
	res.LongTermRate = fixed.Null(long.Round(rateplaces))
	res.ShortTermRate = fixed.Null(short.Round(rateplaces))

	slope, variance := trend(obs)
	res.TrendRate = fixed.Null(slope.Neg().Round(rateplaces))
	res.Variance = variance.Round(varianceplaces)
	res.Confidence = e.Score(res.Readings, res.Variance)

	lt, st := res.LongTermRate.Decimal, res.ShortTermRate.Decimal
	switch {
	case lt.IsPositive() && (!st.IsPositive() || !st.GreaterThan(lt)):
		res.GoverningRate, res.Basis = lt, BasisLongTerm
	case st.IsPositive():
		res.GoverningRate, res.Basis = st, BasisShortTerm
	default:
		res.GoverningRate, res.Basis = decimal.Zero, BasisNone
		res.Negligible = true
		res.ReviewRequired = true
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"no measurable wall loss at %s (thickness unchanged or increased); corrosion rate treated as negligible, engineering review required",
			location(s)))
	}
	if st.IsNegative() && lt.IsPositive() {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"latest reading at %s is thicker than the previous one; check probe placement", location(s)))
	}
	return res, nil
}

func validate(s Series) error {
	var list []*errs.Error
	if !s.Nominal.IsPositive() {
		list = append(list, errs.Validationf("nominal", "nominal thickness at %s must be positive", location(s)))
	}
	for i, o := range s.Observations {
		if o.Thickness.IsNegative() {
			list = append(list, errs.Validationf("thickness", "observation %d at %s has negative thickness %s", i+1, location(s), o.Thickness))
		}
		if o.Date.IsZero() {
			list = append(list, errs.Validationf("date", "observation %d at %s has no date", i+1, location(s)))
			continue
		}
		if i > 0 && !fixed.DateOnly(o.Date).After(fixed.DateOnly(s.Observations[i-1].Date)) {
			list = append(list, errs.Validationf("date",
				"observations at %s must have distinct dates in ascending order (%s after %s)",
				location(s), o.Date.Format(time.DateOnly), s.Observations[i-1].Date.Format(time.DateOnly)))
		}
	}
	if s.InstallDate != nil && len(s.Observations) > 0 &&
		!fixed.DateOnly(*s.InstallDate).Before(fixed.DateOnly(s.Observations[0].Date)) {
		list = append(list, errs.Validationf("install_date", "installation date at %s must precede the first observation", location(s)))
	}
	return errs.Join(list...)
}

func rate(from, to decimal.Decimal, fromDate, toDate time.Time, field string) (decimal.Decimal, error) {
	years := fixed.Years(fromDate, toDate)
	return fixed.Div(from.Sub(to), years, field)
}

// trend fits thickness against time by least squares and returns the slope (in/yr) and
// the population variance of the residuals about the fitted line.
func trend(obs []Observation) (slope, variance decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(obs)))
	xs := make([]decimal.Decimal, len(obs))
	sumX, sumY := decimal.Zero, decimal.Zero
	for i, o := range obs {
		xs[i] = fixed.Years(obs[0].Date, o.Date)
		sumX = sumX.Add(xs[i])
		sumY = sumY.Add(o.Thickness)
	}
	meanX := fixed.MustDiv(sumX, n)
	meanY := fixed.MustDiv(sumY, n)

	sxx, sxy := decimal.Zero, decimal.Zero
	for i, o := range obs {
		dx := xs[i].Sub(meanX)
		sxx = sxx.Add(dx.Mul(dx))
		sxy = sxy.Add(dx.Mul(o.Thickness.Sub(meanY)))
	}
	if sxx.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	slope = fixed.MustDiv(sxy, sxx)

	ss := decimal.Zero
	for i, o := range obs {
		r := o.Thickness.Sub(meanY.Add(slope.Mul(xs[i].Sub(meanX))))
		ss = ss.Add(r.Mul(r))
	}
	return slope, fixed.MustDiv(ss, n)
}

func location(s Series) string {
	if s.Location == "" {
		return "unnamed location"
	}
	return s.Location
}
