package material

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

var (
	// Conservative fallback for specifications missing from the table; lower than every
	// tabulated allowable stress.
	DefaultAllowable    = decimal.NewFromInt(8000)
	DefaultSafetyFactor = decimal.RequireFromString("4.0")
	DefaultTensile      = decimal.NewFromInt(40000)
	DefaultYield        = decimal.NewFromInt(20000)

	// Penalties applied above the highest tabulated temperature.
	ExtrapolationSafetyMargin = decimal.RequireFromString("1.10")
	ExtrapolationStressMargin = decimal.RequireFromString("0.90")
)

const (
	SourceDefault = "CONSERVATIVE-DEFAULT"
	stressPlaces  = 2
)

// Metadata describes how an allowable stress was obtained.
type Metadata struct {
	Material     string          `json:"material"`
	Grade        string          `json:"grade,omitempty"`
	Category     Category        `json:"category"`
	TemperatureF decimal.Decimal `json:"temperature_f"`
	Tensile      decimal.Decimal `json:"tensile_strength"`
	Yield        decimal.Decimal `json:"yield_strength"`
	SafetyFactor decimal.Decimal `json:"safety_factor"`
	Source       string          `json:"source"`
	Interpolated bool            `json:"interpolated"`
	Extrapolated bool            `json:"extrapolated"`
	Clamped      bool            `json:"clamped"`
	Defaulted    bool            `json:"defaulted"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// Resolver answers allowable-stress lookups against a table that can be replaced
// atomically while lookups run.
type Resolver struct {
	table atomic.Pointer[Table]
}

func NewResolver(t *Table) *Resolver {
	if t == nil {
		t = Builtin()
	}
	r := &Resolver{}
	r.table.Store(t)
	return r
}

func (r *Resolver) Table() *Table { return r.table.Load() }

// Swap replaces the whole table. Tables are only constructible through NewTable, so the
// new one is already validated.
func (r *Resolver) Swap(t *Table) error {
	if t == nil {
		return errs.Invariant("material table swap", "nil table")
	}
	r.table.Store(t)
	return nil
}

// AllowableStress resolves the allowable stress of spec at temperatureF. Unknown
// materials and out-of-range temperatures degrade to conservative values; the only
// error is an inconsistent table.
func (r *Resolver) AllowableStress(spec string, temperatureF decimal.Decimal) (decimal.Decimal, Metadata, error) {
	t := r.table.Load()
	if t == nil {
		return decimal.Zero, Metadata{}, errs.Invariant("allowable stress", "no material table loaded")
	}

	meta := Metadata{Material: strings.TrimSpace(spec), TemperatureF: temperatureF, Source: t.Version()}

	grade, ok := t.Lookup(spec)
	if !ok {
		meta.Category = Unknown
		meta.Tensile = DefaultTensile
		meta.Yield = DefaultYield
		meta.SafetyFactor = DefaultSafetyFactor
		meta.Source = SourceDefault
		meta.Defaulted = true
		meta.Warnings = append(meta.Warnings, fmt.Sprintf(
			"material %q not in table %s; conservative allowable stress %s psi used with safety factor %s",
			meta.Material, t.Version(), DefaultAllowable, DefaultSafetyFactor))
		return DefaultAllowable, meta, nil
	}
	meta.Grade = grade.Spec
	meta.Category = grade.Category

	pts := grade.Points
	first, last := pts[0], pts[len(pts)-1]

	var p Point
	switch {
	case temperatureF.LessThan(first.TemperatureF):
		p = first
		meta.Clamped = true
		meta.Warnings = append(meta.Warnings, fmt.Sprintf(
			"temperature %s F below lowest tabulated %s F; lowest-temperature values used", temperatureF, first.TemperatureF))
	case temperatureF.GreaterThan(last.TemperatureF):
		p = last
		p.SafetyFactor = last.SafetyFactor.Mul(ExtrapolationSafetyMargin)
		p.Allowable = last.Allowable.Mul(ExtrapolationStressMargin)
		meta.Extrapolated = true
		meta.Warnings = append(meta.Warnings, fmt.Sprintf(
			"temperature %s F above highest tabulated %s F; allowable stress reduced by factor %s and safety factor raised by %s",
			temperatureF, last.TemperatureF, ExtrapolationStressMargin, ExtrapolationSafetyMargin))
	default:
		i := sort.Search(len(pts), func(i int) bool { return !pts[i].TemperatureF.LessThan(temperatureF) })
		if pts[i].TemperatureF.Equal(temperatureF) {
			p = pts[i]
			break
		}
		ip, err := interpolate(pts[i-1], pts[i], temperatureF)
		if err != nil {
			return decimal.Zero, Metadata{}, err
		}
		p = ip
		meta.Interpolated = true
	}

	meta.Tensile = p.Tensile.Round(stressPlaces)
	meta.Yield = p.Yield.Round(stressPlaces)
	meta.SafetyFactor = p.SafetyFactor.Round(4)
	return p.Allowable.Round(stressPlaces), meta, nil
}

// interpolate treats each property as an independent linear function of the
// temperature fraction between lo and hi.
func interpolate(lo, hi Point, temperatureF decimal.Decimal) (Point, error) {
	span := hi.TemperatureF.Sub(lo.TemperatureF)
	if !span.IsPositive() {
		return Point{}, errs.Invariant("allowable stress interpolation",
			fmt.Sprintf("bracketing temperatures %s F and %s F are not increasing", lo.TemperatureF, hi.TemperatureF))
	}
	frac, err := fixed.Div(temperatureF.Sub(lo.TemperatureF), span, "temperature")
	if err != nil {
		return Point{}, err
	}
	lerp := func(a, b decimal.Decimal) decimal.Decimal {
		return a.Add(frac.Mul(b.Sub(a)))
	}
	return Point{
		TemperatureF: temperatureF,
		Allowable:    lerp(lo.Allowable, hi.Allowable),
		Tensile:      lerp(lo.Tensile, hi.Tensile),
		Yield:        lerp(lo.Yield, hi.Yield),
		SafetyFactor: lerp(lo.SafetyFactor, hi.SafetyFactor),
	}, nil
}
