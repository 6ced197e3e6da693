// Package api579 implements the Level 1 general metal loss assessment of API 579-1/ASME
// FFS-1 Part 4 for cylindrical shells. The remaining strength factor is computed along
// two independent paths (stress based and MAWP based) that must agree within tolerance.
package api579

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/geometry"
	"Wallcheck/internal/calc/material"
	"Wallcheck/internal/calc/risk"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

// MaterialLookup resolves allowable stress; *material.Resolver implements it.
type MaterialLookup interface {
	AllowableStress(spec string, temperatureF decimal.Decimal) (decimal.Decimal, material.Metadata, error)
}

// GeometryLookup resolves and checks the internal radius; *geometry.Resolver implements it.
type GeometryLookup interface {
	Resolve(d geometry.Dimensions) (geometry.Resolution, error)
	Validate(d geometry.Dimensions, radius decimal.Decimal) []geometry.Warning
}

const (
	WarnCrossPath          = "CROSS_PATH_DISCREPANCY"
	WarnMaterialDefaulted  = "MATERIAL_DEFAULTED"
	WarnMaterialRange      = "MATERIAL_TEMPERATURE_RANGE"
	WarnGeometry           = "GEOMETRY"
	WarnNegligibleRate     = "NEGLIGIBLE_CORROSION_RATE"
	WarnThinWallLimit      = "THIN_WALL_APPLICABILITY"
	WarnAllowanceConsumed  = "CORROSION_ALLOWANCE_CONSUMED"
	WarnDesignBelowMinimum = "DESIGN_BELOW_MINIMUM"
	WarnBelowMinimum       = "BELOW_MINIMUM_THICKNESS"
)

type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Citation string `json:"citation,omitempty"`
}

// PathA is the thickness/stress based evaluation.
type PathA struct {
	MinRequiredThickness decimal.Decimal `json:"min_required_thickness"`
	StressAtDesign       decimal.Decimal `json:"hoop_stress_design"`
	StressAtCurrent      decimal.Decimal `json:"hoop_stress_current"`
	RSF                  decimal.Decimal `json:"rsf"`
}

// PathB is the pressure based evaluation.
type PathB struct {
	MAWPCurrent   decimal.Decimal `json:"mawp_current"`
	MAWPDesign    decimal.Decimal `json:"mawp_design"`
	MAWPAtMinimum decimal.Decimal `json:"mawp_at_min_required"`
	RSF           decimal.Decimal `json:"rsf"`
	PressureRatio decimal.Decimal `json:"pressure_ratio"`
}

type CrossCheck struct {
	RSFDifference       decimal.Decimal `json:"rsf_relative_difference"`
	RoundTripDifference decimal.Decimal `json:"round_trip_relative_difference"`
	Tolerance           decimal.Decimal `json:"tolerance"`
	Agreed              bool            `json:"agreed"`
}

// Resolved records the values the calculator looked up rather than received.
type Resolved struct {
	AllowableStress decimal.Decimal      `json:"allowable_stress"`
	Material        *material.Metadata   `json:"material,omitempty"`
	InternalRadius  decimal.Decimal      `json:"internal_radius"`
	Geometry        *geometry.Resolution `json:"geometry,omitempty"`
}

// Calculation is the immutable record of one assessment run.
type Calculation struct {
	ID         string `json:"id"`
	RequestKey string `json:"request_key"`
	Inputs     Input  `json:"inputs"`

	Resolved Resolved `json:"resolved"`

	CurrentThickness           decimal.Decimal     `json:"current_thickness"`
	MinRequiredThickness       decimal.Decimal     `json:"min_required_thickness"`
	RSF                        decimal.Decimal     `json:"rsf"`
	MAWP                       decimal.Decimal     `json:"mawp"`
	RemainingLife              decimal.NullDecimal `json:"remaining_life"`
	RemainingLifeIndeterminate bool                `json:"remaining_life_indeterminate"`

	PathA      PathA      `json:"path_a"`
	PathB      PathB      `json:"path_b"`
	CrossCheck CrossCheck `json:"cross_check"`

	Verdict        Verdict         `json:"verdict"`
	RiskLevel      risk.Level      `json:"risk_level"`
	Confidence     decimal.Decimal `json:"confidence"`
	Method         Method          `json:"method"`
	Level2Required bool            `json:"level_2_required"`
	ReviewRequired bool            `json:"review_required"`
	Recommendation string          `json:"recommendation"`
	Warnings       []Warning       `json:"warnings"`
	Assumptions    []string        `json:"assumptions"`

	CalculationDate time.Time `json:"calculation_date"`
}

// DefaultConfidence is used when the caller supplies no corrosion confidence.
var DefaultConfidence = decimal.NewFromInt(50)

var (
	sixTenths      = decimal.RequireFromString("0.6")
	thinWallFactor = decimal.RequireFromString("0.385")
)

// Calculator is pure: the same Input always gives the same Calculation. It holds only
// read-only collaborators and is safe for concurrent use.
type Calculator struct {
	policy    Policy
	materials MaterialLookup
	geometry  GeometryLookup
}

func NewCalculator(p Policy, materials MaterialLookup, geo GeometryLookup) (*Calculator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if materials == nil || geo == nil {
		return nil, errs.Invariant("api579 calculator", "material and geometry lookups are required")
	}
	return &Calculator{policy: p, materials: materials, geometry: geo}, nil
}

func (c *Calculator) Policy() Policy { return c.policy }

// Calculate validates, resolves and evaluates in. Missing or invalid input fails before
// any computation. A disagreement between the two paths is reported in the result,
// never as an error.
func (c *Calculator) Calculate(in Input) (Calculation, error) {
	in = in.Clone()
	if err := in.Validate(); err != nil {
		return Calculation{}, err
	}
	key, err := RequestKey(in)
	if err != nil {
		return Calculation{}, err
	}

	out := Calculation{
		ID:              CalculationID(key),
		RequestKey:      key,
		Inputs:          in,
		CalculationDate: in.CalculationDate,
		Warnings:        []Warning{},
		Assumptions:     []string{},
	}
	confidence := fixed.Or(in.CorrosionConfidence, DefaultConfidence)
	if !in.CorrosionConfidence.Valid {
		out.Assumptions = append(out.Assumptions, fmt.Sprintf("no corrosion confidence supplied; %s used", DefaultConfidence))
	}
	penalties := c.policy.Penalties

	// Resolution.
	s, mat, err := c.resolveStress(in)
	if err != nil {
		return Calculation{}, err
	}
	out.Resolved.AllowableStress = s
	if mat != nil {
		out.Resolved.Material = mat
		for _, w := range mat.Warnings {
			code := WarnMaterialRange
			if mat.Defaulted {
				code = WarnMaterialDefaulted
			}
			out.Warnings = append(out.Warnings, Warning{Code: code, Message: w, Citation: "ASME II-D Table 1A"})
		}
		if mat.Defaulted {
			confidence = confidence.Sub(penalties.MaterialDefaulted)
		}
		if mat.Extrapolated {
			confidence = confidence.Sub(penalties.MaterialExtrapolated)
		}
	}

	radius, geoRes, geoWarnings, err := c.resolveRadius(in)
	if err != nil {
		return Calculation{}, err
	}
	out.Resolved.InternalRadius = radius
	out.Resolved.Geometry = geoRes
	for _, w := range geoWarnings {
		out.Warnings = append(out.Warnings, Warning{Code: WarnGeometry + ":" + w.Code, Message: w.Message, Citation: "API 579-1 Part 4, 4.2"})
		confidence = confidence.Sub(penalties.GeometryWarning)
	}

	// Both paths.
	P, E, R := in.DesignPressure, in.JointEfficiency, radius
	td := in.DesignThickness
	tc := in.currentThickness()
	SE := s.Mul(E)

	denom := SE.Sub(sixTenths.Mul(P))
	if !denom.IsPositive() {
		return Calculation{}, errs.Computation("minimum required thickness", "design_pressure",
			fmt.Sprintf("S*E - 0.6*P = %s is not positive; design pressure %s psi exceeds the thin-shell formula range for S*E %s psi", denom, P, SE)).
			Cite("ASME VIII-1 UG-27(c)(1)")
	}

	a, err := pathA(P, R, SE, denom, td, tc)
	if err != nil {
		return Calculation{}, err
	}
	b, err := pathB(P, R, SE, td, tc, a.MinRequiredThickness)
	if err != nil {
		return Calculation{}, err
	}
	check, err := crossCheck(a, b, P, c.policy.Tolerance)
	if err != nil {
		return Calculation{}, err
	}

	out.PathA = roundPathA(a)
	out.PathB = roundPathB(b)
	out.CrossCheck = check
	out.CurrentThickness = tc.Round(4)
	out.MinRequiredThickness = a.MinRequiredThickness.Round(4)
	out.RSF = a.RSF.Round(4)
	out.MAWP = fixed.DownToHalf(b.MAWPCurrent)

	if !check.Agreed {
		out.ReviewRequired = true
		out.Warnings = append(out.Warnings, Warning{
			Code: WarnCrossPath,
			Message: fmt.Sprintf("Path A RSF %s and Path B RSF %s differ by %s (round trip %s), beyond tolerance %s; both results kept for engineering review",
				a.RSF.Round(6), b.RSF.Round(6), check.RSFDifference, check.RoundTripDifference, check.Tolerance),
			Citation: "API 579-1 Part 2, 2.4.2",
		})
		confidence = confidence.Sub(penalties.CrossPath)
	}

	// Remaining life.
	rate := fixed.Or(in.CorrosionRate, decimal.Zero)
	switch {
	case in.RateNegligible || !rate.IsPositive():
		out.RemainingLifeIndeterminate = true
		out.ReviewRequired = true
		out.Warnings = append(out.Warnings, Warning{
			Code:     WarnNegligibleRate,
			Message:  fmt.Sprintf("corrosion rate %s in/yr is negligible or non-positive; remaining life is indeterminate and needs engineering review", rate),
			Citation: "API 510 7.1.1",
		})
		confidence = confidence.Sub(penalties.NegligibleRate)
	default:
		margin := fixed.Max(in.MinThickness.Sub(a.MinRequiredThickness), decimal.Zero)
		life, err := fixed.Div(margin, rate, "corrosion_rate")
		if err != nil {
			return Calculation{}, err
		}
		out.RemainingLife = fixed.Null(life.RoundFloor(1))
	}

	applicabilityWarnings(&out, in, P, R, SE, td, tc, a.MinRequiredThickness)

	d := c.policy.Classify(out.RSF, tc, a.MinRequiredThickness, out.RemainingLife)
	out.Verdict = d.Verdict
	out.RiskLevel = d.RiskLevel
	out.Level2Required = d.Level2Required
	out.Recommendation = d.Recommendation

	switch {
	case !check.Agreed:
		out.Method = MethodDiscrepant
	case mat != nil && mat.Defaulted:
		out.Method = MethodDefaulted
		out.ReviewRequired = true
	default:
		out.Method = MethodDualPath
	}
	out.Confidence = fixed.Clamp(confidence, decimal.Zero, fixed.Hundred).Round(2)
	return out, nil
}

func (c *Calculator) resolveStress(in Input) (decimal.Decimal, *material.Metadata, error) {
	if in.AllowableStress.Valid {
		return in.AllowableStress.Decimal, nil, nil
	}
	s, meta, err := c.materials.AllowableStress(in.Material, in.DesignTemperature.Decimal)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return s, &meta, nil
}

func (c *Calculator) resolveRadius(in Input) (decimal.Decimal, *geometry.Resolution, []geometry.Warning, error) {
	var dims geometry.Dimensions
	if in.Geometry != nil {
		dims = *in.Geometry
	}
	if in.InternalRadius.Valid {
		return in.InternalRadius.Decimal, nil, c.geometry.Validate(dims, in.InternalRadius.Decimal), nil
	}
	if in.Geometry == nil {
		return decimal.Zero, nil, nil, errs.Resolution("internal_radius",
			"internal radius is missing and no dimensional record was supplied to resolve it")
	}
	res, err := c.geometry.Resolve(dims)
	if err != nil {
		return decimal.Zero, nil, nil, err
	}
	return res.Radius, &res, c.geometry.Validate(dims, res.Radius), nil
}

// pathA: tmin = P*R/(S*E - 0.6P) and RSF as the ratio of hoop stress in the undamaged
// wall to hoop stress in the corroded wall, both at design pressure.
func pathA(P, R, SE, denom, td, tc decimal.Decimal) (PathA, error) {
	tmin, err := fixed.Div(P.Mul(R), denom, "min_required_thickness")
	if err != nil {
		return PathA{}, err
	}
	hoop := func(t decimal.Decimal, field string) (decimal.Decimal, error) {
		return fixed.Div(P.Mul(R.Add(sixTenths.Mul(t))), t, field)
	}
	sd, err := hoop(td, "design_thickness")
	if err != nil {
		return PathA{}, err
	}
	sc, err := hoop(tc, "min_thickness")
	if err != nil {
		return PathA{}, err
	}
	rsf, err := fixed.Div(sd, sc, "rsf")
	if err != nil {
		return PathA{}, err
	}
	return PathA{MinRequiredThickness: tmin, StressAtDesign: sd, StressAtCurrent: sc, RSF: rsf}, nil
}

// pathB: MAWP(t) = S*E*t/(R + 0.6t) and RSF as MAWP of the corroded wall over MAWP of
// the design wall.
func pathB(P, R, SE, td, tc, tmin decimal.Decimal) (PathB, error) {
	mawp := func(t decimal.Decimal, field string) (decimal.Decimal, error) {
		return fixed.Div(SE.Mul(t), R.Add(sixTenths.Mul(t)), field)
	}
	mc, err := mawp(tc, "min_thickness")
	if err != nil {
		return PathB{}, err
	}
	md, err := mawp(td, "design_thickness")
	if err != nil {
		return PathB{}, err
	}
	mt, err := mawp(tmin, "min_required_thickness")
	if err != nil {
		return PathB{}, err
	}
	rsf, err := fixed.Div(mc, md, "rsf")
	if err != nil {
		return PathB{}, err
	}
	ratio, err := fixed.Div(mc, P, "design_pressure")
	if err != nil {
		return PathB{}, err
	}
	return PathB{MAWPCurrent: mc, MAWPDesign: md, MAWPAtMinimum: mt, RSF: rsf, PressureRatio: ratio}, nil
}

func crossCheck(a PathA, b PathB, P, tolerance decimal.Decimal) (CrossCheck, error) {
	rsfDiff, err := fixed.RelativeDiff(a.RSF, b.RSF, a.RSF, "rsf")
	if err != nil {
		return CrossCheck{}, err
	}
	tripDiff, err := fixed.RelativeDiff(b.MAWPAtMinimum, P, P, "design_pressure")
	if err != nil {
		return CrossCheck{}, err
	}
	return CrossCheck{
		RSFDifference:       rsfDiff.Round(8),
		RoundTripDifference: tripDiff.Round(8),
		Tolerance:           tolerance,
		Agreed:              rsfDiff.LessThan(tolerance) && tripDiff.LessThan(tolerance),
	}, nil
}

func roundPathA(a PathA) PathA {
	return PathA{
		MinRequiredThickness: a.MinRequiredThickness.Round(4),
		StressAtDesign:       a.StressAtDesign.Round(1),
		StressAtCurrent:      a.StressAtCurrent.Round(1),
		RSF:                  a.RSF.Round(4),
	}
}

func roundPathB(b PathB) PathB {
	return PathB{
		MAWPCurrent:   fixed.DownToHalf(b.MAWPCurrent),
		MAWPDesign:    fixed.DownToHalf(b.MAWPDesign),
		MAWPAtMinimum: b.MAWPAtMinimum.Round(2),
		RSF:           b.RSF.Round(4),
		PressureRatio: b.PressureRatio.Round(4),
	}
}

func applicabilityWarnings(out *Calculation, in Input, P, R, SE, td, tc, tmin decimal.Decimal) {
	if tc.GreaterThan(R.Div(fixed.Two)) || P.GreaterThan(thinWallFactor.Mul(SE)) {
		out.Warnings = append(out.Warnings, Warning{
			Code:     WarnThinWallLimit,
			Message:  "thickness exceeds R/2 or pressure exceeds 0.385*S*E; thin-shell formulas are outside their stated range",
			Citation: "ASME VIII-1 UG-27(c)(1)",
		})
	}
	if in.CorrosionAllowance.Valid {
		floor := td.Sub(in.CorrosionAllowance.Decimal)
		if in.MinThickness.LessThan(floor) {
			out.Warnings = append(out.Warnings, Warning{
				Code:     WarnAllowanceConsumed,
				Message:  fmt.Sprintf("minimum thickness %s in is below design thickness less corrosion allowance (%s in)", in.MinThickness, floor),
				Citation: "API 510 7.1",
			})
		}
	}
	if td.LessThan(tmin) {
		out.Warnings = append(out.Warnings, Warning{
			Code:     WarnDesignBelowMinimum,
			Message:  fmt.Sprintf("design thickness %s in is below the minimum required %s in for the stated design conditions", td, tmin.Round(4)),
			Citation: "ASME VIII-1 UG-27(c)(1)",
		})
	}
	if tc.LessThan(tmin) {
		out.Warnings = append(out.Warnings, Warning{
			Code:     WarnBelowMinimum,
			Message:  fmt.Sprintf("current thickness %s in is below the minimum required %s in", tc.Round(4), tmin.Round(4)),
			Citation: "API 579-1 Part 4, 4.4.2",
		})
	}
}
