package geometry

import (
	"fmt"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

type HeadType string

const (
	HeadNone          HeadType = "NONE"
	HeadEllipsoidal   HeadType = "ELLIPSOIDAL_2_1"
	HeadHemispherical HeadType = "HEMISPHERICAL"
	HeadTorispherical HeadType = "TORISPHERICAL"
	HeadFlat          HeadType = "FLAT"
)

func (h HeadType) Valid() bool {
	switch h {
	case "", HeadNone, HeadEllipsoidal, HeadHemispherical, HeadTorispherical, HeadFlat:
		return true
	}
	return false
}

// Dimensions is the per-equipment dimensional record, all lengths in inches.
type Dimensions struct {
	InsideDiameter  decimal.NullDecimal `json:"inside_diameter"`
	OutsideDiameter decimal.NullDecimal `json:"outside_diameter"`
	WallThickness   decimal.NullDecimal `json:"wall_thickness"`
	Length          decimal.NullDecimal `json:"length"`
	Head            HeadType            `json:"head_type,omitempty"`
	NPS             string              `json:"nps,omitempty"`
	Schedule        string              `json:"schedule,omitempty"`
}

type Source string

const (
	SourceInsideDiameter Source = "INSIDE_DIAMETER"
	SourceOutsideAndWall Source = "OUTSIDE_DIAMETER_AND_WALL"
	SourcePipeTable      Source = "PIPE_TABLE"
)

type Resolution struct {
	Radius          decimal.Decimal     `json:"internal_radius"`
	InsideDiameter  decimal.Decimal     `json:"inside_diameter"`
	OutsideDiameter decimal.NullDecimal `json:"outside_diameter"`
	Source          Source              `json:"source"`
	Pipe            *PipeSize           `json:"pipe,omitempty"`
}

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DefaultRadiusLimit is the internal radius above which the thin-shell formulas are
// outside their commonly stated applicability.
var DefaultRadiusLimit = decimal.NewFromInt(600)

// Mismatch allowed between a stated ID and OD - 2t before it is flagged.
var dimensionTolerance = decimal.RequireFromString("0.03125")

type Resolver struct {
	RadiusLimit decimal.Decimal
}

func NewResolver(radiusLimit decimal.Decimal) *Resolver {
	if !radiusLimit.IsPositive() {
		radiusLimit = DefaultRadiusLimit
	}
	return &Resolver{RadiusLimit: radiusLimit}
}

// Resolve derives the internal radius in priority order: inside diameter, outside
// diameter less two walls, NPS and schedule. Anything else is unresolved; the caller
// must not guess.
func (r *Resolver) Resolve(d Dimensions) (Resolution, error) {
	switch {
	case d.InsideDiameter.Valid:
		return radiusFrom(d.InsideDiameter.Decimal, d.OutsideDiameter, SourceInsideDiameter, nil)
	case d.OutsideDiameter.Valid && d.WallThickness.Valid:
		id := d.OutsideDiameter.Decimal.Sub(d.WallThickness.Decimal.Mul(fixed.Two))
		return radiusFrom(id, d.OutsideDiameter, SourceOutsideAndWall, nil)
	case d.NPS != "" && d.Schedule != "":
		pipe, ok := LookupPipe(d.NPS, d.Schedule)
		if !ok {
			return Resolution{}, errs.Resolution("nps", fmt.Sprintf("no ASME B36.10M entry for NPS %s schedule %s", d.NPS, d.Schedule)).Cite("ASME B36.10M")
		}
		id := pipe.OutsideDiameter.Sub(pipe.WallThickness.Mul(fixed.Two))
		return radiusFrom(id, fixed.Null(pipe.OutsideDiameter), SourcePipeTable, &pipe)
	case d.NPS != "":
		return Resolution{}, errs.Resolution("schedule", "NPS given without a pipe schedule; internal radius cannot be resolved")
	case d.OutsideDiameter.Valid:
		return Resolution{}, errs.Resolution("wall_thickness", "outside diameter given without wall thickness; internal radius cannot be resolved")
	default:
		return Resolution{}, errs.Resolution("internal_radius",
			"provide inside_diameter, outside_diameter with wall_thickness, or nps with schedule")
	}
}

func radiusFrom(id decimal.Decimal, od decimal.NullDecimal, src Source, pipe *PipeSize) (Resolution, error) {
	if !id.IsPositive() {
		return Resolution{}, errs.Computation("internal radius", "inside_diameter",
			fmt.Sprintf("derived inside diameter %s in is not positive", id))
	}
	return Resolution{
		Radius:          id.Div(fixed.Two),
		InsideDiameter:  id,
		OutsideDiameter: od,
		Source:          src,
		Pipe:            pipe,
	}, nil
}

// Validate flags suspicious dimensions without changing them. Values outside the
// applicability range are reported, never clamped.
func (r *Resolver) Validate(d Dimensions, radius decimal.Decimal) []Warning {
	var out []Warning
	nonPositive := func(name string, v decimal.NullDecimal) {
		if v.Valid && !v.Decimal.IsPositive() {
			out = append(out, Warning{Code: "NON_POSITIVE_DIMENSION", Message: fmt.Sprintf("%s is %s; dimensions must be positive", name, v.Decimal)})
		}
	}
	nonPositive("inside_diameter", d.InsideDiameter)
	nonPositive("outside_diameter", d.OutsideDiameter)
	nonPositive("wall_thickness", d.WallThickness)
	nonPositive("length", d.Length)

	if d.InsideDiameter.Valid && d.OutsideDiameter.Valid && !d.InsideDiameter.Decimal.LessThan(d.OutsideDiameter.Decimal) {
		out = append(out, Warning{Code: "ID_NOT_LESS_THAN_OD", Message: fmt.Sprintf(
			"inside diameter %s in is not less than outside diameter %s in", d.InsideDiameter.Decimal, d.OutsideDiameter.Decimal)})
	}
	if d.InsideDiameter.Valid && d.OutsideDiameter.Valid && d.WallThickness.Valid {
		derived := d.OutsideDiameter.Decimal.Sub(d.WallThickness.Decimal.Mul(fixed.Two))
		if derived.Sub(d.InsideDiameter.Decimal).Abs().GreaterThan(dimensionTolerance) {
			out = append(out, Warning{Code: "DIMENSION_MISMATCH", Message: fmt.Sprintf(
				"OD - 2t = %s in disagrees with stated inside diameter %s in", derived, d.InsideDiameter.Decimal)})
		}
	}
	if !d.Head.Valid() {
		out = append(out, Warning{Code: "UNKNOWN_HEAD_TYPE", Message: fmt.Sprintf("head type %q is not recognised", d.Head)})
	}
	if !radius.IsPositive() {
		out = append(out, Warning{Code: "NON_POSITIVE_RADIUS", Message: fmt.Sprintf("internal radius %s in is not positive", radius)})
	} else if radius.GreaterThan(r.RadiusLimit) {
		out = append(out, Warning{Code: "RADIUS_OUTSIDE_APPLICABILITY", Message: fmt.Sprintf(
			"internal radius %s in exceeds %s in; thin-shell formulas may be approximate (API 579-1 Part 4, 4.2.1)", radius, r.RadiusLimit)})
	}
	return out
}
