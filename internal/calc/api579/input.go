package api579

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/geometry"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

// Input is the validated parameter set of one Level 1 general metal loss assessment.
// Thickness and radius are inches, pressure psi, stress psi, rate in/yr.
type Input struct {
	EquipmentID  string `json:"equipment_id,omitempty"`
	InspectionID string `json:"inspection_id,omitempty"`
	Inspector    string `json:"inspector,omitempty"`
	// Supersedes names the inspection this one corrects. It is part of the request key,
	// so a correction is always recorded as its own calculation.
	Supersedes string `json:"supersedes,omitempty"`

	DesignPressure     decimal.Decimal     `json:"design_pressure"`
	DesignTemperature  decimal.NullDecimal `json:"design_temperature"`
	DesignThickness    decimal.Decimal     `json:"design_thickness"`
	Material           string              `json:"material"`
	CorrosionAllowance decimal.NullDecimal `json:"corrosion_allowance"`

	MinThickness     decimal.Decimal `json:"min_thickness"`
	AverageThickness decimal.Decimal `json:"average_thickness"`

	InternalRadius decimal.NullDecimal  `json:"internal_radius"`
	Geometry       *geometry.Dimensions `json:"geometry,omitempty"`

	AllowableStress          decimal.NullDecimal `json:"allowable_stress"`
	JointEfficiency          decimal.Decimal     `json:"joint_efficiency"`
	FutureCorrosionAllowance decimal.NullDecimal `json:"future_corrosion_allowance"`

	CorrosionRate       decimal.NullDecimal `json:"corrosion_rate"`
	RateNegligible      bool                `json:"rate_negligible,omitempty"`
	CorrosionConfidence decimal.NullDecimal `json:"corrosion_confidence"`

	CalculationDate time.Time `json:"calculation_date"`
}

// Clone returns a deep copy safe to keep as the audit snapshot.
func (in Input) Clone() Input {
	out := in
	if in.Geometry != nil {
		g := *in.Geometry
		out.Geometry = &g
	}
	out.CalculationDate = in.CalculationDate.UTC()
	return out
}

// Validate reports every missing or out-of-range field at once.
func (in Input) Validate() error {
	var list []*errs.Error
	positive := func(field string, v decimal.Decimal, what string) {
		if !v.IsPositive() {
			list = append(list, errs.Validationf(field, "%s must be greater than zero", what))
		}
	}
	nonNegative := func(field string, v decimal.NullDecimal, what string) {
		if v.Valid && v.Decimal.IsNegative() {
			list = append(list, errs.Validationf(field, "%s must not be negative", what))
		}
	}

	positive("design_pressure", in.DesignPressure, "design pressure")
	if !in.DesignTemperature.Valid {
		list = append(list, errs.Validation("design_temperature", "design temperature is required"))
	}
	positive("design_thickness", in.DesignThickness, "design thickness")
	if strings.TrimSpace(in.Material) == "" {
		list = append(list, errs.Validation("material", "material specification is required"))
	}
	nonNegative("corrosion_allowance", in.CorrosionAllowance, "corrosion allowance")
	positive("min_thickness", in.MinThickness, "minimum measured thickness")
	positive("average_thickness", in.AverageThickness, "average measured thickness")
	if in.AverageThickness.LessThan(in.MinThickness) {
		list = append(list, errs.Validation("average_thickness", "average thickness must not be less than the minimum thickness"))
	}
	if in.InternalRadius.Valid && !in.InternalRadius.Decimal.IsPositive() {
		list = append(list, errs.Validation("internal_radius", "internal radius must be greater than zero"))
	}
	if in.AllowableStress.Valid && !in.AllowableStress.Decimal.IsPositive() {
		list = append(list, errs.Validation("allowable_stress", "allowable stress must be greater than zero"))
	}
	if !in.JointEfficiency.IsPositive() || in.JointEfficiency.GreaterThan(fixed.One) {
		list = append(list, errs.Validation("joint_efficiency", "joint efficiency must satisfy 0 < E <= 1").Cite("ASME VIII-1 Table UW-12"))
	}
	nonNegative("future_corrosion_allowance", in.FutureCorrosionAllowance, "future corrosion allowance")
	if in.MinThickness.IsPositive() && !in.currentThickness().IsPositive() {
		list = append(list, errs.Validation("future_corrosion_allowance",
			"minimum thickness less future corrosion allowance must be greater than zero").Cite("API 579-1 Part 4, 4.4.2.1"))
	}
	if !in.CorrosionRate.Valid && !in.RateNegligible {
		list = append(list, errs.Validation("corrosion_rate", "corrosion rate is required"))
	}
	if c := in.CorrosionConfidence; c.Valid && (c.Decimal.IsNegative() || c.Decimal.GreaterThan(fixed.Hundred)) {
		list = append(list, errs.Validation("corrosion_confidence", "confidence must be within [0, 100]"))
	}
	if in.CalculationDate.IsZero() {
		list = append(list, errs.Validation("calculation_date", "calculation date is required"))
	}
	return errs.Join(list...)
}

// currentThickness is tc = tmm - FCA.
func (in Input) currentThickness() decimal.Decimal {
	return in.MinThickness.Sub(fixed.Or(in.FutureCorrosionAllowance, decimal.Zero))
}

const keyVersion = "api579/v1"

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:wallcheck:api579-calculation"))

// RequestKey is the SHA-256 of the canonical JSON form of the input. Identical inputs
// always produce the same key, which makes persistence retries idempotent.
func RequestKey(in Input) (string, error) {
	canonical, err := json.Marshal(in.Clone())
	if err != nil {
		return "", errs.Wrap(err, "encode request key")
	}
	h := sha256.New()
	h.Write([]byte(keyVersion))
	h.Write([]byte{'\n'})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculationID derives the record id from the request key (UUID v5).
func CalculationID(key string) string {
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}
