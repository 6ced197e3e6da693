package api579

import (
	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
)

// Policy carries the standards-derived thresholds of the Level 1 assessment. Values come
// from configuration and are validated once at startup.
type Policy struct {
	// RSF at or below CriticalRSF is not fit for service.
	CriticalRSF decimal.Decimal `yaml:"critical_rsf" json:"critical_rsf"`
	// RSF at or below AcceptanceRSF requires a Level 2 assessment (API 579-1 RSFa = 0.90).
	AcceptanceRSF decimal.Decimal `yaml:"acceptance_rsf" json:"acceptance_rsf"`
	// Relative agreement required between Path A and Path B.
	Tolerance decimal.Decimal `yaml:"cross_path_tolerance" json:"cross_path_tolerance"`

	// Remaining-life bands in years for fit equipment.
	LifeHigh      decimal.Decimal `yaml:"life_high_years" json:"life_high_years"`
	LifeMedium    decimal.Decimal `yaml:"life_medium_years" json:"life_medium_years"`
	LifeMediumLow decimal.Decimal `yaml:"life_medium_low_years" json:"life_medium_low_years"`

	Penalties Penalties `yaml:"penalties" json:"penalties"`
}

// Penalties are confidence points deducted for data quality problems.
type Penalties struct {
	CrossPath            decimal.Decimal `yaml:"cross_path" json:"cross_path"`
	MaterialDefaulted    decimal.Decimal `yaml:"material_defaulted" json:"material_defaulted"`
	MaterialExtrapolated decimal.Decimal `yaml:"material_extrapolated" json:"material_extrapolated"`
	GeometryWarning      decimal.Decimal `yaml:"geometry_warning" json:"geometry_warning"`
	NegligibleRate       decimal.Decimal `yaml:"negligible_rate" json:"negligible_rate"`
}

func DefaultPolicy() Policy {
	return Policy{
		CriticalRSF:   decimal.RequireFromString("0.80"),
		AcceptanceRSF: decimal.RequireFromString("0.90"),
		Tolerance:     decimal.RequireFromString("0.001"),
		LifeHigh:      decimal.NewFromInt(2),
		LifeMedium:    decimal.NewFromInt(5),
		LifeMediumLow: decimal.NewFromInt(10),
		Penalties: Penalties{
			CrossPath:            decimal.NewFromInt(20),
			MaterialDefaulted:    decimal.NewFromInt(25),
			MaterialExtrapolated: decimal.NewFromInt(10),
			GeometryWarning:      decimal.NewFromInt(5),
			NegligibleRate:       decimal.NewFromInt(10),
		},
	}
}

func (p Policy) Validate() error {
	var list []*errs.Error
	one := decimal.NewFromInt(1)
	if !p.CriticalRSF.IsPositive() {
		list = append(list, errs.Validation("assessment.critical_rsf", "must be positive"))
	}
	if !p.AcceptanceRSF.GreaterThan(p.CriticalRSF) {
		list = append(list, errs.Validation("assessment.acceptance_rsf", "must be greater than the critical RSF"))
	}
	if p.AcceptanceRSF.GreaterThan(one) {
		list = append(list, errs.Validation("assessment.acceptance_rsf", "must not exceed 1.0").Cite("API 579-1 Part 2, 2.4.2.2"))
	}
	if !p.Tolerance.IsPositive() || !p.Tolerance.LessThan(one) {
		list = append(list, errs.Validation("assessment.cross_path_tolerance", "must be in (0, 1)"))
	}
	if !p.LifeHigh.IsPositive() || !p.LifeMedium.GreaterThan(p.LifeHigh) || !p.LifeMediumLow.GreaterThan(p.LifeMedium) {
		list = append(list, errs.Validation("assessment.life_bands", "remaining-life bands must be positive and strictly increasing"))
	}
	for name, v := range map[string]decimal.Decimal{
		"cross_path":            p.Penalties.CrossPath,
		"material_defaulted":    p.Penalties.MaterialDefaulted,
		"material_extrapolated": p.Penalties.MaterialExtrapolated,
		"geometry_warning":      p.Penalties.GeometryWarning,
		"negligible_rate":       p.Penalties.NegligibleRate,
	} {
		if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
			list = append(list, errs.Validation("assessment.penalties."+name, "must be within [0, 100]"))
		}
	}
	return errs.Join(list...)
}
