package api579

import (
	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/risk"
)

type Verdict string

const (
	FitForService     Verdict = "FIT_FOR_SERVICE"
	FitWithConditions Verdict = "FIT_WITH_CONDITIONS"
	NotFitForService  Verdict = "NOT_FIT_FOR_SERVICE"
)

func (v Verdict) Valid() bool {
	switch v {
	case FitForService, FitWithConditions, NotFitForService:
		return true
	}
	return false
}

// Method identifies how the result was obtained.
type Method string

const (
	MethodDualPath   Method = "API579_L1_DUAL_PATH"
	MethodDiscrepant Method = "API579_L1_DUAL_PATH_DISCREPANT"
	MethodDefaulted  Method = "API579_L1_DEFAULTED_DATA"
)

func (m Method) Valid() bool {
	switch m {
	case MethodDualPath, MethodDiscrepant, MethodDefaulted:
		return true
	}
	return false
}

// Decision is the outcome of the fitness-for-service policy.
type Decision struct {
	Verdict        Verdict    `json:"verdict"`
	RiskLevel      risk.Level `json:"risk_level"`
	Level2Required bool       `json:"level_2_required"`
	Recommendation string     `json:"recommendation"`
}

// Classify applies the ordered decision policy; the first matching rule wins. rsf must
// already be rounded to reporting precision. life is the remaining life in years, absent
// when indeterminate.
func (p Policy) Classify(rsf, tc, tmin decimal.Decimal, life decimal.NullDecimal) Decision {
	switch {
	case tc.LessThan(tmin):
		return Decision{
			Verdict:        NotFitForService,
			RiskLevel:      risk.High,
			Level2Required: true,
			Recommendation: "Current thickness is below the code minimum required thickness (ASME VIII-1 UG-27). " +
				"Remove from service or repair, then perform a Level 2 or Level 3 assessment (API 579-1 Part 4).",
		}
	case !rsf.GreaterThan(p.CriticalRSF):
		return Decision{
			Verdict:        NotFitForService,
			RiskLevel:      risk.High,
			Level2Required: true,
			Recommendation: "RSF " + rsf.String() + " is at or below the critical limit " + p.CriticalRSF.String() +
				". Perform an immediate Level 2 or Level 3 assessment or repair before continued operation (API 579-1 Part 4).",
		}
	case !rsf.GreaterThan(p.AcceptanceRSF):
		return Decision{
			Verdict:        FitWithConditions,
			RiskLevel:      risk.MediumHigh,
			Level2Required: true,
			Recommendation: "RSF " + rsf.String() + " does not exceed the Level 1 allowable RSFa " + p.AcceptanceRSF.String() +
				". Perform a Level 2 assessment (API 579-1 Part 4, 4.4.3) and consider a reduced MAWP until it is complete.",
		}
	}

	d := Decision{Verdict: FitForService, RiskLevel: p.lifeRisk(life)}
	switch d.RiskLevel {
	case risk.High:
		d.Recommendation = "Fit for continued service, but remaining life is under " + p.LifeHigh.String() +
			" years. Plan repair or replacement and shorten the inspection interval."
	case risk.Medium:
		d.Recommendation = "Fit for continued service. Remaining life is under " + p.LifeMedium.String() +
			" years; monitor wall loss at the governing location."
	default:
		d.Recommendation = "Fit for continued service at the current design conditions. Reinspect per the RBI interval."
	}
	return d
}

func (p Policy) lifeRisk(life decimal.NullDecimal) risk.Level {
	if !life.Valid {
		return risk.Low
	}
	switch {
	case life.Decimal.LessThan(p.LifeHigh):
		return risk.High
	case life.Decimal.LessThan(p.LifeMedium):
		return risk.Medium
	case life.Decimal.LessThan(p.LifeMediumLow):
		return risk.MediumLow
	default:
		return risk.Low
	}
}
