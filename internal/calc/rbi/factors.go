package rbi

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/risk"
	"Wallcheck/internal/errs"
)

type EquipmentType string

const (
	Vessel EquipmentType = "VESSEL"
	Tank   EquipmentType = "TANK"
	Piping EquipmentType = "PIPING"
)

func (t EquipmentType) Valid() bool {
	switch t {
	case Vessel, Tank, Piping:
		return true
	}
	return false
}

func ParseEquipmentType(s string) (EquipmentType, error) {
	t := EquipmentType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errs.Validationf("equipment_type", "unknown equipment type %q (VESSEL, TANK or PIPING)", s)
	}
	return t, nil
}

// Effectiveness grades the last inspection per API 581 (A highly effective .. E ineffective).
type Effectiveness string

const (
	HighlyEffective  Effectiveness = "HIGHLY_EFFECTIVE"
	UsuallyEffective Effectiveness = "USUALLY_EFFECTIVE"
	FairlyEffective  Effectiveness = "FAIRLY_EFFECTIVE"
	PoorlyEffective  Effectiveness = "POORLY_EFFECTIVE"
	Ineffective      Effectiveness = "INEFFECTIVE"
)

func (e Effectiveness) index() int {
	switch e {
	case HighlyEffective:
		return 0
	case UsuallyEffective:
		return 1
	case FairlyEffective:
		return 2
	case PoorlyEffective:
		return 3
	case Ineffective:
		return 4
	}
	return -1
}

func (e Effectiveness) Valid() bool { return e.index() >= 0 }

type Redundancy string

const (
	RedundancyNone    Redundancy = "NONE"
	RedundancyPartial Redundancy = "PARTIAL"
	RedundancyFull    Redundancy = "FULL"
)

func (r Redundancy) index() int {
	switch r {
	case RedundancyNone, "":
		return 0
	case RedundancyPartial:
		return 1
	case RedundancyFull:
		return 2
	}
	return -1
}

func (r Redundancy) Valid() bool { return r.index() >= 0 }

// RiskFactors are the qualitative inputs to the risk matrix. Susceptibility and
// OperatingSeverity are optional; empty means not assessed.
type RiskFactors struct {
	Criticality       risk.Category `json:"criticality"`
	Environment       risk.Category `json:"environment"`
	Effectiveness     Effectiveness `json:"inspection_effectiveness"`
	Susceptibility    risk.Category `json:"material_susceptibility,omitempty"`
	OperatingSeverity risk.Category `json:"operating_severity,omitempty"`
	Redundancy        Redundancy    `json:"redundancy,omitempty"`
}

func (rf RiskFactors) Validate() error {
	var list []*errs.Error
	if !rf.Criticality.Valid() {
		list = append(list, errs.Validationf("criticality", "process criticality %q must be LOW, MEDIUM or HIGH", rf.Criticality))
	}
	if !rf.Environment.Valid() {
		list = append(list, errs.Validationf("environment", "corrosion environment %q must be LOW, MEDIUM or HIGH", rf.Environment))
	}
	if !rf.Effectiveness.Valid() {
		list = append(list, errs.Validationf("inspection_effectiveness", "inspection effectiveness %q is not an API 581 category", rf.Effectiveness).Cite("API 581 Part 2, Table 5.5"))
	}
	if rf.Susceptibility != "" && !rf.Susceptibility.Valid() {
		list = append(list, errs.Validationf("material_susceptibility", "%q must be LOW, MEDIUM or HIGH", rf.Susceptibility))
	}
	if rf.OperatingSeverity != "" && !rf.OperatingSeverity.Valid() {
		list = append(list, errs.Validationf("operating_severity", "%q must be LOW, MEDIUM or HIGH", rf.OperatingSeverity))
	}
	if !rf.Redundancy.Valid() {
		list = append(list, errs.Validationf("redundancy", "redundancy %q must be NONE, PARTIAL or FULL", rf.Redundancy))
	}
	return errs.Join(list...)
}

// Summary is the part of an API 579 calculation the interval derivation depends on.
type Summary struct {
	CalculationID   string              `json:"calculation_id"`
	RSF             decimal.Decimal     `json:"rsf"`
	Verdict         api579.Verdict      `json:"verdict"`
	RiskLevel       risk.Level          `json:"risk_level,omitempty"`
	RemainingLife   decimal.NullDecimal `json:"remaining_life"`
	CalculationDate time.Time           `json:"calculation_date"`
}

func SummaryOf(c api579.Calculation) Summary {
	return Summary{
		CalculationID:   c.ID,
		RSF:             c.RSF,
		Verdict:         c.Verdict,
		RiskLevel:       c.RiskLevel,
		RemainingLife:   c.RemainingLife,
		CalculationDate: c.CalculationDate,
	}
}

func (s Summary) Validate() error {
	var list []*errs.Error
	if !s.RSF.IsPositive() {
		list = append(list, errs.Validation("rsf", "RSF must be greater than zero"))
	}
	if !s.Verdict.Valid() {
		list = append(list, errs.Validationf("verdict", "unknown verdict %q", s.Verdict))
	}
	if s.RemainingLife.Valid && s.RemainingLife.Decimal.IsNegative() {
		list = append(list, errs.Validation("remaining_life", "remaining life must not be negative"))
	}
	return errs.Join(list...)
}

func (rf RiskFactors) describe() []string {
	out := []string{
		fmt.Sprintf("process criticality %s", rf.Criticality),
		fmt.Sprintf("corrosion environment %s", rf.Environment),
		fmt.Sprintf("inspection effectiveness %s", rf.Effectiveness),
	}
	if rf.Susceptibility != "" {
		out = append(out, fmt.Sprintf("material susceptibility %s", rf.Susceptibility))
	}
	if rf.OperatingSeverity != "" {
		out = append(out, fmt.Sprintf("operating severity %s", rf.OperatingSeverity))
	}
	if rf.Redundancy != "" {
		out = append(out, fmt.Sprintf("redundancy %s", rf.Redundancy))
	}
	return out
}
