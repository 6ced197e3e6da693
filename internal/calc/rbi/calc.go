// Package rbi derives risk-ranked inspection intervals from API 579 results (API 580/581
// matrix convention, API 510/570 interval limits).
package rbi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/risk"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

// Config holds the jurisdiction-dependent interval limits.
type Config struct {
	BaseInterval map[EquipmentType]decimal.Decimal `yaml:"base_interval_years" json:"base_interval_years"`
	Ceiling      map[EquipmentType]decimal.Decimal `yaml:"ceiling_years" json:"ceiling_years"`
	Reduction    map[risk.Level]decimal.Decimal    `yaml:"reduction" json:"reduction"`

	MinimumInterval decimal.Decimal `yaml:"minimum_interval_years" json:"minimum_interval_years"`
	AbsoluteMaximum decimal.Decimal `yaml:"absolute_maximum_years" json:"absolute_maximum_years"`

	// RSF banding shares the assessment thresholds.
	CriticalRSF   decimal.Decimal `yaml:"-" json:"critical_rsf"`
	AcceptanceRSF decimal.Decimal `yaml:"-" json:"acceptance_rsf"`
	// Remaining life below ShortLife years forces POF to HIGH.
	ShortLife decimal.Decimal `yaml:"short_life_years" json:"short_life_years"`
}

func DefaultConfig() Config {
	n := decimal.NewFromInt
	p := api579.DefaultPolicy()
	return Config{
		BaseInterval: map[EquipmentType]decimal.Decimal{Vessel: n(10), Tank: n(10), Piping: n(5)},
		Ceiling:      map[EquipmentType]decimal.Decimal{Vessel: n(10), Tank: n(15), Piping: n(10)},
		Reduction: map[risk.Level]decimal.Decimal{
			risk.Low:        n(1),
			risk.MediumLow:  decimal.RequireFromString("0.75"),
			risk.Medium:     decimal.RequireFromString("0.5"),
			risk.MediumHigh: decimal.RequireFromString("0.35"),
			risk.High:       decimal.RequireFromString("0.25"),
		},
		MinimumInterval: decimal.RequireFromString("0.5"),
		AbsoluteMaximum: n(20),
		CriticalRSF:     p.CriticalRSF,
		AcceptanceRSF:   p.AcceptanceRSF,
		ShortLife:       n(2),
	}
}

func (c Config) Validate() error {
	var list []*errs.Error
	if !c.MinimumInterval.IsPositive() || !c.MinimumInterval.Equal(c.MinimumInterval.Round(1)) {
		list = append(list, errs.Validation("rbi.minimum_interval_years", "must be positive with at most one decimal place"))
	}
	if c.AbsoluteMaximum.LessThan(c.MinimumInterval) || c.AbsoluteMaximum.GreaterThan(decimal.NewFromInt(20)) {
		list = append(list, errs.Validation("rbi.absolute_maximum_years", "must lie between the minimum interval and 20 years"))
	}
	for _, t := range []EquipmentType{Vessel, Tank, Piping} {
		base, okBase := c.BaseInterval[t]
		ceil, okCeil := c.Ceiling[t]
		switch {
		case !okBase || !okCeil:
			list = append(list, errs.Validationf("rbi."+strings.ToLower(string(t)), "base interval and ceiling are required for %s", t))
		case !ceil.IsPositive() || ceil.GreaterThan(c.AbsoluteMaximum):
			list = append(list, errs.Validationf("rbi.ceiling_years", "ceiling for %s must be within (0, %s]", t, c.AbsoluteMaximum))
		case base.LessThan(c.MinimumInterval) || base.GreaterThan(ceil):
			list = append(list, errs.Validationf("rbi.base_interval_years", "base interval for %s must lie between the minimum interval and its ceiling", t))
		}
	}
	prev := decimal.NewFromInt(1)
	for _, l := range risk.Levels() {
		f, ok := c.Reduction[l]
		if !ok || !f.IsPositive() || f.GreaterThan(prev) {
			list = append(list, errs.Validationf("rbi.reduction", "reduction for %s must be in (0, 1] and not above the lower ranking's", l))
			continue
		}
		prev = f
	}
	if !c.CriticalRSF.IsPositive() || !c.AcceptanceRSF.GreaterThan(c.CriticalRSF) {
		list = append(list, errs.Validation("rbi.rsf_bands", "acceptance RSF must exceed a positive critical RSF"))
	}
	if c.ShortLife.IsNegative() {
		list = append(list, errs.Validation("rbi.short_life_years", "must not be negative"))
	}
	return errs.Join(list...)
}

type Justification struct {
	POF     risk.Category `json:"pof"`
	COF     risk.Category `json:"cof"`
	Ranking risk.Level    `json:"ranking"`
	Factors []string      `json:"factors"`
}

type Result struct {
	ID            string        `json:"id"`
	EquipmentID   string        `json:"equipment_id"`
	EquipmentType EquipmentType `json:"equipment_type"`
	CalculationID string        `json:"calculation_id"`

	RecommendedInterval decimal.Decimal `json:"recommended_interval_years"`
	MaximumInterval     decimal.Decimal `json:"maximum_interval_years"`
	MinimumInterval     decimal.Decimal `json:"minimum_interval_years"`
	NextInspection      time.Time       `json:"next_inspection_due"`

	Justification Justification `json:"justification"`
	Scope         []string      `json:"scope"`
	Factors       RiskFactors   `json:"risk_factors"`
}

type Service struct {
	cfg Config
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg}, nil
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:wallcheck:rbi-result"))

// CalculateInterval ranks risk and derives the inspection interval. The result must
// satisfy minimum <= recommended <= maximum; a violation is reported as an invariant
// error rather than corrected.
func (s *Service) CalculateInterval(equipmentID string, equipmentType EquipmentType, calc Summary, rf RiskFactors) (Result, error) {
	var list []*errs.Error
	if strings.TrimSpace(equipmentID) == "" {
		list = append(list, errs.Validation("equipment_id", "equipment id is required"))
	}
	if !equipmentType.Valid() {
		list = append(list, errs.Validationf("equipment_type", "unknown equipment type %q", equipmentType))
	}
	if err := errs.Join(list...); err != nil {
		return Result{}, err
	}
	if err := calc.Validate(); err != nil {
		return Result{}, err
	}
	if err := rf.Validate(); err != nil {
		return Result{}, err
	}

	j := s.justify(calc, rf)

	minimum := s.cfg.MinimumInterval
	var half decimal.NullDecimal
	if calc.RemainingLife.Valid {
		half = fixed.Null(calc.RemainingLife.Decimal.Div(fixed.Two))
	}

	rec := s.cfg.BaseInterval[equipmentType].Mul(s.cfg.Reduction[j.Ranking])
	if half.Valid {
		rec = fixed.Min(rec, half.Decimal)
	}
	rec = fixed.Clamp(rec, minimum, s.cfg.AbsoluteMaximum)
	if calc.Verdict == api579.NotFitForService {
		rec = minimum
		j.Factors = append(j.Factors, "not fit for service: interval set to the minimum pending repair or Level 2/3 assessment")
	}

	maximum := fixed.Min(s.cfg.Ceiling[equipmentType], s.cfg.AbsoluteMaximum)
	if half.Valid && !half.Decimal.LessThan(minimum) {
		if half.Decimal.LessThan(maximum) {
			j.Factors = append(j.Factors, fmt.Sprintf("maximum limited to half the remaining life (%s years)", half.Decimal.RoundFloor(1)))
		}
		maximum = fixed.Min(maximum, half.Decimal)
	}

	res := Result{
		EquipmentID:         equipmentID,
		EquipmentType:       equipmentType,
		CalculationID:       calc.CalculationID,
		RecommendedInterval: rec.RoundFloor(1),
		MaximumInterval:     maximum.RoundFloor(1),
		MinimumInterval:     minimum.RoundCeil(1),
		Justification:       j,
		Factors:             rf,
	}
	if res.MinimumInterval.GreaterThan(res.RecommendedInterval) || res.RecommendedInterval.GreaterThan(res.MaximumInterval) {
		return Result{}, errs.Invariant("rbi interval", fmt.Sprintf(
			"interval ordering violated: minimum %s, recommended %s, maximum %s years",
			res.MinimumInterval, res.RecommendedInterval, res.MaximumInterval)).Cite("API 510 6.5")
	}
	if !calc.CalculationDate.IsZero() {
		res.NextInspection = addYears(calc.CalculationDate, res.RecommendedInterval)
	}
	res.Scope = scope(calc, rf, j)

	id, err := resultID(res)
	if err != nil {
		return Result{}, err
	}
	res.ID = id
	return res, nil
}

func (s *Service) justify(calc Summary, rf RiskFactors) Justification {
	band := lo
	switch {
	case !calc.RSF.GreaterThan(s.cfg.CriticalRSF):
		band = hi
	case !calc.RSF.GreaterThan(s.cfg.AcceptanceRSF):
		band = med
	}
	factors := []string{fmt.Sprintf("RSF %s (band %s)", calc.RSF, band)}
	factors = append(factors, rf.describe()...)

	pof := basePOF[band.Index()][rf.Environment.Index()]
	pof = effectivenessPOF[pof.Index()][rf.Effectiveness.index()]
	if rf.Susceptibility != "" {
		pof = raisePOF[pof.Index()][rf.Susceptibility.Index()]
	}
	if rf.OperatingSeverity != "" {
		pof = raisePOF[pof.Index()][rf.OperatingSeverity.Index()]
	}
	if calc.RemainingLife.Valid && calc.RemainingLife.Decimal.LessThan(s.cfg.ShortLife) {
		pof = hi
		factors = append(factors, fmt.Sprintf("remaining life %s years is under %s years", calc.RemainingLife.Decimal, s.cfg.ShortLife))
	}
	if !calc.RemainingLife.Valid {
		factors = append(factors, "remaining life indeterminate")
	}
	cof := consequence[rf.Criticality.Index()][rf.Redundancy.index()]
	return Justification{
		POF:     pof,
		COF:     cof,
		Ranking: ranking[pof.Index()][cof.Index()],
		Factors: factors,
	}
}

func scope(calc Summary, rf RiskFactors, j Justification) []string {
	out := []string{"External visual inspection of shell, nozzles, supports and insulation (API 510 / API 570)"}
	if calc.Verdict == api579.NotFitForService {
		out = append(out, "Repair or complete a Level 2/3 fitness-for-service assessment before continued operation (API 579-1 Part 4)")
	}
	if j.Ranking.Rank() >= risk.Medium.Rank() {
		out = append(out, "Thickness survey at every CML, adding CMLs around the governing location")
	} else {
		out = append(out, "Spot UT thickness readings at the established CMLs")
	}
	if j.Ranking.Rank() >= risk.MediumHigh.Rank() {
		out = append(out, "Scanning UT or profile RT over the governing corroded area to confirm metal loss extent")
	}
	if rf.Effectiveness == PoorlyEffective || rf.Effectiveness == Ineffective {
		out = append(out, "Raise inspection effectiveness to at least FAIRLY_EFFECTIVE for the next campaign (API 581 Part 2)")
	}
	if rf.Environment == hi || rf.Susceptibility == hi {
		out = append(out, "Review active damage mechanisms per API 571 and confirm the corrosion monitoring plan")
	}
	if !calc.RemainingLife.Valid {
		out = append(out, "Take an additional thickness reading within one year to establish a measurable corrosion rate")
	}
	return out
}

// addYears adds a whole number of months equal to years*12, rounded down.
func addYears(t time.Time, years decimal.Decimal) time.Time {
	months := years.Mul(decimal.NewFromInt(12)).Floor().IntPart()
	return fixed.DateOnly(t).AddDate(0, int(months), 0)
}

func resultID(r Result) (string, error) {
	payload, err := json.Marshal(struct {
		Calculation string        `json:"calculation_id"`
		Equipment   string        `json:"equipment_id"`
		Type        EquipmentType `json:"equipment_type"`
		Factors     RiskFactors   `json:"factors"`
	}{r.CalculationID, r.EquipmentID, r.EquipmentType, r.Factors})
	if err != nil {
		return "", errs.Wrap(err, "encode rbi id")
	}
	return uuid.NewSHA1(idNamespace, payload).String(), nil
}
