package rbi

import (
	"bytes"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/risk"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(DefaultConfig())
	require.NoError(t, err)
	return s
}

func summary(rsf string, verdict api579.Verdict, life string) Summary {
	s := Summary{
		CalculationID:   "c0ffee00-0000-5000-8000-000000000000",
		RSF:             d(rsf),
		Verdict:         verdict,
		CalculationDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if life != "" {
		s.RemainingLife = fixed.Null(d(life))
	}
	return s
}

var mild = RiskFactors{Criticality: risk.CategoryLow, Environment: risk.CategoryLow, Effectiveness: HighlyEffective}

func TestLowRiskVesselGetsBaseInterval(t *testing.T) {
	t.Parallel()

	res, err := newService(t).CalculateInterval("V-101", Vessel, summary("0.98", api579.FitForService, "60"), mild)
	require.NoError(t, err)

	assert.Equal(t, risk.CategoryLow, res.Justification.POF)
	assert.Equal(t, risk.CategoryLow, res.Justification.COF)
	assert.Equal(t, risk.Low, res.Justification.Ranking)
	assert.True(t, res.RecommendedInterval.Equal(d("10")), "recommended %s", res.RecommendedInterval)
	assert.True(t, res.MaximumInterval.Equal(d("10")))
	assert.True(t, res.MinimumInterval.Equal(d("0.5")))
	assert.Equal(t, time.Date(2034, 6, 1, 0, 0, 0, 0, time.UTC), res.NextInspection)
	assert.NotEmpty(t, res.Scope)
	assert.Len(t, res.ID, 36)
}

func TestScenarioWithConditions(t *testing.T) {
	t.Parallel()

	rf := RiskFactors{Criticality: risk.CategoryHigh, Environment: risk.CategoryMedium, Effectiveness: UsuallyEffective}
	res, err := newService(t).CalculateInterval("V-101", Vessel, summary("0.8912", api579.FitWithConditions, "47.6"), rf)
	require.NoError(t, err)

	// MEDIUM band x MEDIUM environment = MEDIUM, usually effective keeps MEDIUM;
	// HIGH criticality without redundancy is HIGH consequence.
	assert.Equal(t, risk.CategoryMedium, res.Justification.POF)
	assert.Equal(t, risk.CategoryHigh, res.Justification.COF)
	assert.Equal(t, risk.MediumHigh, res.Justification.Ranking)
	assert.True(t, res.RecommendedInterval.Equal(d("3.5")), "recommended %s", res.RecommendedInterval)
	assert.True(t, res.MaximumInterval.Equal(d("10")))
	assert.Contains(t, res.Scope, "Scanning UT or profile RT over the governing corroded area to confirm metal loss extent")
}

func TestHalfLifeCapsIntervals(t *testing.T) {
	t.Parallel()

	res, err := newService(t).CalculateInterval("P-7", Piping, summary("0.97", api579.FitForService, "3.3"), mild)
	require.NoError(t, err)
	assert.True(t, res.RecommendedInterval.Equal(d("1.6")), "recommended %s", res.RecommendedInterval)
	assert.True(t, res.MaximumInterval.Equal(d("1.6")), "maximum %s", res.MaximumInterval)
}

func TestShortLifeForcesHighPOF(t *testing.T) {
	t.Parallel()

	res, err := newService(t).CalculateInterval("P-7", Piping, summary("0.97", api579.FitForService, "1.5"), mild)
	require.NoError(t, err)
	assert.Equal(t, risk.CategoryHigh, res.Justification.POF)
	assert.Equal(t, risk.Medium, res.Justification.Ranking)
	assert.True(t, res.RecommendedInterval.Equal(d("0.7")), "recommended %s", res.RecommendedInterval)
	assert.True(t, res.MaximumInterval.Equal(d("0.7")))
}

func TestNotFitUsesMinimum(t *testing.T) {
	t.Parallel()

	res, err := newService(t).CalculateInterval("T-3", Tank, summary("0.75", api579.NotFitForService, "0"), mild)
	require.NoError(t, err)
	assert.True(t, res.RecommendedInterval.Equal(d("0.5")))
	assert.True(t, res.MaximumInterval.Equal(d("15")))
	assert.Equal(t, risk.CategoryHigh, res.Justification.POF)
	assert.Contains(t, res.Scope[1], "Level 2/3")
}

func TestIndeterminateLifeAddsReading(t *testing.T) {
	t.Parallel()

	res, err := newService(t).CalculateInterval("T-3", Tank, summary("0.99", api579.FitForService, ""), mild)
	require.NoError(t, err)
	assert.True(t, res.RecommendedInterval.Equal(d("10")))
	assert.True(t, res.MaximumInterval.Equal(d("15")))
	assert.Contains(t, res.Justification.Factors, "remaining life indeterminate")
}

func TestSecondaryFactorsRaisePOF(t *testing.T) {
	t.Parallel()

	s := newService(t)
	rf := mild
	rf.Susceptibility = risk.CategoryHigh
	rf.OperatingSeverity = risk.CategoryHigh
	res, err := s.CalculateInterval("V-1", Vessel, summary("0.98", api579.FitForService, "60"), rf)
	require.NoError(t, err)
	assert.Equal(t, risk.CategoryHigh, res.Justification.POF)

	rf = RiskFactors{Criticality: risk.CategoryHigh, Environment: risk.CategoryLow, Effectiveness: HighlyEffective, Redundancy: RedundancyFull}
	res, err = s.CalculateInterval("V-1", Vessel, summary("0.98", api579.FitForService, "60"), rf)
	require.NoError(t, err)
	assert.Equal(t, risk.CategoryMedium, res.Justification.COF)
}

func TestRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := newService(t)
	_, err := s.CalculateInterval("", "BOILER", summary("0.9", api579.FitForService, "10"), mild)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Len(t, errs.Fields(err), 2)

	_, err = s.CalculateInterval("V-1", Vessel, summary("0.9", api579.FitForService, "10"), RiskFactors{Criticality: "SEVERE"})
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = s.CalculateInterval("V-1", Vessel, summary("0", "MAYBE", "10"), mild)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.BaseInterval = map[EquipmentType]decimal.Decimal{Vessel: d("12"), Tank: d("10"), Piping: d("5")}
	assert.Error(t, c.Validate(), "base above ceiling")

	c = DefaultConfig()
	c.Ceiling = map[EquipmentType]decimal.Decimal{Vessel: d("25"), Tank: d("15"), Piping: d("10")}
	assert.Error(t, c.Validate(), "ceiling above 20")

	c = DefaultConfig()
	c.Reduction = map[risk.Level]decimal.Decimal{risk.Low: d("1"), risk.MediumLow: d("0.5"), risk.Medium: d("0.75"), risk.MediumHigh: d("0.3"), risk.High: d("0.2")}
	assert.Error(t, c.Validate(), "reduction not monotone")

	c = DefaultConfig()
	c.MinimumInterval = d("0.25")
	assert.Error(t, c.Validate(), "minimum with two places")

	_, err := NewService(c)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

type rbiCase struct {
	Type    EquipmentType
	Summary Summary
	Factors RiskFactors
}

func (rbiCase) Generate(rng *rand.Rand, _ int) reflect.Value {
	cats := []risk.Category{risk.CategoryLow, risk.CategoryMedium, risk.CategoryHigh}
	optional := []risk.Category{"", risk.CategoryLow, risk.CategoryMedium, risk.CategoryHigh}
	effs := []Effectiveness{HighlyEffective, UsuallyEffective, FairlyEffective, PoorlyEffective, Ineffective}
	reds := []Redundancy{"", RedundancyNone, RedundancyPartial, RedundancyFull}
	types := []EquipmentType{Vessel, Tank, Piping}
	verdicts := []api579.Verdict{api579.FitForService, api579.FitWithConditions, api579.NotFitForService}

	s := Summary{
		CalculationID: "gen",
		RSF:           decimal.New(rng.Int63n(15000)+1, -4),
		Verdict:       verdicts[rng.Intn(len(verdicts))],
	}
	if rng.Intn(4) > 0 {
		s.RemainingLife = fixed.Null(decimal.New(rng.Int63n(1000), -1))
	}
	return reflect.ValueOf(rbiCase{
		Type:    types[rng.Intn(len(types))],
		Summary: s,
		Factors: RiskFactors{
			Criticality:       cats[rng.Intn(3)],
			Environment:       cats[rng.Intn(3)],
			Effectiveness:     effs[rng.Intn(len(effs))],
			Susceptibility:    optional[rng.Intn(4)],
			OperatingSeverity: optional[rng.Intn(4)],
			Redundancy:        reds[rng.Intn(4)],
		},
	})
}

func TestIntervalOrderingProperty(t *testing.T) {
	t.Parallel()

	s := newService(t)
	ordered := func(c rbiCase) bool {
		res, err := s.CalculateInterval("EQ-1", c.Type, c.Summary, c.Factors)
		if err != nil {
			t.Logf("calculate: %v", err)
			return false
		}
		return !res.MinimumInterval.GreaterThan(res.RecommendedInterval) &&
			!res.RecommendedInterval.GreaterThan(res.MaximumInterval) &&
			!res.MaximumInterval.GreaterThan(d("20")) &&
			!res.MinimumInterval.LessThan(d("0.5")) &&
			res.Justification.Ranking.Valid()
	}
	require.NoError(t, quick.Check(ordered, &quick.Config{MaxCount: 3000}))
}

func TestHandlerCalc(t *testing.T) {
	t.Parallel()

	h := &Handler{Service: newService(t)}
	body := `{"equipment_id":"V-101","equipment_type":"VESSEL",
		"calculation":{"calculation_id":"x","rsf":"0.8912","verdict":"FIT_WITH_CONDITIONS","remaining_life":"47.6","calculation_date":"2024-06-01T00:00:00Z"},
		"risk_factors":{"criticality":"HIGH","environment":"MEDIUM","inspection_effectiveness":"USUALLY_EFFECTIVE"}}`
	rec := httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"recommended_interval_years":"3.5"`)

	rec = httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"equipment_id":"V-101"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
