package api579

import (
	"bytes"
	"encoding/json"
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

	"Wallcheck/internal/calc/geometry"
	"Wallcheck/internal/calc/material"
	"Wallcheck/internal/calc/risk"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return fixed.Null(d(s)) }

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultPolicy(), material.NewResolver(nil), geometry.NewResolver(decimal.Zero))
	require.NoError(t, err)
	return c
}

// scenario is the 150 psi, 24 in radius, 17500 psi shell with 0.445 in remaining of a
// 0.500 in design wall.
func scenario() Input {
	return Input{
		EquipmentID:         "V-101",
		InspectionID:        "INSP-2024-06",
		DesignPressure:      d("150"),
		DesignTemperature:   nd("350"),
		DesignThickness:     d("0.500"),
		Material:            "SA-516-70",
		MinThickness:        d("0.445"),
		AverageThickness:    d("0.460"),
		InternalRadius:      nd("24.0"),
		AllowableStress:     nd("17500"),
		JointEfficiency:     d("1.0"),
		CorrosionRate:       nd("0.005"),
		CorrosionConfidence: nd("80"),
		CalculationDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func warningCodes(c Calculation) []string {
	out := make([]string, 0, len(c.Warnings))
	for _, w := range c.Warnings {
		out = append(out, w.Code)
	}
	return out
}

func TestScenarioFitWithConditions(t *testing.T) {
	t.Parallel()

	res, err := newCalculator(t).Calculate(scenario())
	require.NoError(t, err)

	assert.True(t, res.MinRequiredThickness.Equal(d("0.2068")), "tmin %s", res.MinRequiredThickness)
	assert.True(t, res.RSF.Equal(d("0.8912")), "rsf %s", res.RSF)
	assert.True(t, res.RSF.GreaterThan(d("0.80")) && res.RSF.LessThan(d("0.90")))
	assert.Equal(t, FitWithConditions, res.Verdict)
	assert.Equal(t, risk.MediumHigh, res.RiskLevel)
	assert.True(t, res.Level2Required)
	assert.Equal(t, MethodDualPath, res.Method)
	assert.True(t, res.CrossCheck.Agreed)
	assert.True(t, res.PathB.RSF.Equal(res.PathA.RSF))
	assert.True(t, res.MAWP.Equal(d("320.5")), "mawp %s", res.MAWP)
	assert.True(t, res.RemainingLife.Valid)
	assert.True(t, res.RemainingLife.Decimal.Equal(d("47.6")), "life %s", res.RemainingLife.Decimal)
	assert.True(t, res.Confidence.Equal(d("80")), "confidence %s", res.Confidence)
	assert.False(t, res.ReviewRequired)
	assert.Empty(t, res.Warnings)
	assert.NotEmpty(t, res.Recommendation)
	assert.Len(t, res.ID, 36)
	assert.Len(t, res.RequestKey, 64)
}

func TestCalculateIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newCalculator(t)
	in := scenario()
	in.AllowableStress = decimal.NullDecimal{}
	in.InternalRadius = decimal.NullDecimal{}
	in.Geometry = &geometry.Dimensions{InsideDiameter: nd("48")}

	first, err := c.Calculate(in)
	require.NoError(t, err)
	second, err := c.Calculate(in)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, first.ID, second.ID)

	// The snapshot is a copy; changing the caller's record does not reach it.
	in.Geometry.InsideDiameter = nd("60")
	assert.True(t, first.Inputs.Geometry.InsideDiameter.Decimal.Equal(d("48")))

	other := scenario()
	other.MinThickness = d("0.444")
	third, err := c.Calculate(other)
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestKey, third.RequestKey)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestUnknownMaterialLowersConfidence(t *testing.T) {
	t.Parallel()

	c := newCalculator(t)
	known := scenario()
	known.AllowableStress = decimal.NullDecimal{}
	unknown := known
	unknown.Material = "UNOBTANIUM-9"

	k, err := c.Calculate(known)
	require.NoError(t, err)
	u, err := c.Calculate(unknown)
	require.NoError(t, err)

	assert.True(t, k.Resolved.Material.Interpolated)
	assert.True(t, k.Resolved.AllowableStress.Equal(d("19650")))
	assert.True(t, u.Resolved.Material.Defaulted)
	assert.True(t, u.Resolved.AllowableStress.Equal(material.DefaultAllowable))
	assert.Contains(t, warningCodes(u), WarnMaterialDefaulted)
	assert.Equal(t, MethodDefaulted, u.Method)
	assert.True(t, u.ReviewRequired)
	assert.True(t, u.Confidence.LessThan(k.Confidence), "unknown %s known %s", u.Confidence, k.Confidence)
}

func TestValidationNamesEveryField(t *testing.T) {
	t.Parallel()

	_, err := newCalculator(t).Calculate(Input{JointEfficiency: d("1.2"), AverageThickness: d("0.1"), MinThickness: d("0.2")})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	var fields []string
	for _, f := range errs.Fields(err) {
		fields = append(fields, f.Field)
	}
	for _, want := range []string{"design_pressure", "design_temperature", "design_thickness", "material",
		"average_thickness", "joint_efficiency", "corrosion_rate", "calculation_date"} {
		assert.Contains(t, fields, want)
	}
}

func TestFutureCorrosionAllowanceMustLeaveMetal(t *testing.T) {
	t.Parallel()

	in := scenario()
	in.FutureCorrosionAllowance = nd("0.445")
	_, err := newCalculator(t).Calculate(in)
	require.Error(t, err)
	assert.Equal(t, "future_corrosion_allowance", errs.Fields(err)[0].Field)
}

func TestPressureBeyondFormulaRangeIsComputationError(t *testing.T) {
	t.Parallel()

	in := scenario()
	in.DesignPressure = d("30000")
	_, err := newCalculator(t).Calculate(in)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindComputation))
	assert.Contains(t, err.Error(), "UG-27")
}

func TestUnresolvedRadiusIsInsufficientData(t *testing.T) {
	t.Parallel()

	c := newCalculator(t)
	in := scenario()
	in.InternalRadius = decimal.NullDecimal{}
	_, err := c.Calculate(in)
	assert.True(t, errs.IsKind(err, errs.KindResolution))

	in.Geometry = &geometry.Dimensions{NPS: "6"}
	_, err = c.Calculate(in)
	assert.True(t, errs.IsKind(err, errs.KindResolution))

	in.Geometry = &geometry.Dimensions{OutsideDiameter: nd("49"), WallThickness: nd("0.5")}
	res, err := c.Calculate(in)
	require.NoError(t, err)
	assert.True(t, res.Resolved.InternalRadius.Equal(d("24")))
	assert.Equal(t, geometry.SourceOutsideAndWall, res.Resolved.Geometry.Source)
}

func TestGeometryWarningsPenalizeConfidence(t *testing.T) {
	t.Parallel()

	in := scenario()
	in.InternalRadius = nd("700")
	in.DesignThickness = d("7")
	in.MinThickness = d("6.5")
	in.AverageThickness = d("6.6")
	res, err := newCalculator(t).Calculate(in)
	require.NoError(t, err)
	assert.Contains(t, warningCodes(res), WarnGeometry+":RADIUS_OUTSIDE_APPLICABILITY")
	assert.True(t, res.Confidence.Equal(d("75")), "confidence %s", res.Confidence)
}

func TestNegligibleRateMakesLifeIndeterminate(t *testing.T) {
	t.Parallel()

	in := scenario()
	in.MinThickness = d("0.490")
	in.AverageThickness = d("0.495")
	in.CorrosionRate = decimal.NullDecimal{}
	in.RateNegligible = true
	res, err := newCalculator(t).Calculate(in)
	require.NoError(t, err)

	assert.False(t, res.RemainingLife.Valid)
	assert.True(t, res.RemainingLifeIndeterminate)
	assert.True(t, res.ReviewRequired)
	assert.Equal(t, FitForService, res.Verdict)
	assert.Equal(t, risk.Low, res.RiskLevel)
	assert.Contains(t, warningCodes(res), WarnNegligibleRate)
	assert.True(t, res.Confidence.Equal(d("70")))
}

func TestBelowMinimumIsNotFit(t *testing.T) {
	t.Parallel()

	in := scenario()
	in.DesignThickness = d("0.25")
	in.MinThickness = d("0.200")
	in.AverageThickness = d("0.210")
	res, err := newCalculator(t).Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, NotFitForService, res.Verdict)
	assert.Equal(t, risk.High, res.RiskLevel)
	assert.True(t, res.RemainingLife.Decimal.IsZero())
	assert.Contains(t, warningCodes(res), WarnBelowMinimum)
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	tc, tmin := d("0.4"), d("0.2")
	life := func(s string) decimal.NullDecimal { return nd(s) }

	tests := []struct {
		rsf     string
		life    decimal.NullDecimal
		verdict Verdict
		level   risk.Level
		level2  bool
	}{
		{"0.7999", life("30"), NotFitForService, risk.High, true},
		{"0.80", life("30"), NotFitForService, risk.High, true},
		{"0.8001", life("30"), FitWithConditions, risk.MediumHigh, true},
		{"0.90", life("30"), FitWithConditions, risk.MediumHigh, true},
		{"0.901", life("30"), FitForService, risk.Low, false},
		{"0.95", life("1.9"), FitForService, risk.High, false},
		{"0.95", life("2"), FitForService, risk.Medium, false},
		{"0.95", life("4.9"), FitForService, risk.Medium, false},
		{"0.95", life("5"), FitForService, risk.MediumLow, false},
		{"0.95", life("10"), FitForService, risk.Low, false},
		{"1.2", decimal.NullDecimal{}, FitForService, risk.Low, false},
	}
	for _, tt := range tests {
		got := p.Classify(d(tt.rsf), tc, tmin, tt.life)
		assert.Equal(t, tt.verdict, got.Verdict, "rsf %s", tt.rsf)
		assert.Equal(t, tt.level, got.RiskLevel, "rsf %s life %v", tt.rsf, tt.life)
		assert.Equal(t, tt.level2, got.Level2Required, "rsf %s", tt.rsf)
		assert.NotEmpty(t, got.Recommendation)
	}

	got := p.Classify(d("1.5"), d("0.19"), tmin, life("30"))
	assert.Equal(t, NotFitForService, got.Verdict)
}

func TestCrossCheckFlagsDisagreement(t *testing.T) {
	t.Parallel()

	P := d("150")
	check, err := crossCheck(PathA{RSF: d("0.90")}, PathB{RSF: d("0.85"), MAWPAtMinimum: P}, P, d("0.001"))
	require.NoError(t, err)
	assert.False(t, check.Agreed)

	check, err = crossCheck(PathA{RSF: d("0.90")}, PathB{RSF: d("0.9"), MAWPAtMinimum: d("151")}, P, d("0.001"))
	require.NoError(t, err)
	assert.False(t, check.Agreed)

	check, err = crossCheck(PathA{RSF: d("0.90")}, PathB{RSF: d("0.9000001"), MAWPAtMinimum: P}, P, d("0.001"))
	require.NoError(t, err)
	assert.True(t, check.Agreed)
}

func TestDiscrepantPathsAreReturnedForReview(t *testing.T) {
	t.Parallel()

	// Path B's round trip to design pressure carries a few units of the last
	// division place for this shell; a tolerance below that forces a disagreement.
	in := scenario()
	in.DesignPressure = d("157")
	in.InternalRadius = nd("11.3")

	agreed, err := newCalculator(t).Calculate(in)
	require.NoError(t, err)
	require.True(t, agreed.CrossCheck.Agreed)

	p := DefaultPolicy()
	p.Tolerance = d("1e-20")
	strict, err := NewCalculator(p, material.NewResolver(nil), geometry.NewResolver(decimal.Zero))
	require.NoError(t, err)

	res, err := strict.Calculate(in)
	require.NoError(t, err)
	assert.False(t, res.CrossCheck.Agreed)
	assert.Equal(t, MethodDiscrepant, res.Method)
	assert.True(t, res.ReviewRequired)
	assert.Contains(t, warningCodes(res), WarnCrossPath)
	assert.True(t, res.Confidence.Equal(agreed.Confidence.Sub(p.Penalties.CrossPath)), "confidence %s", res.Confidence)
	assert.Equal(t, agreed.Verdict, res.Verdict)
	assert.True(t, res.RSF.Equal(agreed.RSF))
}

// shell generates a valid thin-shell input across a wide range.
type shell Input

func (shell) Generate(rng *rand.Rand, _ int) reflect.Value {
	pick := func(lo, hi int64, exp int32) decimal.Decimal {
		return decimal.New(lo+rng.Int63n(hi-lo+1), exp)
	}
	td := pick(100, 2000, -3)      // 0.100 .. 2.000 in
	tc := pick(50, td.Shift(3).IntPart(), -3)
	in := Input{
		DesignPressure:      pick(10, 1000, 0),
		DesignTemperature:   nd("200"),
		DesignThickness:     td,
		Material:            "SA-516-70",
		MinThickness:        tc,
		AverageThickness:    tc,
		InternalRadius:      fixed.Null(pick(10, 2000, -1)),
		AllowableStress:     fixed.Null(pick(10000, 25000, 0)),
		JointEfficiency:     pick(70, 100, -2),
		CorrosionRate:       fixed.Null(pick(1, 50, -3)),
		CorrosionConfidence: nd("90"),
		CalculationDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	return reflect.ValueOf(shell(in))
}

func TestPathsAgreeProperty(t *testing.T) {
	t.Parallel()

	c := newCalculator(t)
	tol := DefaultPolicy().Tolerance
	agree := func(s shell) bool {
		res, err := c.Calculate(Input(s))
		if err != nil {
			t.Logf("calculate: %v", err)
			return false
		}
		if !res.CrossCheck.Agreed {
			return false
		}
		return res.CrossCheck.RSFDifference.LessThan(tol) && res.CrossCheck.RoundTripDifference.LessThan(tol)
	}
	require.NoError(t, quick.Check(agree, &quick.Config{MaxCount: 500}))
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.CriticalRSF = d("0.95")
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Tolerance = decimal.Zero
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.LifeMedium = d("1")
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Penalties.CrossPath = d("-1")
	assert.Error(t, p.Validate())

	_, err := NewCalculator(p, material.NewResolver(nil), geometry.NewResolver(decimal.Zero))
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestHandlerCalc(t *testing.T) {
	t.Parallel()

	h := &Handler{Calculator: newCalculator(t)}
	body, err := json.Marshal(scenario())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var res Calculation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, FitWithConditions, res.Verdict)

	rec = httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"design_pressure":"150"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"design_temperature"`)
}
