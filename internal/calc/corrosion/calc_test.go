package corrosion

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Wallcheck/internal/errs"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func obs(date, thickness string) Observation {
	return Observation{Thickness: d(thickness), Date: day(date)}
}

func TestComputeLongAndShortTerm(t *testing.T) {
	t.Parallel()

	install := day("2016-01-01")
	res, err := DefaultEngine().Compute(Series{
		Location:     "CML-1",
		Nominal:      d("0.500"),
		InstallDate:  &install,
		Observations: []Observation{obs("2020-01-01", "0.490"), obs("2024-01-01", "0.460")},
	})
	require.NoError(t, err)

	assert.True(t, res.LongTermRate.Decimal.Equal(d("0.005")), "long %s", res.LongTermRate.Decimal)
	assert.True(t, res.ShortTermRate.Decimal.Equal(d("0.0075")), "short %s", res.ShortTermRate.Decimal)
	assert.True(t, res.GoverningRate.Equal(d("0.0075")))
	assert.Equal(t, BasisShortTerm, res.Basis)
	assert.True(t, res.TrendRate.Decimal.Equal(d("0.0075")))
	assert.True(t, res.CurrentThickness.Equal(d("0.460")))
	assert.False(t, res.Negligible)
	assert.Empty(t, res.Assumptions)
	assert.True(t, res.Variance.IsZero())
	assert.True(t, res.Confidence.Equal(d("40")), "confidence %s", res.Confidence)
}

func TestLongTermGovernsWhenLarger(t *testing.T) {
	t.Parallel()

	install := day("2016-01-01")
	res, err := DefaultEngine().Compute(Series{
		Nominal:      d("0.500"),
		InstallDate:  &install,
		Observations: []Observation{obs("2020-01-01", "0.450"), obs("2024-01-01", "0.440")},
	})
	require.NoError(t, err)
	assert.Equal(t, BasisLongTerm, res.Basis)
	assert.True(t, res.GoverningRate.Equal(d("0.0075")), "governing %s", res.GoverningRate)
}

func TestWithoutInstallDateUsesFirstObservation(t *testing.T) {
	t.Parallel()

	res, err := DefaultEngine().Compute(Series{
		Location:     "CML-2",
		Nominal:      d("0.500"),
		Observations: []Observation{obs("2016-01-01", "0.500"), obs("2020-01-01", "0.480"), obs("2024-01-01", "0.480")},
	})
	require.NoError(t, err)
	require.Len(t, res.Assumptions, 1)
	assert.Contains(t, res.Assumptions[0], "2016-01-01")
	assert.True(t, res.LongTermRate.Decimal.Equal(d("0.0025")))
	assert.True(t, res.ShortTermRate.Decimal.IsZero())
	assert.Equal(t, BasisLongTerm, res.Basis)

	// Residual scatter about the 0.0025 in/yr trend lowers the score below the
	// zero-variance value of 50 for three readings.
	assert.True(t, res.Variance.IsPositive())
	assert.True(t, res.Variance.LessThan(d("0.0000223")), "variance %s", res.Variance)
	assert.True(t, res.Confidence.Equal(d("47.37")), "confidence %s", res.Confidence)
}

func TestNegligibleRateFlagsReview(t *testing.T) {
	t.Parallel()

	res, err := DefaultEngine().Compute(Series{
		Location:     "CML-3",
		Nominal:      d("0.500"),
		Observations: []Observation{obs("2020-01-01", "0.470"), obs("2024-01-01", "0.472")},
	})
	require.NoError(t, err)
	assert.True(t, res.Negligible)
	assert.True(t, res.ReviewRequired)
	assert.True(t, res.GoverningRate.IsZero())
	assert.Equal(t, BasisNone, res.Basis)
	assert.NotEmpty(t, res.Warnings)
}

func TestFewerThanTwoReadingsIsInsufficientData(t *testing.T) {
	t.Parallel()

	for _, o := range [][]Observation{nil, {obs("2024-01-01", "0.46")}} {
		_, err := DefaultEngine().Compute(Series{Location: "CML-4", Nominal: d("0.5"), Observations: o})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInsufficientData))
		assert.True(t, errs.IsKind(err, errs.KindResolution))
	}
}

func TestComputeRejectsBadSeries(t *testing.T) {
	t.Parallel()

	late := day("2021-01-01")
	tests := []struct {
		name string
		s    Series
	}{
		{"unordered dates", Series{Nominal: d("0.5"), Observations: []Observation{obs("2024-01-01", "0.46"), obs("2020-01-01", "0.48")}}},
		{"duplicate dates", Series{Nominal: d("0.5"), Observations: []Observation{obs("2024-01-01", "0.46"), obs("2024-01-01", "0.45")}}},
		{"negative thickness", Series{Nominal: d("0.5"), Observations: []Observation{obs("2020-01-01", "0.48"), obs("2024-01-01", "-0.1")}}},
		{"non-positive nominal", Series{Nominal: d("0"), Observations: []Observation{obs("2020-01-01", "0.48"), obs("2024-01-01", "0.46")}}},
		{"install after first reading", Series{Nominal: d("0.5"), InstallDate: &late, Observations: []Observation{obs("2020-01-01", "0.48"), obs("2024-01-01", "0.46")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DefaultEngine().Compute(tt.s)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindValidation), "%v", err)
		})
	}
}

func TestTwoObservationsHaveNoSpread(t *testing.T) {
	t.Parallel()

	e := DefaultEngine()
	res, err := e.Compute(Series{Location: "CML-1", Nominal: d("0.5"), Observations: []Observation{obs("2019-06-01", "0.470"), obs("2024-06-01", "0.445")}})
	require.NoError(t, err)
	assert.True(t, res.Variance.IsZero(), "variance %s", res.Variance)
	assert.True(t, e.Score(2, decimal.Zero).Equal(e.Score(2, res.Variance)))
}

func TestScoreIsMonotonicAndBounded(t *testing.T) {
	t.Parallel()

	e := DefaultEngine()
	variance := func(v uint16) decimal.Decimal { return decimal.New(int64(v), -7) }

	moreReadings := func(a, b uint8, v uint16) bool {
		lo, hi := int(a), int(b)
		if lo > hi {
			lo, hi = hi, lo
		}
		return !e.Score(hi, variance(v)).LessThan(e.Score(lo, variance(v)))
	}
	moreSpread := func(n uint8, a, b uint16) bool {
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		return !e.Score(int(n), variance(hi)).GreaterThan(e.Score(int(n), variance(lo)))
	}
	bounded := func(n uint8, v uint16) bool {
		s := e.Score(int(n), variance(v))
		return !s.IsNegative() && !s.GreaterThan(decimal.NewFromInt(100))
	}
	cfg := &quick.Config{MaxCount: 2000}
	require.NoError(t, quick.Check(moreReadings, cfg))
	require.NoError(t, quick.Check(moreSpread, cfg))
	require.NoError(t, quick.Check(bounded, cfg))

	assert.True(t, e.Score(0, decimal.Zero).IsZero())
	assert.True(t, e.Score(3, decimal.Zero).Equal(d("50")))
	assert.True(t, e.Score(3, d("0.0004")).Equal(d("25")))
}

func TestNewEngineRejectsNonPositiveParameters(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(decimal.Zero, d("0.0004"))
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	_, err = NewEngine(d("3"), decimal.Zero)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	e, err := NewEngine(d("5"), d("0.001"))
	require.NoError(t, err)
	assert.True(t, e.Score(5, decimal.Zero).Equal(d("50")))
}

func TestSummarizePicksGoverningLocation(t *testing.T) {
	t.Parallel()

	e := DefaultEngine()
	a, err := e.Compute(Series{Location: "A", Nominal: d("0.5"), Observations: []Observation{obs("2020-01-01", "0.48"), obs("2024-01-01", "0.46")}})
	require.NoError(t, err)
	b, err := e.Compute(Series{Location: "B", Nominal: d("0.5"), Observations: []Observation{obs("2020-01-01", "0.46"), obs("2024-01-01", "0.44")}})
	require.NoError(t, err)
	c, err := e.Compute(Series{Location: "C", Nominal: d("0.5"), Observations: []Observation{obs("2020-01-01", "0.49"), obs("2024-01-01", "0.485")}})
	require.NoError(t, err)

	sum, err := e.Summarize([]Result{a, b, c})
	require.NoError(t, err)
	// A and B share the 0.005 in/yr rate; B is thinner.
	assert.Equal(t, "B", sum.Governing.Location)
	assert.Equal(t, 6, sum.Readings)
	assert.True(t, sum.Confidence.Equal(d("66.67")), "confidence %s", sum.Confidence)
	assert.Len(t, sum.Locations, 3)

	_, err = e.Summarize(nil)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestHandlerCalc(t *testing.T) {
	t.Parallel()

	h := &Handler{Engine: DefaultEngine()}
	body := `{"series":[{"location":"CML-1","nominal":"0.5","observations":[
		{"thickness":"0.49","date":"2020-01-01T00:00:00Z"},
		{"thickness":"0.46","date":"2024-01-01T00:00:00Z"}]}]}`
	rec := httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"governing_rate":"0.0075"`)

	rec = httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(
		`{"series":[{"location":"CML-1","nominal":"0.5","observations":[{"thickness":"0.49","date":"2020-01-01T00:00:00Z"}]}]}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
