package report

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/calc/geometry"
	"Wallcheck/internal/calc/material"
	"Wallcheck/internal/calc/rbi"
	"Wallcheck/internal/calc/risk"
	"Wallcheck/internal/fixed"
	"Wallcheck/internal/repo"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func stored(t *testing.T) assessment.Assessment {
	t.Helper()
	calc, err := api579.NewCalculator(api579.DefaultPolicy(), material.NewResolver(nil), geometry.NewResolver(decimal.Zero))
	require.NoError(t, err)
	c, err := calc.Calculate(api579.Input{
		EquipmentID:       "V-101",
		InspectionID:      "INSP-2024-06",
		DesignPressure:    d("150"),
		DesignTemperature: fixed.Null(d("350")),
		DesignThickness:   d("0.500"),
		Material:          "SA-516-70",
		MinThickness:      d("0.445"),
		AverageThickness:  d("0.460"),
		InternalRadius:    fixed.Null(d("24")),
		JointEfficiency:   d("1"),
		CorrosionRate:     fixed.Null(d("0.005")),
		CalculationDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	svc, err := rbi.NewService(rbi.DefaultConfig())
	require.NoError(t, err)
	r, err := svc.CalculateInterval("V-101", rbi.Vessel, rbi.SummaryOf(c), rbi.RiskFactors{
		Criticality: risk.CategoryHigh, Environment: risk.CategoryMedium, Effectiveness: rbi.UsuallyEffective,
	})
	require.NoError(t, err)
	recorded := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	return assessment.Assessment{
		StoredCalculation: repo.StoredCalculation{Calculation: c, RecordedAt: recorded, TriggeredBy: "j.doe"},
		RBI:               []repo.StoredRBI{{Result: r, RecordedAt: recorded, TriggeredBy: "j.doe"}},
	}
}

func TestWritePDFIsStable(t *testing.T) {
	t.Parallel()

	a := stored(t)
	var first, second bytes.Buffer
	require.NoError(t, WritePDF(&first, a))
	require.NoError(t, WritePDF(&second, a))
	assert.True(t, bytes.HasPrefix(first.Bytes(), []byte("%PDF-")))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	a := stored(t)
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, []repo.StoredCalculation{a.StoredCalculation, a.StoredCalculation}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Calculation date", rows[0][0])
	assert.Equal(t, "2024-06-01", rows[1][0])
	assert.Equal(t, string(api579.FitWithConditions), rows[1][2])
	assert.Equal(t, "0.8912", rows[1][4])
}

type fakeSource struct{ a assessment.Assessment }

func (f fakeSource) Get(_ context.Context, id string) (assessment.Assessment, error) {
	if id != f.a.ID {
		return assessment.Assessment{}, repo.ErrNotFound
	}
	return f.a, nil
}

func (f fakeSource) History(_ context.Context, equipmentID string) ([]repo.StoredCalculation, error) {
	if equipmentID != f.a.Inputs.EquipmentID {
		return nil, nil
	}
	return []repo.StoredCalculation{f.a.StoredCalculation}, nil
}

func TestHandlers(t *testing.T) {
	t.Parallel()

	a := stored(t)
	h := &Handler{Source: fakeSource{a: a}}
	r := mux.NewRouter()
	r.HandleFunc("/assessments/{id}/report.pdf", h.PDF)
	r.HandleFunc("/equipment/{id}/history.xlsx", h.History)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assessments/"+a.ID+"/report.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assessments/missing/report.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/equipment/V-101/history.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "V-101-history.xlsx")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/equipment/V-404/history.xlsx", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
