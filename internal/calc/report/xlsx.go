package report

import (
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/repo"
)

const historySheet = "History"

var historyHeader = []any{
	"Calculation date", "Calculation id", "Verdict", "Risk level", "RSF",
	"Min measured (in)", "Current (in)", "t min (in)", "MAWP (psi)", "Remaining life (yr)",
	"Corrosion rate (in/yr)", "Confidence", "Method", "Level 2", "Warnings", "Requested by", "Recorded at",
}

// WriteXLSX writes the calculation history of one equipment item, one row per calculation.
// Decimal values are written as text so the workbook shows exactly what was recorded.
func WriteXLSX(w io.Writer, history []repo.StoredCalculation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), historySheet); err != nil {
		return errs.Wrap(err, "name sheet")
	}
	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return errs.Wrap(err, "write header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errs.Wrap(err, "create style")
	}
	last, err := excelize.CoordinatesToCellName(len(historyHeader), 1)
	if err != nil {
		return errs.Wrap(err, "header range")
	}
	if err := f.SetCellStyle(historySheet, "A1", last, bold); err != nil {
		return errs.Wrap(err, "style header")
	}

	for i, h := range history {
		c := h.Calculation
		life := "indeterminate"
		if !c.RemainingLifeIndeterminate && c.RemainingLife.Valid {
			life = c.RemainingLife.Decimal.String()
		}
		rate := ""
		if c.Inputs.CorrosionRate.Valid {
			rate = c.Inputs.CorrosionRate.Decimal.String()
		}
		codes := make([]string, 0, len(c.Warnings))
		for _, wn := range c.Warnings {
			codes = append(codes, wn.Code)
		}
		row := []any{
			c.CalculationDate.Format(time.DateOnly), c.ID, string(c.Verdict), string(c.RiskLevel), c.RSF.String(),
			c.Inputs.MinThickness.String(), c.CurrentThickness.String(), c.MinRequiredThickness.String(), c.MAWP.String(), life,
			rate, c.Confidence.String(), string(c.Method), c.Level2Required, strings.Join(codes, ", "), h.TriggeredBy,
			h.RecordedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errs.Wrap(err, "row cell")
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return errs.Wrapf(err, "write row %d", i+2)
		}
	}
	if err := f.SetPanes(historySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return errs.Wrap(err, "freeze header")
	}
	if _, err := f.WriteTo(w); err != nil {
		return errs.Wrap(err, "write workbook")
	}
	return nil
}
