// Package report renders stored assessments for people: a PDF per calculation and an
// .xlsx history per equipment item.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/errs"
)

const (
	title  = "API 579-1 Level 1 General Metal Loss Assessment"
	footer = "Level 1 screening per API 579-1/ASME FFS-1 Part 4 with ASME VIII-1 UG-27 circumferential stress."
)

type pdfWriter struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func (p *pdfWriter) heading(text string) {
	p.pdf.Ln(4)
	p.pdf.SetFont("Helvetica", "B", 12)
	p.pdf.Cell(0, 8, p.tr(text))
	p.pdf.Ln(8)
	p.pdf.SetFont("Helvetica", "", 10)
}

func (p *pdfWriter) row(label, value string) {
	p.pdf.SetFont("Helvetica", "", 10)
	p.pdf.CellFormat(70, 6, p.tr(label), "1", 0, "L", true, 0, "")
	p.pdf.CellFormat(0, 6, p.tr(value), "1", 1, "L", false, 0, "")
}

func (p *pdfWriter) bullets(items []string) {
	if len(items) == 0 {
		p.pdf.Cell(0, 6, "None.")
		p.pdf.Ln(6)
		return
	}
	for _, it := range items {
		p.pdf.MultiCell(0, 5, p.tr("- "+it), "", "L", false)
	}
}

func num(v decimal.Decimal, unit string) string {
	return v.String() + " " + unit
}

// WritePDF renders one stored assessment. The creation date is the recorded time, so the
// same record always renders the same document.
func WritePDF(w io.Writer, a assessment.Assessment) error {
	c := a.Calculation
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(a.TriggeredBy, true)
	pdf.SetCreationDate(a.RecordedAt)
	pdf.SetFillColor(235, 235, 235)
	p := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	p.row("Equipment", c.Inputs.EquipmentID)
	if c.Inputs.InspectionID != "" {
		p.row("Inspection", c.Inputs.InspectionID)
	}
	if c.Inputs.Inspector != "" {
		p.row("Inspector", c.Inputs.Inspector)
	}
	if c.Inputs.Supersedes != "" {
		p.row("Supersedes", c.Inputs.Supersedes)
	}
	p.row("Calculation date", c.CalculationDate.Format(time.DateOnly))
	p.row("Calculation id", c.ID)
	p.row("Requested by", a.TriggeredBy)
	p.row("Recorded at", a.RecordedAt.Format(time.RFC3339))

	p.heading("Result")
	p.row("Verdict", string(c.Verdict))
	p.row("Risk level", string(c.RiskLevel))
	p.row("Remaining strength factor", c.RSF.String())
	p.row("MAWP (reduced)", num(c.MAWP, "psi"))
	if c.RemainingLifeIndeterminate {
		p.row("Remaining life", "indeterminate (negligible corrosion rate)")
	} else {
		p.row("Remaining life", num(c.RemainingLife.Decimal, "years"))
	}
	p.row("Confidence", num(c.Confidence, "%"))
	p.row("Method", string(c.Method))
	p.row("Level 2 required", fmt.Sprintf("%t", c.Level2Required))
	pdf.Ln(2)
	pdf.MultiCell(0, 5, p.tr(c.Recommendation), "", "L", false)

	p.heading("Inputs")
	p.row("Design pressure", num(c.Inputs.DesignPressure, "psi"))
	if c.Inputs.DesignTemperature.Valid {
		p.row("Design temperature", num(c.Inputs.DesignTemperature.Decimal, "F"))
	}
	p.row("Material", c.Inputs.Material)
	p.row("Allowable stress", num(c.Resolved.AllowableStress, "psi"))
	p.row("Joint efficiency", c.Inputs.JointEfficiency.String())
	p.row("Internal radius", num(c.Resolved.InternalRadius, "in"))
	p.row("Design thickness", num(c.Inputs.DesignThickness, "in"))
	p.row("Minimum measured thickness", num(c.Inputs.MinThickness, "in"))
	p.row("Current thickness (less FCA)", num(c.CurrentThickness, "in"))
	if c.Inputs.CorrosionRate.Valid {
		p.row("Corrosion rate", num(c.Inputs.CorrosionRate.Decimal, "in/yr"))
	}

	p.heading("Dual-path verification")
	p.row("Path A minimum required thickness", num(c.PathA.MinRequiredThickness, "in"))
	p.row("Path A hoop stress design / current", fmt.Sprintf("%s / %s psi", c.PathA.StressAtDesign, c.PathA.StressAtCurrent))
	p.row("Path A RSF", c.PathA.RSF.String())
	p.row("Path B MAWP current / design", fmt.Sprintf("%s / %s psi", c.PathB.MAWPCurrent, c.PathB.MAWPDesign))
	p.row("Path B RSF", c.PathB.RSF.String())
	p.row("RSF relative difference", c.CrossCheck.RSFDifference.String())
	p.row("Round-trip relative difference", c.CrossCheck.RoundTripDifference.String())
	p.row("Paths agree", fmt.Sprintf("%t (tolerance %s)", c.CrossCheck.Agreed, c.CrossCheck.Tolerance))

	for _, r := range a.RBI {
		p.heading("Inspection interval (" + string(r.EquipmentType) + ")")
		p.row("Recommended interval", num(r.RecommendedInterval, "years"))
		p.row("Maximum / minimum interval", fmt.Sprintf("%s / %s years", r.MaximumInterval, r.MinimumInterval))
		p.row("Next inspection due", r.NextInspection.Format(time.DateOnly))
		p.row("POF / COF / ranking", fmt.Sprintf("%s / %s / %s", r.Justification.POF, r.Justification.COF, r.Justification.Ranking))
		pdf.Ln(2)
		p.bullets(r.Scope)
	}

	p.heading("Warnings")
	warnings := make([]string, 0, len(c.Warnings))
	for _, wn := range c.Warnings {
		s := wn.Code + ": " + wn.Message
		if wn.Citation != "" {
			s += " (" + wn.Citation + ")"
		}
		warnings = append(warnings, s)
	}
	p.bullets(warnings)

	p.heading("Assumptions")
	p.bullets(c.Assumptions)

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(0, 4, p.tr("Request key "+c.RequestKey+". "+footer), "", "L", false)

	if err := pdf.Output(w); err != nil {
		return errs.Wrap(err, "render pdf")
	}
	return nil
}
