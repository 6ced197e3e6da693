// Package importer reads thickness survey spreadsheets into inspection readings.
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"Wallcheck/internal/calc/inspection"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

// Columns are matched by header name, case-insensitive, in any order.
const (
	colLocation     = "location"
	colMeasured     = "measured"
	colNominal      = "nominal"
	colDate         = "date"
	colMethod       = "method"
	colPrevious     = "previous"
	colPreviousDate = "previous_date"
)

var required = []string{colLocation, colMeasured, colNominal, colDate}

// RowError points at one bad cell; Row is the 1-based spreadsheet row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Result struct {
	Sheet    string               `json:"sheet"`
	Readings []inspection.Reading `json:"readings"`
	Errors   []RowError           `json:"errors,omitempty"`
}

var dateLayouts = []string{time.DateOnly, "2006/01/02", "1/2/2006", "02.01.2006"}

// ReadReadings parses the first sheet. Unreadable files and missing headers fail the
// whole import; bad rows are reported in Result.Errors and left out of Readings.
func ReadReadings(r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, errs.Validationf("file", "not a readable .xlsx workbook: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Result{}, errs.Validationf("file", "read sheet %q: %v", sheet, err)
	}
	if len(rows) < 2 {
		return Result{}, errs.Validationf("file", "sheet %q has no data rows", sheet)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []*errs.Error
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, errs.Validationf(name, "column %q is missing from the header row", name))
		}
	}
	if err := errs.Join(missing...); err != nil {
		return Result{}, err
	}

	out := Result{Sheet: sheet, Readings: make([]inspection.Reading, 0, len(rows)-1)}
	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}
		reading, rowErrs := parseRow(row, cols, rowNum)
		if len(rowErrs) == 0 {
			if err := reading.Validate(); err != nil {
				for _, fe := range errs.Fields(err) {
					rowErrs = append(rowErrs, RowError{Row: rowNum, Field: fe.Field, Message: fe.Reason})
				}
			}
		}
		if len(rowErrs) > 0 {
			out.Errors = append(out.Errors, rowErrs...)
			continue
		}
		out.Readings = append(out.Readings, reading)
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, cols map[string]int, rowNum int) (inspection.Reading, []RowError) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var list []RowError
	fail := func(field, format string, args ...any) {
		list = append(list, RowError{Row: rowNum, Field: field, Message: fmt.Sprintf(format, args...)})
	}
	number := func(field string) decimal.Decimal {
		raw := cell(field)
		if raw == "" {
			fail(field, "%s is empty", field)
			return decimal.Zero
		}
		v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
		if err != nil {
			fail(field, "%q is not a number", raw)
		}
		return v
	}
	date := func(field string) time.Time {
		raw := cell(field)
		t, err := parseDate(raw)
		if err != nil {
			fail(field, "%v", err)
		}
		return t
	}

	r := inspection.Reading{
		Location: cell(colLocation),
		Measured: number(colMeasured),
		Nominal:  number(colNominal),
		Date:     date(colDate),
		Method:   inspection.MethodUT,
	}
	if raw := cell(colMethod); raw != "" {
		m, err := inspection.ParseMethod(raw)
		if err != nil {
			fail(colMethod, "unknown measurement method %q", raw)
		}
		r.Method = m
	}
	if cell(colPrevious) != "" || cell(colPreviousDate) != "" {
		r.Previous = fixed.Null(number(colPrevious))
		t := date(colPreviousDate)
		r.PreviousDate = &t
	}
	return r, list
}

// parseDate accepts Excel serial dates as well as the common text layouts.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not a valid spreadsheet date", raw)
		}
		return fixed.DateOnly(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date (use YYYY-MM-DD)", raw)
}
