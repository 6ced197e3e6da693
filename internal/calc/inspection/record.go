// Package inspection holds the thickness readings taken at one inspection event.
package inspection

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/corrosion"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

type MeasurementMethod string

const (
	MethodUT       MeasurementMethod = "UT"
	MethodUTScan   MeasurementMethod = "UT_SCAN"
	MethodRT       MeasurementMethod = "RT"
	MethodPitGauge MeasurementMethod = "PIT_GAUGE"
	MethodCaliper  MeasurementMethod = "CALIPER"
)

func (m MeasurementMethod) Valid() bool {
	switch m {
	case MethodUT, MethodUTScan, MethodRT, MethodPitGauge, MethodCaliper:
		return true
	}
	return false
}

func ParseMethod(s string) (MeasurementMethod, error) {
	m := MeasurementMethod(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if m == "" {
		return MethodUT, nil
	}
	if !m.Valid() {
		return "", errs.Validationf("method", "unknown measurement method %q", s)
	}
	return m, nil
}

// Reading is one thickness measurement at one monitoring location.
type Reading struct {
	Location     string              `json:"location"`
	Measured     decimal.Decimal     `json:"measured"`
	Nominal      decimal.Decimal     `json:"nominal"`
	Previous     decimal.NullDecimal `json:"previous,omitempty"`
	PreviousDate *time.Time          `json:"previous_date,omitempty"`
	Date         time.Time           `json:"date"`
	Method       MeasurementMethod   `json:"method"`
}

func (r Reading) Validate() error {
	var list []*errs.Error
	if strings.TrimSpace(r.Location) == "" {
		list = append(list, errs.Validation("location", "monitoring location is required"))
	}
	if r.Measured.IsNegative() {
		list = append(list, errs.Validationf("measured", "measured thickness %s at %s is negative", r.Measured, r.Location))
	}
	if !r.Nominal.IsPositive() {
		list = append(list, errs.Validationf("nominal", "nominal thickness at %s must be positive", r.Location))
	}
	if r.Date.IsZero() {
		list = append(list, errs.Validationf("date", "measurement date at %s is required", r.Location))
	}
	if !r.Method.Valid() {
		list = append(list, errs.Validationf("method", "unknown measurement method %q at %s", r.Method, r.Location))
	}
	switch {
	case r.Previous.Valid != (r.PreviousDate != nil):
		list = append(list, errs.Validationf("previous_date",
			"previous thickness and previous date at %s must be given together", r.Location))
	case r.Previous.Valid:
		if r.Previous.Decimal.IsNegative() {
			list = append(list, errs.Validationf("previous", "previous thickness at %s is negative", r.Location))
		}
		if !r.Date.IsZero() && !fixed.DateOnly(*r.PreviousDate).Before(fixed.DateOnly(r.Date)) {
			list = append(list, errs.Validationf("previous_date",
				"previous measurement at %s must be dated before %s", r.Location, r.Date.Format(time.DateOnly)))
		}
	}
	return errs.Join(list...)
}

// Record aggregates the readings of one equipment item at one inspection event. Once a
// calculation has been generated against it the record is frozen; corrections go into a
// new record that supersedes it.
type Record struct {
	EquipmentID    string
	InspectionDate time.Time
	Inspector      string
	Supersedes     string
	InstallDate    *time.Time

	mu       sync.RWMutex
	readings []Reading
	frozen   bool
}

var ErrFrozen = errs.Invariant("inspection record", "readings cannot change after a calculation has been generated; create a superseding record")

func NewRecord(equipmentID string, date time.Time, inspector string) (*Record, error) {
	var list []*errs.Error
	if strings.TrimSpace(equipmentID) == "" {
		list = append(list, errs.Validation("equipment_id", "equipment id is required"))
	}
	if date.IsZero() {
		list = append(list, errs.Validation("inspection_date", "inspection date is required"))
	}
	if err := errs.Join(list...); err != nil {
		return nil, err
	}
	return &Record{EquipmentID: equipmentID, InspectionDate: date, Inspector: inspector}, nil
}

// Add validates r and appends it. A reading without a method is taken as UT.
func (rec *Record) Add(r Reading) error {
	if r.Method == "" {
		r.Method = MethodUT
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if fixed.DateOnly(r.Date).After(fixed.DateOnly(rec.InspectionDate)) {
		return errs.Validationf("date", "reading at %s is dated after the inspection (%s)", r.Location, rec.InspectionDate.Format(time.DateOnly))
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.frozen {
		return ErrFrozen
	}
	rec.readings = append(rec.readings, r)
	return nil
}

func (rec *Record) Freeze() {
	rec.mu.Lock()
	rec.frozen = true
	rec.mu.Unlock()
}

func (rec *Record) Frozen() bool {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.frozen
}

func (rec *Record) Readings() []Reading {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	out := make([]Reading, len(rec.readings))
	copy(out, rec.readings)
	return out
}

func (rec *Record) Locations() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rec.Readings() {
		if !seen[r.Location] {
			seen[r.Location] = true
			out = append(out, r.Location)
		}
	}
	sort.Strings(out)
	return out
}

// MinThickness is the thinnest latest-dated reading across all locations.
func (rec *Record) MinThickness() (decimal.Decimal, error) {
	latest, err := rec.latest()
	if err != nil {
		return decimal.Zero, err
	}
	min := latest[0].Measured
	for _, r := range latest[1:] {
		min = fixed.Min(min, r.Measured)
	}
	return min, nil
}

// AverageThickness is the mean of the latest-dated reading at each location.
func (rec *Record) AverageThickness() (decimal.Decimal, error) {
	latest, err := rec.latest()
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, r := range latest {
		sum = sum.Add(r.Measured)
	}
	return fixed.MustDiv(sum, decimal.NewFromInt(int64(len(latest)))), nil
}

// latest returns, per location, the most recent reading (the thinnest if several share
// that date).
func (rec *Record) latest() ([]Reading, error) {
	readings := rec.Readings()
	if len(readings) == 0 {
		return nil, errs.Resolution("readings", fmt.Sprintf("inspection of %s has no thickness readings", rec.EquipmentID))
	}
	byLoc := map[string]Reading{}
	for _, r := range readings {
		cur, ok := byLoc[r.Location]
		if !ok {
			byLoc[r.Location] = r
			continue
		}
		on, curOn := fixed.DateOnly(r.Date), fixed.DateOnly(cur.Date)
		if on.After(curOn) || (on.Equal(curOn) && r.Measured.LessThan(cur.Measured)) {
			byLoc[r.Location] = r
		}
	}
	out := make([]Reading, 0, len(byLoc))
	for _, loc := range rec.Locations() {
		out = append(out, byLoc[loc])
	}
	return out, nil
}

// Series collects every observation of location, including previous measurements carried
// on the readings, oldest first. Several values on the same date keep the thinnest.
func (rec *Record) Series(location string) corrosion.Series {
	s := corrosion.Series{Location: location, InstallDate: rec.InstallDate}
	byDate := map[time.Time]decimal.Decimal{}
	put := func(date time.Time, t decimal.Decimal) {
		k := fixed.DateOnly(date)
		if cur, ok := byDate[k]; !ok || t.LessThan(cur) {
			byDate[k] = t
		}
	}
	for _, r := range rec.Readings() {
		if r.Location != location {
			continue
		}
		s.Nominal = fixed.Max(s.Nominal, r.Nominal)
		put(r.Date, r.Measured)
		if r.Previous.Valid && r.PreviousDate != nil {
			put(*r.PreviousDate, r.Previous.Decimal)
		}
	}
	for date, t := range byDate {
		s.Observations = append(s.Observations, corrosion.Observation{Thickness: t, Date: date})
	}
	sort.Slice(s.Observations, func(i, j int) bool { return s.Observations[i].Date.Before(s.Observations[j].Date) })
	return s
}

// NominalThickness is the largest nominal thickness stated on any reading.
func (rec *Record) NominalThickness() decimal.Decimal {
	n := decimal.Zero
	for _, r := range rec.Readings() {
		n = fixed.Max(n, r.Nominal)
	}
	return n
}
