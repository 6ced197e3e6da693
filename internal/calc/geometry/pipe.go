package geometry

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// PipeSize is one ASME B36.10M row: outside diameter and nominal wall for a schedule.
type PipeSize struct {
	NPS             string          `json:"nps"`
	Schedule        string          `json:"schedule"`
	OutsideDiameter decimal.Decimal `json:"outside_diameter"`
	WallThickness   decimal.Decimal `json:"wall_thickness"`
}

type pipeRow struct {
	od    string
	walls map[string]string
}

// ASME B36.10M welded and seamless wrought steel pipe, inches.
var pipeTable = map[string]pipeRow{
	"1/2":   {"0.840", map[string]string{"40": "0.109", "80": "0.147", "160": "0.188", "STD": "0.109", "XS": "0.147"}},
	"3/4":   {"1.050", map[string]string{"40": "0.113", "80": "0.154", "160": "0.219", "STD": "0.113", "XS": "0.154"}},
	"1":     {"1.315", map[string]string{"40": "0.133", "80": "0.179", "160": "0.250", "STD": "0.133", "XS": "0.179"}},
	"1-1/2": {"1.900", map[string]string{"40": "0.145", "80": "0.200", "160": "0.281", "STD": "0.145", "XS": "0.200"}},
	"2":     {"2.375", map[string]string{"10": "0.109", "40": "0.154", "80": "0.218", "160": "0.344", "STD": "0.154", "XS": "0.218"}},
	"3":     {"3.500", map[string]string{"10": "0.120", "40": "0.216", "80": "0.300", "160": "0.438", "STD": "0.216", "XS": "0.300"}},
	"4":     {"4.500", map[string]string{"10": "0.120", "40": "0.237", "80": "0.337", "160": "0.531", "STD": "0.237", "XS": "0.337"}},
	"6":     {"6.625", map[string]string{"10": "0.134", "40": "0.280", "80": "0.432", "160": "0.719", "STD": "0.280", "XS": "0.432"}},
	"8":     {"8.625", map[string]string{"10": "0.148", "40": "0.322", "80": "0.500", "160": "0.906", "STD": "0.322", "XS": "0.500"}},
	"10":    {"10.750", map[string]string{"10": "0.165", "40": "0.365", "80": "0.594", "160": "1.125", "STD": "0.365", "XS": "0.500"}},
	"12":    {"12.750", map[string]string{"10": "0.180", "40": "0.406", "80": "0.688", "160": "1.312", "STD": "0.375", "XS": "0.500"}},
	"14":    {"14.000", map[string]string{"10": "0.250", "40": "0.438", "80": "0.750", "160": "1.406", "STD": "0.375", "XS": "0.500"}},
	"16":    {"16.000", map[string]string{"10": "0.250", "40": "0.500", "80": "0.844", "160": "1.594", "STD": "0.375", "XS": "0.500"}},
	"18":    {"18.000", map[string]string{"10": "0.250", "40": "0.562", "80": "0.938", "160": "1.781", "STD": "0.375", "XS": "0.500"}},
	"20":    {"20.000", map[string]string{"10": "0.250", "40": "0.594", "80": "1.031", "160": "1.969", "STD": "0.375", "XS": "0.500"}},
	"24":    {"24.000", map[string]string{"10": "0.250", "40": "0.688", "80": "1.219", "160": "2.344", "STD": "0.375", "XS": "0.500"}},
}

var npsAliases = map[string]string{
	"0.5": "1/2", ".5": "1/2", "0.75": "3/4", ".75": "3/4",
	"1.5": "1-1/2", "1 1/2": "1-1/2", "11/2": "1-1/2",
	"1.0": "1", "2.0": "2",
}

// LookupPipe returns the standard OD and wall for nps and schedule.
func LookupPipe(nps, schedule string) (PipeSize, bool) {
	n := normalizeNPS(nps)
	s := normalizeSchedule(schedule)
	row, ok := pipeTable[n]
	if !ok {
		return PipeSize{}, false
	}
	wall, ok := row.walls[s]
	if !ok {
		return PipeSize{}, false
	}
	return PipeSize{
		NPS:             n,
		Schedule:        s,
		OutsideDiameter: decimal.RequireFromString(row.od),
		WallThickness:   decimal.RequireFromString(wall),
	}, true
}

// PipeSizes lists the supported nominal sizes.
func PipeSizes() []string {
	out := make([]string, 0, len(pipeTable))
	for k := range pipeTable {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return npsValue(out[i]).LessThan(npsValue(out[j])) })
	return out
}

func normalizeNPS(nps string) string {
	n := strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(nps)), "NPS"))
	n = strings.TrimSuffix(strings.TrimSuffix(n, "\""), "IN")
	n = strings.TrimSpace(n)
	if alias, ok := npsAliases[n]; ok {
		return alias
	}
	return n
}

func normalizeSchedule(schedule string) string {
	s := strings.ToUpper(strings.TrimSpace(schedule))
	s = strings.TrimPrefix(s, "SCHEDULE")
	s = strings.TrimPrefix(s, "SCH")
	s = strings.TrimPrefix(s, "S-")
	s = strings.TrimSpace(strings.TrimPrefix(s, "."))
	return s
}

func npsValue(nps string) decimal.Decimal {
	whole, frac, hasFrac := strings.Cut(nps, "-")
	if !hasFrac && strings.Contains(nps, "/") {
		whole, frac = "0", nps
	}
	v, err := decimal.NewFromString(whole)
	if err != nil {
		return decimal.Zero
	}
	if num, den, ok := strings.Cut(frac, "/"); ok {
		n, err1 := decimal.NewFromString(num)
		dn, err2 := decimal.NewFromString(den)
		if err1 == nil && err2 == nil && !dn.IsZero() {
			v = v.Add(n.DivRound(dn, 4))
		}
	}
	return v
}
