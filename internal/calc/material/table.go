package material

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
)

type Category string

const (
	CarbonSteel Category = "CARBON_STEEL"
	LowAlloy    Category = "LOW_ALLOY"
	Stainless   Category = "STAINLESS"
	Unknown     Category = "UNKNOWN"
)

// Point is one temperature row of a grade.
type Point struct {
	TemperatureF decimal.Decimal `json:"temperature_f"`
	Allowable    decimal.Decimal `json:"allowable_stress"`
	Tensile      decimal.Decimal `json:"tensile_strength"`
	Yield        decimal.Decimal `json:"yield_strength"`
	SafetyFactor decimal.Decimal `json:"safety_factor"`
}

type Grade struct {
	Spec     string   `json:"spec"`
	Category Category `json:"category"`
	Points   []Point  `json:"points"`
}

// Table is an immutable, versioned set of grades. Build it with NewTable; replace a
// whole table through Resolver.Swap rather than editing one.
type Table struct {
	version string
	grades  map[string]Grade
}

// NewTable validates and copies grades. Unsorted temperatures, non-positive values or
// allowable stress that rises with temperature are table defects and fail loudly.
func NewTable(version string, grades []Grade) (*Table, error) {
	if strings.TrimSpace(version) == "" {
		return nil, errs.Invariant("material table", "version tag is required")
	}
	t := &Table{version: version, grades: make(map[string]Grade, len(grades))}
	for _, g := range grades {
		key := Normalize(g.Spec)
		if key == "" {
			return nil, errs.Invariant("material table", "grade with empty specification")
		}
		if _, dup := t.grades[key]; dup {
			return nil, errs.Invariant("material table", fmt.Sprintf("duplicate grade %s", g.Spec))
		}
		if len(g.Points) == 0 {
			return nil, errs.Invariant("material table", fmt.Sprintf("grade %s has no temperature points", g.Spec))
		}
		points := append([]Point(nil), g.Points...)
		for i, p := range points {
			if !p.Allowable.IsPositive() || !p.Tensile.IsPositive() || !p.Yield.IsPositive() || !p.SafetyFactor.IsPositive() {
				return nil, errs.Invariant("material table", fmt.Sprintf("grade %s at %s F has a non-positive property", g.Spec, p.TemperatureF))
			}
			if i == 0 {
				continue
			}
			prev := points[i-1]
			if !p.TemperatureF.GreaterThan(prev.TemperatureF) {
				return nil, errs.Invariant("material table", fmt.Sprintf("grade %s temperatures not strictly increasing at %s F", g.Spec, p.TemperatureF))
			}
			if p.Allowable.GreaterThan(prev.Allowable) {
				return nil, errs.Invariant("material table", fmt.Sprintf("grade %s allowable stress rises between %s F and %s F", g.Spec, prev.TemperatureF, p.TemperatureF))
			}
		}
		g.Points = points
		t.grades[key] = g
	}
	return t, nil
}

func (t *Table) Version() string { return t.version }

// Lookup finds a grade by any spelling Normalize accepts.
func (t *Table) Lookup(spec string) (Grade, bool) {
	g, ok := t.grades[Normalize(spec)]
	if !ok {
		return Grade{}, false
	}
	g.Points = append([]Point(nil), g.Points...)
	return g, true
}

// Grades lists the table's specifications in sorted order.
func (t *Table) Grades() []string {
	out := make([]string, 0, len(t.grades))
	for _, g := range t.grades {
		out = append(out, g.Spec)
	}
	sort.Strings(out)
	return out
}

// Normalize turns "sa 516 gr. 70", "SA516-70" and "SA-516-70" into "SA-516-70".
func Normalize(spec string) string {
	var tokens []string
	var cur []rune
	kind := 0 // 1 letter, 2 digit
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range strings.ToUpper(spec) {
		switch {
		case unicode.IsLetter(r):
			if kind == 2 {
				flush()
			}
			kind = 1
			cur = append(cur, r)
		case unicode.IsDigit(r):
			if kind == 1 {
				flush()
			}
			kind = 2
			cur = append(cur, r)
		default:
			flush()
			kind = 0
		}
	}
	flush()

	kept := tokens[:0]
	for _, tok := range tokens {
		switch tok {
		case "GR", "GRADE", "TYPE", "CL", "CLASS":
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, "-")
}
