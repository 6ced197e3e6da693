package material

import (
	"sync"

	"github.com/shopspring/decimal"
)

// BuiltinVersion tags results resolved from the compiled-in table.
const BuiltinVersion = "ASME-II-D-2021-excerpt"

// Temperature rows shared by every built-in grade, in degrees F.
var builtinTemps = []int64{100, 200, 300, 400, 500, 600, 650, 700, 750, 800}

// Allowable stresses follow ASME Section II Part D Table 1A (psi). Design margin on
// tensile strength is 3.5 (ASME VIII-1 UG-23).
var builtinGrades = []struct {
	spec      string
	category  Category
	allowable []int64
	tensile   []int64
	yield     []int64
}{
	{
		spec: "SA-516-70", category: CarbonSteel,
		allowable: []int64{20000, 20000, 19800, 19500, 19200, 18600, 18100, 16600, 14800, 12000},
		tensile:   []int64{70000, 70000, 70000, 70000, 70000, 68900, 67800, 66300, 64200, 61500},
		yield:     []int64{38000, 34800, 33600, 32500, 31000, 29100, 28300, 27600, 26900, 26200},
	},
	{
		spec: "SA-516-60", category: CarbonSteel,
		allowable: []int64{17100, 17100, 17100, 16900, 16600, 16200, 15800, 14500, 13000, 10800},
		tensile:   []int64{60000, 60000, 60000, 60000, 60000, 59100, 58100, 56800, 55000, 52700},
		yield:     []int64{32000, 29300, 28300, 27400, 26100, 24500, 23800, 23200, 22600, 22000},
	},
	{
		spec: "SA-515-70", category: CarbonSteel,
		allowable: []int64{20000, 20000, 19800, 19500, 19200, 18600, 18100, 16600, 14800, 12000},
		tensile:   []int64{70000, 70000, 70000, 70000, 70000, 68900, 67800, 66300, 64200, 61500},
		yield:     []int64{38000, 34800, 33600, 32500, 31000, 29100, 28300, 27600, 26900, 26200},
	},
	{
		spec: "SA-285-C", category: CarbonSteel,
		allowable: []int64{15700, 15700, 15700, 15700, 15700, 15300, 14800, 14300, 13000, 10800},
		tensile:   []int64{55000, 55000, 55000, 55000, 55000, 54200, 53300, 52100, 50400, 48300},
		yield:     []int64{30000, 27400, 26500, 25600, 24500, 22900, 22300, 21700, 21200, 20600},
	},
	{
		spec: "SA-106-B", category: CarbonSteel,
		allowable: []int64{17100, 17100, 17100, 17100, 17100, 17100, 16900, 15500, 13000, 10800},
		tensile:   []int64{60000, 60000, 60000, 60000, 60000, 59100, 58100, 56800, 55000, 52700},
		yield:     []int64{35000, 31900, 31000, 29900, 28500, 26700, 26000, 25300, 24700, 24000},
	},
	{
		spec: "SA-53-B", category: CarbonSteel,
		allowable: []int64{17100, 17100, 17100, 17100, 17100, 17100, 16900, 15500, 13000, 10800},
		tensile:   []int64{60000, 60000, 60000, 60000, 60000, 59100, 58100, 56800, 55000, 52700},
		yield:     []int64{35000, 31900, 31000, 29900, 28500, 26700, 26000, 25300, 24700, 24000},
	},
	{
		spec: "SA-387-11-2", category: LowAlloy,
		allowable: []int64{21400, 21400, 20900, 20500, 20100, 19700, 19400, 19200, 18800, 18300},
		tensile:   []int64{75000, 75000, 73200, 71800, 70400, 69000, 68000, 67200, 65800, 64000},
		yield:     []int64{45000, 41300, 39800, 38700, 37700, 36800, 36300, 35900, 35300, 34600},
	},
	{
		spec: "SA-240-304", category: Stainless,
		allowable: []int64{20000, 20000, 20000, 18700, 17500, 16600, 16200, 15800, 15500, 15200},
		tensile:   []int64{75000, 71000, 66200, 64000, 63400, 63400, 63400, 63200, 62800, 62000},
		yield:     []int64{30000, 25000, 22400, 20700, 19400, 18400, 18000, 17600, 17200, 16900},
	},
	{
		spec: "SA-240-316", category: Stainless,
		allowable: []int64{20000, 20000, 20000, 19300, 18000, 17000, 16600, 16300, 16100, 15900},
		tensile:   []int64{75000, 75000, 73300, 71800, 71800, 71800, 71800, 71800, 71600, 71200},
		yield:     []int64{30000, 25900, 23400, 21400, 20000, 18900, 18500, 18200, 17900, 17700},
	},
	{
		spec: "SA-312-TP304", category: Stainless,
		allowable: []int64{20000, 20000, 20000, 18700, 17500, 16600, 16200, 15800, 15500, 15200},
		tensile:   []int64{75000, 71000, 66200, 64000, 63400, 63400, 63400, 63200, 62800, 62000},
		yield:     []int64{30000, 25000, 22400, 20700, 19400, 18400, 18000, 17600, 17200, 16900},
	},
}

var (
	builtinOnce  sync.Once
	builtinTable *Table
)

// Builtin returns the compiled-in table. A defect in the constants panics on first use.
func Builtin() *Table {
	builtinOnce.Do(func() {
		margin := decimal.RequireFromString("3.5")
		grades := make([]Grade, 0, len(builtinGrades))
		for _, g := range builtinGrades {
			points := make([]Point, len(builtinTemps))
			for i, temp := range builtinTemps {
				points[i] = Point{
					TemperatureF: decimal.NewFromInt(temp),
					Allowable:    decimal.NewFromInt(g.allowable[i]),
					Tensile:      decimal.NewFromInt(g.tensile[i]),
					Yield:        decimal.NewFromInt(g.yield[i]),
					SafetyFactor: margin,
				}
			}
			grades = append(grades, Grade{Spec: g.spec, Category: g.category, Points: points})
		}
		t, err := NewTable(BuiltinVersion, grades)
		if err != nil {
			panic(err)
		}
		builtinTable = t
	})
	return builtinTable
}
