package assessment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/calc/geometry"
	"Wallcheck/internal/calc/inspection"
	"Wallcheck/internal/calc/rbi"
	"Wallcheck/internal/errs"
)

// Request is one inspection event submitted for assessment: design data, the thickness
// readings taken, and optionally the risk factors needed for an inspection interval.
type Request struct {
	EquipmentID    string            `json:"equipment_id"`
	EquipmentType  rbi.EquipmentType `json:"equipment_type,omitempty"`
	InspectionID   string            `json:"inspection_id,omitempty"`
	InspectionDate time.Time         `json:"inspection_date"`
	Inspector      string            `json:"inspector,omitempty"`
	Supersedes     string            `json:"supersedes,omitempty"`
	InstallDate    *time.Time        `json:"install_date,omitempty"`

	DesignPressure           decimal.Decimal      `json:"design_pressure"`
	DesignTemperature        decimal.NullDecimal  `json:"design_temperature"`
	DesignThickness          decimal.Decimal      `json:"design_thickness"`
	Material                 string               `json:"material"`
	CorrosionAllowance       decimal.NullDecimal  `json:"corrosion_allowance"`
	InternalRadius           decimal.NullDecimal  `json:"internal_radius"`
	Geometry                 *geometry.Dimensions `json:"geometry,omitempty"`
	AllowableStress          decimal.NullDecimal  `json:"allowable_stress"`
	JointEfficiency          decimal.Decimal      `json:"joint_efficiency"`
	FutureCorrosionAllowance decimal.NullDecimal  `json:"future_corrosion_allowance"`

	Readings    []inspection.Reading `json:"readings"`
	RiskFactors *rbi.RiskFactors     `json:"risk_factors,omitempty"`
}

func (r Request) validate(withRBI bool) error {
	var list []*errs.Error
	if strings.TrimSpace(r.EquipmentID) == "" {
		list = append(list, errs.Validation("equipment_id", "equipment id is required"))
	}
	if r.InspectionDate.IsZero() {
		list = append(list, errs.Validation("inspection_date", "inspection date is required"))
	}
	if r.Supersedes != "" && r.Supersedes == r.InspectionID {
		list = append(list, errs.Validation("supersedes", "an inspection cannot supersede itself"))
	}
	if len(r.Readings) == 0 {
		list = append(list, errs.Validation("readings", "at least one thickness reading is required"))
	}
	if withRBI {
		if !r.EquipmentType.Valid() {
			list = append(list, errs.Validationf("equipment_type", "unknown equipment type %q (VESSEL, TANK or PIPING)", r.EquipmentType))
		}
		if r.RiskFactors == nil {
			list = append(list, errs.Validation("risk_factors", "risk factors are required for an inspection interval"))
		}
	}
	return errs.Join(list...)
}

// record builds the inspection record; reading errors are reported with their index.
func (r Request) record() (*inspection.Record, error) {
	rec, err := inspection.NewRecord(r.EquipmentID, r.InspectionDate, r.Inspector)
	if err != nil {
		return nil, err
	}
	rec.Supersedes = r.Supersedes
	rec.InstallDate = r.InstallDate

	var list []*errs.Error
	for i, reading := range r.Readings {
		err := rec.Add(reading)
		if err == nil {
			continue
		}
		fields := errs.Fields(err)
		if len(fields) == 0 {
			return nil, err
		}
		for _, f := range fields {
			prefixed := *f
			prefixed.Field = fmt.Sprintf("readings[%d].%s", i, f.Field)
			list = append(list, &prefixed)
		}
	}
	if err := errs.Join(list...); err != nil {
		return nil, err
	}
	return rec, nil
}
