// Package assessment runs a full fitness-for-service assessment for one inspection event
// and records the result in the audit store.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/corrosion"
	"Wallcheck/internal/calc/rbi"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
	"Wallcheck/internal/logging"
	"Wallcheck/internal/repo"
)

// Sink is the part of the audit store the service writes to and reads back from.
type Sink interface {
	SaveCalculation(ctx context.Context, c repo.StoredCalculation, results ...repo.StoredRBI) (repo.StoredCalculation, error)
	GetCalculation(ctx context.Context, id string) (repo.StoredCalculation, error)
	ListCalculations(ctx context.Context, equipmentID string) ([]repo.StoredCalculation, error)
	ListRBI(ctx context.Context, calculationID string) ([]repo.StoredRBI, error)
}

// Assessment is a stored calculation together with the data it was derived from.
type Assessment struct {
	repo.StoredCalculation
	Corrosion *corrosion.Summary `json:"corrosion,omitempty"`
	RBI       []repo.StoredRBI   `json:"rbi,omitempty"`
}

// UnsavedError is returned when the calculation succeeded but could not be stored. It
// carries everything needed to retry the write without recomputing.
type UnsavedError struct {
	Calculation repo.StoredCalculation
	RBI         []repo.StoredRBI
	Err         error
}

func (e *UnsavedError) Error() string {
	return fmt.Sprintf("calculation %s not recorded: %v", e.Calculation.ID, e.Err)
}

func (e *UnsavedError) Unwrap() error { return e.Err }

type Service struct {
	engine *corrosion.Engine
	calc   *api579.Calculator
	rbi    *rbi.Service
	sink   Sink
}

func NewService(engine *corrosion.Engine, calc *api579.Calculator, intervals *rbi.Service, sink Sink) *Service {
	if engine == nil {
		engine = corrosion.DefaultEngine()
	}
	return &Service{engine: engine, calc: calc, rbi: intervals, sink: sink}
}

// Assess computes and records one assessment.
func (s *Service) Assess(ctx context.Context, req Request, triggeredBy string) (Assessment, error) {
	return s.assess(ctx, req, triggeredBy, false)
}

// AssessWithRBI also derives the inspection interval and stores both in one transaction.
func (s *Service) AssessWithRBI(ctx context.Context, req Request, triggeredBy string) (Assessment, error) {
	return s.assess(ctx, req, triggeredBy, true)
}

func (s *Service) assess(ctx context.Context, req Request, triggeredBy string, withRBI bool) (Assessment, error) {
	if err := req.validate(withRBI); err != nil {
		return Assessment{}, err
	}
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "assessment"),
		slog.String("equipment_id", req.EquipmentID),
	)

	out, err := s.compute(req, triggeredBy, withRBI)
	if err != nil {
		logging.Warn(ctx, "assessment rejected", slog.Any("err", errs.Loggable(err)))
		return Assessment{}, err
	}
	ctx = logging.WithAttrs(ctx,
		slog.String("calculation_id", out.ID),
		slog.String("request_key", out.RequestKey),
	)

	stored, err := s.sink.SaveCalculation(ctx, out.StoredCalculation, out.RBI...)
	if err != nil {
		logging.Error(ctx, "assessment not recorded", slog.Any("err", errs.Loggable(err)))
		return Assessment{}, &UnsavedError{
			Calculation: out.StoredCalculation,
			RBI:         out.RBI,
			Err:         errs.Persistence("save calculation", err),
		}
	}
	out.StoredCalculation = stored
	logging.Info(ctx, "assessment recorded",
		slog.String("verdict", string(stored.Verdict)),
		slog.String("rsf", stored.RSF.String()),
	)
	return out, nil
}

func (s *Service) compute(req Request, triggeredBy string, withRBI bool) (Assessment, error) {
	rec, err := req.record()
	if err != nil {
		return Assessment{}, err
	}

	var (
		results []corrosion.Result
		skipped []string
	)
	for _, loc := range rec.Locations() {
		res, err := s.engine.Compute(rec.Series(loc))
		if errors.Is(err, corrosion.ErrInsufficientData) {
			skipped = append(skipped, loc)
			continue
		}
		if err != nil {
			return Assessment{}, err
		}
		results = append(results, res)
	}
	summary, err := s.engine.Summarize(results)
	if err != nil {
		return Assessment{}, err
	}
	tmm, err := rec.MinThickness()
	if err != nil {
		return Assessment{}, err
	}
	tam, err := rec.AverageThickness()
	if err != nil {
		return Assessment{}, err
	}

	in := api579.Input{
		EquipmentID:              req.EquipmentID,
		InspectionID:             req.InspectionID,
		Inspector:                rec.Inspector,
		Supersedes:               rec.Supersedes,
		DesignPressure:           req.DesignPressure,
		DesignTemperature:        req.DesignTemperature,
		DesignThickness:          req.DesignThickness,
		Material:                 req.Material,
		CorrosionAllowance:       req.CorrosionAllowance,
		MinThickness:             tmm,
		AverageThickness:         tam.Round(4),
		InternalRadius:           req.InternalRadius,
		Geometry:                 req.Geometry,
		AllowableStress:          req.AllowableStress,
		JointEfficiency:          req.JointEfficiency,
		FutureCorrosionAllowance: req.FutureCorrosionAllowance,
		CorrosionRate:            fixed.Null(summary.Governing.GoverningRate),
		RateNegligible:           summary.Governing.Negligible,
		CorrosionConfidence:      fixed.Null(summary.Confidence),
		CalculationDate:          req.InspectionDate,
	}
	calc, err := s.calc.Calculate(in)
	if err != nil {
		return Assessment{}, err
	}
	rec.Freeze()

	for _, r := range summary.Locations {
		calc.Assumptions = append(calc.Assumptions, r.Assumptions...)
	}
	for _, loc := range skipped {
		calc.Assumptions = append(calc.Assumptions, fmt.Sprintf(
			"%s has a single reading and no history; it bounds the minimum thickness but not the corrosion rate", loc))
	}
	calc.Assumptions = append(calc.Assumptions, fmt.Sprintf(
		"governing corrosion rate %s in/yr (%s) from %s", summary.Governing.GoverningRate, summary.Governing.Basis, summary.Governing.Location))

	out := Assessment{
		StoredCalculation: repo.StoredCalculation{Calculation: calc, TriggeredBy: triggeredBy},
		Corrosion:         &summary,
	}
	if withRBI {
		res, err := s.rbi.CalculateInterval(req.EquipmentID, req.EquipmentType, rbi.SummaryOf(calc), *req.RiskFactors)
		if err != nil {
			return Assessment{}, err
		}
		out.RBI = []repo.StoredRBI{{Result: res, TriggeredBy: triggeredBy}}
	}
	return out, nil
}

// Record retries the write of an assessment whose first save failed. The store is
// idempotent on the request key, so replaying a write that did land is harmless.
func (s *Service) Record(ctx context.Context, calc repo.StoredCalculation, results ...repo.StoredRBI) (repo.StoredCalculation, error) {
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "assessment"),
		slog.String("calculation_id", calc.ID),
		slog.String("request_key", calc.RequestKey),
	)
	stored, err := s.sink.SaveCalculation(ctx, calc, results...)
	if err != nil {
		logging.Error(ctx, "retry not recorded", slog.Any("err", errs.Loggable(err)))
		return repo.StoredCalculation{}, &UnsavedError{Calculation: calc, RBI: results, Err: errs.Persistence("save calculation", err)}
	}
	logging.Info(ctx, "assessment recorded on retry")
	return stored, nil
}

// Get loads a stored calculation and the intervals derived from it.
func (s *Service) Get(ctx context.Context, id string) (Assessment, error) {
	stored, err := s.sink.GetCalculation(ctx, id)
	if err != nil {
		return Assessment{}, storeError("get calculation", err)
	}
	intervals, err := s.sink.ListRBI(ctx, id)
	if err != nil {
		return Assessment{}, storeError("list rbi results", err)
	}
	return Assessment{StoredCalculation: stored, RBI: intervals}, nil
}

// History lists every stored calculation of one equipment item, oldest first.
func (s *Service) History(ctx context.Context, equipmentID string) ([]repo.StoredCalculation, error) {
	list, err := s.sink.ListCalculations(ctx, equipmentID)
	if err != nil {
		return nil, storeError("list calculations", err)
	}
	return list, nil
}

func storeError(op string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return errs.Persistence(op, err)
}
