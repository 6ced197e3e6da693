// Package batch runs independent assessments concurrently.
package batch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
)

const DefaultWorkers = 4

// Assessor is the part of assessment.Service a batch needs.
type Assessor interface {
	Assess(ctx context.Context, req assessment.Request, triggeredBy string) (assessment.Assessment, error)
	AssessWithRBI(ctx context.Context, req assessment.Request, triggeredBy string) (assessment.Assessment, error)
}

type Input struct {
	Items   []assessment.Request `json:"items"`
	WithRBI bool                 `json:"with_rbi,omitempty"`
}

// Item is the outcome of one request; exactly one of Assessment and Error is set.
type Item struct {
	Index         int                    `json:"index"`
	EquipmentID   string                 `json:"equipment_id"`
	CalculationID string                 `json:"calculation_id,omitempty"`
	Assessment    *assessment.Assessment `json:"assessment,omitempty"`
	Error         *ItemError             `json:"error,omitempty"`
}

type ItemError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type Result struct {
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Items     []Item `json:"items"`
}

// Run assesses every request with at most workers in flight. A failed item does not stop
// the others; only cancellation of ctx does.
func Run(ctx context.Context, svc Assessor, in Input, triggeredBy string, workers int) (Result, error) {
	if len(in.Items) == 0 {
		return Result{}, errs.Validation("items", "no items")
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "batch"))

	items := make([]Item, len(in.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range in.Items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var (
				res assessment.Assessment
				err error
			)
			if in.WithRBI {
				res, err = svc.AssessWithRBI(gctx, req, triggeredBy)
			} else {
				res, err = svc.Assess(gctx, req, triggeredBy)
			}
			item := Item{Index: i, EquipmentID: req.EquipmentID}
			if err != nil {
				item.Error = &ItemError{Kind: errs.KindOf(err).String(), Message: err.Error(), Retryable: errs.Retryable(err)}
			} else {
				item.CalculationID = res.ID
				item.Assessment = &res
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, errs.Wrap(err, "batch cancelled")
	}

	out := Result{Items: items}
	for _, it := range items {
		if it.Error != nil {
			out.Failed++
		} else {
			out.Succeeded++
		}
	}
	logging.Info(ctx, "batch finished",
		slog.Int("succeeded", out.Succeeded),
		slog.Int("failed", out.Failed),
	)
	return out, nil
}
