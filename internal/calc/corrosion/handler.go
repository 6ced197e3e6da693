package corrosion

import (
	"net/http"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/render"
)

type Input struct {
	Series []Series `json:"series"`
}

type Handler struct {
	Engine *Engine
}

// Calc computes every posted location and the inspection-level summary.
func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := render.Decode(r, &input); err != nil {
		render.Error(w, r, err)
		return
	}
	if len(input.Series) == 0 {
		render.Error(w, r, errs.Validation("series", "at least one location is required"))
		return
	}
	results := make([]Result, 0, len(input.Series))
	for _, s := range input.Series {
		res, err := h.Engine.Compute(s)
		if err != nil {
			render.Error(w, r, err)
			return
		}
		results = append(results, res)
	}
	sum, err := h.Engine.Summarize(results)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, sum)
}
