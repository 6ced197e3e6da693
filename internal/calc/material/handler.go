package material

import (
	"net/http"

	"github.com/shopspring/decimal"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/render"
)

type Input struct {
	Material     string              `json:"material"`
	TemperatureF decimal.NullDecimal `json:"temperature_f"`
}

type Result struct {
	AllowableStress decimal.Decimal `json:"allowable_stress"`
	Metadata        Metadata        `json:"metadata"`
}

type Handler struct {
	Resolver *Resolver
}

func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := render.Decode(r, &input); err != nil {
		render.Error(w, r, err)
		return
	}
	if !input.TemperatureF.Valid {
		render.Error(w, r, errs.Validation("temperature_f", "temperature is required"))
		return
	}
	stress, meta, err := h.Resolver.AllowableStress(input.Material, input.TemperatureF.Decimal)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, Result{AllowableStress: stress, Metadata: meta})
}

func (h *Handler) Grades(w http.ResponseWriter, r *http.Request) {
	t := h.Resolver.Table()
	render.JSON(w, http.StatusOK, map[string]any{
		"version": t.Version(),
		"grades":  t.Grades(),
	})
}
