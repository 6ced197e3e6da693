package api579

import (
	"net/http"

	"Wallcheck/internal/render"
)

type Handler struct {
	Calculator *Calculator
}

func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := render.Decode(r, &input); err != nil {
		render.Error(w, r, err)
		return
	}
	res, err := h.Calculator.Calculate(input)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, res)
}
