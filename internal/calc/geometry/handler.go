package geometry

import (
	"net/http"

	"Wallcheck/internal/render"
)

type Result struct {
	Resolution Resolution `json:"resolution"`
	Warnings   []Warning  `json:"warnings"`
}

type Handler struct {
	Resolver *Resolver
}

func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	var input Dimensions
	if err := render.Decode(r, &input); err != nil {
		render.Error(w, r, err)
		return
	}
	res, err := h.Resolver.Resolve(input)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, Result{Resolution: res, Warnings: h.Resolver.Validate(input, res.Radius)})
}
