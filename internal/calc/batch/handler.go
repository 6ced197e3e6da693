package batch

import (
	"net/http"

	"Wallcheck/internal/auth"
	"Wallcheck/internal/errs"
	"Wallcheck/internal/render"
)

const maxItems = 500

type Handler struct {
	Service Assessor
	Workers int
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := render.Decode(r, &in); err != nil {
		render.Error(w, r, err)
		return
	}
	if len(in.Items) > maxItems {
		render.Error(w, r, errs.Validationf("items", "at most %d items per batch", maxItems))
		return
	}
	res, err := Run(r.Context(), h.Service, in, auth.Login(r.Context()), h.Workers)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Failed > 0 {
		status = http.StatusMultiStatus
	}
	render.JSON(w, status, res)
}
