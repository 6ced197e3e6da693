package profile

import (
	"net/http"

	"Wallcheck/internal/auth"
	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/material"
	"Wallcheck/internal/calc/rbi"
	"Wallcheck/internal/render"
)

// ProfileHandler tells a signed-in user who they are and which engineering settings
// their assessments will run under.
type ProfileHandler struct {
	Policy    api579.Policy
	Intervals rbi.Config
	Materials *material.Resolver
}

type Profile struct {
	auth.Identity
	MaterialTable string        `json:"material_table"`
	Grades        []string      `json:"grades"`
	Policy        api579.Policy `json:"policy"`
	Intervals     rbi.Config    `json:"intervals"`
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		render.JSON(w, http.StatusUnauthorized, render.ErrorBody{Error: "unauthorized", Message: "Unauthorized"})
		return
	}
	t := h.Materials.Table()
	render.JSON(w, http.StatusOK, Profile{
		Identity:      id,
		MaterialTable: t.Version(),
		Grades:        t.Grades(),
		Policy:        h.Policy,
		Intervals:     h.Intervals,
	})
}
