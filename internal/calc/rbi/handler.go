package rbi

import (
	"net/http"

	"Wallcheck/internal/render"
)

type Input struct {
	EquipmentID   string        `json:"equipment_id"`
	EquipmentType EquipmentType `json:"equipment_type"`
	Calculation   Summary       `json:"calculation"`
	RiskFactors   RiskFactors   `json:"risk_factors"`
}

type Handler struct {
	Service *Service
}

func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := render.Decode(r, &input); err != nil {
		render.Error(w, r, err)
		return
	}
	res, err := h.Service.CalculateInterval(input.EquipmentID, input.EquipmentType, input.Calculation, input.RiskFactors)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, res)
}
