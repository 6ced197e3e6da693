package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"Wallcheck/internal/calc/assessment"
	"Wallcheck/internal/render"
	"Wallcheck/internal/repo"
)

// Source reads stored assessments.
type Source interface {
	Get(ctx context.Context, id string) (assessment.Assessment, error)
	History(ctx context.Context, equipmentID string) ([]repo.StoredCalculation, error)
}

type Handler struct {
	Source Source
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.Source.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		render.JSON(w, http.StatusNotFound, render.ErrorBody{Error: "not_found", Message: "calculation " + id + " not found"})
		return
	}
	if err != nil {
		render.Error(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := WritePDF(&buf, a); err != nil {
		render.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Inputs.EquipmentID+"-"+a.ID+".pdf"))
	w.Write(buf.Bytes())
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	equipment := mux.Vars(r)["id"]
	list, err := h.Source.History(r.Context(), equipment)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	if len(list) == 0 {
		render.JSON(w, http.StatusNotFound, render.ErrorBody{Error: "not_found", Message: "no calculations for " + equipment})
		return
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, list); err != nil {
		render.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", equipment+"-history.xlsx"))
	w.Write(buf.Bytes())
}
