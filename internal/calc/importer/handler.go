package importer

import (
	"net/http"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/render"
)

const MaxUploadSize = 10 << 20 // 10MB

type Handler struct{}

// Readings converts an uploaded survey workbook (form field "file") into readings.
// Row errors answer 422 with the rows that did parse.
func (h *Handler) Readings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		render.Error(w, r, errs.Validation("file", "multipart field \"file\" with an .xlsx workbook is required"))
		return
	}
	defer file.Close()

	res, err := ReadReadings(file)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	status := http.StatusOK
	if len(res.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	render.JSON(w, status, res)
}
