// Package render writes JSON bodies and maps typed calculation errors to HTTP statuses.
package render

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
)

type FieldError struct {
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Citation string `json:"citation,omitempty"`
}

type ErrorBody struct {
	Error     string       `json:"error"`
	Message   string       `json:"message"`
	Retryable bool         `json:"retryable"`
	Fields    []FieldError `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response", slog.Any("err", errs.Loggable(err)))
	}
}

// Status maps an error kind to the HTTP status the API answers with.
func Status(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindResolution, errs.KindComputation:
		return http.StatusUnprocessableEntity
	case errs.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	kind := errs.KindOf(err)
	body := ErrorBody{Error: kind.String(), Message: err.Error(), Retryable: errs.Retryable(err)}
	for _, f := range errs.Fields(err) {
		msg := f.Reason
		if msg == "" {
			msg = f.Error()
		}
		body.Fields = append(body.Fields, FieldError{Field: f.Field, Message: msg, Citation: f.Citation})
	}
	if status >= http.StatusInternalServerError {
		logging.Error(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("err", errs.Loggable(err)))
		if kind == 0 {
			body.Message = "internal error"
		}
	}
	JSON(w, status, body)
}

// Decode reads a JSON body into v; a malformed body is a validation error.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return errs.Validationf("body", "malformed JSON at offset %d", syntax.Offset)
		}
		return errs.Validation("body", "Invalid request payload: "+err.Error())
	}
	return nil
}
