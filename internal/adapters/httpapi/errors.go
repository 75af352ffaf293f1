package httpapi

import (
	"assemblycore/internal/blob"
	"assemblycore/pkg/domain"
	"errors"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// writeServiceError maps the core error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var constraint domain.ConstraintError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.As(err, &constraint):
		writeError(w, http.StatusConflict, err.Error(), string(constraint.Code))
	case errors.Is(err, domain.ErrConstraintViolation):
		writeError(w, http.StatusConflict, err.Error(), "rule_violation")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_input")
	case errors.Is(err, blob.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error(), "unsupported")
	default:
		writeError(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
