package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleError maps the error's kind onto an HTTP status. Unclassified errors
// are logged and reported without detail.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch domainerr.KindOf(err) {
	case domainerr.KindValidation:
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case domainerr.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domainerr.KindConflict:
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}
