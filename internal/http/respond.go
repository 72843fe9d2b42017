package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/locoplatform/api/internal/apperr"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError maps a service error to an HTTP response. Validation
// failures carry the offending field; everything else gets a generic message
// so responses never reveal which check failed or whether a record exists.
func (r *Router) respondServiceError(w http.ResponseWriter, req *http.Request, err error) {
	if ve, ok := apperr.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": ve.Message,
			"field": ve.Field,
		})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrAuthenticationFailed):
		r.recordAuthFailure("credentials")
		writeError(w, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, apperr.ErrInvalidToken):
		r.recordAuthFailure("token")
		writeError(w, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, apperr.ErrAuthorizationFailed):
		writeError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
