package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	authcore "github.com/vidyalay/authcore"
)

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidationError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "VALIDATION_FAILED", Message: ve.Error(), Fields: ve.Fields()},
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "VALIDATION_FAILED", Message: err.Error()},
	})
}

// writeEngineError maps engine sentinels onto the wire contract. Unknown
// errors are logged and surface as 500 without detail.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, authcore.ErrValidation):
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "missing required fields"},
		})
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrUnauthorized),
		errors.Is(err, authcore.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
	case errors.Is(err, authcore.ErrTokenInvalid),
		errors.Is(err, authcore.ErrRefreshReuse),
		errors.Is(err, authcore.ErrForbidden):
		writeJSON(w, http.StatusForbidden, response{
			Error: &errorResponse{Code: "FORBIDDEN", Message: "access denied"},
		})
	case errors.Is(err, authcore.ErrAccountExists):
		writeJSON(w, http.StatusConflict, response{
			Error: &errorResponse{Code: "ACCOUNT_EXISTS", Message: "identifier already registered"},
		})
	case errors.Is(err, authcore.ErrLoginRateLimited),
		errors.Is(err, authcore.ErrRefreshRateLimited):
		writeJSON(w, http.StatusTooManyRequests, response{
			Error: &errorResponse{Code: "RATE_LIMITED", Message: "too many attempts, try again later"},
		})
	default:
		if logger != nil {
			logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, response{
			Error: &errorResponse{Code: "INTERNAL", Message: "internal server error"},
		})
	}
}
