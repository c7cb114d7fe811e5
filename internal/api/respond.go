package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"gwi.com/streak-chat/internal/core"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor maps a service error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	var upstream *core.UpstreamError
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "Already exists"
	case errors.Is(err, core.ErrInsufficientPoints):
		return http.StatusPaymentRequired, "Insufficient points"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "Failed to generate response"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: msg, Details: err.Error()})
}
