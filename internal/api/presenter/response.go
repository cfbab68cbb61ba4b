package presenter

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gitdm/gitdm/internal/api/middleware"
)

// ErrorResponse follows the {"detail": "..."} shape of the gitdm API.
type ErrorResponse struct {
	Detail        string `json:"detail"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, msg string, status int) {
	ErrorCode(w, r, msg, "", status)
}

func ErrorCode(w http.ResponseWriter, r *http.Request, msg, code string, status int) {
	JSON(w, r, ErrorResponse{
		Detail:        msg,
		Code:          code,
		CorrelationID: middleware.CorrelationCtx(r.Context()),
	}, status)
}
