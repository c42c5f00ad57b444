package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"streetlight_monitor/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encoding response failed")
	}
}

// respondError maps the error code to a status.
func respondError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeValidationError:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	}
	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
