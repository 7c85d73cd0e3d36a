package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"teachme/internal/models"
	"teachme/internal/service"
	"teachme/internal/validation"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// respondWithStatus writes a JSON error. err, when set, is logged with
// logMsg (or userMsg) and never shown to the client.
func respondWithStatus(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		event := log.Warn()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Err(err).Int("status", status).Msg(logMsg)
	}

	writeJSON(w, status, errorResponse{Error: userMsg})
}

// respondWithError maps a service error onto its HTTP status
func respondWithError(w http.ResponseWriter, err error) {
	var verr validation.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithStatus(w, http.StatusUnauthorized, "Invalid email or password", "", nil)
	case errors.Is(err, service.ErrSessionExpired):
		respondWithStatus(w, http.StatusUnauthorized, "Session expired", "", nil)
	case errors.Is(err, service.ErrInvalidResetToken):
		respondWithStatus(w, http.StatusBadRequest, "This reset link is invalid or has expired", "", nil)
	case errors.Is(err, service.ErrForbidden):
		respondWithStatus(w, http.StatusForbidden, "Forbidden", "", nil)
	case errors.Is(err, service.ErrLessonLocked):
		respondWithStatus(w, http.StatusConflict, "Finish the previous lesson first", "", nil)
	case errors.Is(err, service.ErrEmailTaken):
		respondWithStatus(w, http.StatusConflict, "An account with this email already exists", "", nil)
	case errors.Is(err, models.ErrAmbiguousMatch):
		respondWithStatus(w, http.StatusConflict, "This join code cannot be used right now, ask a grown-up for help",
			"Ambiguous match", err)
	case errors.Is(err, models.ErrNotFound):
		respondWithStatus(w, http.StatusNotFound, "Not found", "", nil)
	case errors.Is(err, models.ErrRemoteUnavailable):
		w.Header().Set("Retry-After", "5")
		respondWithStatus(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please try again",
			"Store unavailable", err)
	default:
		respondWithStatus(w, http.StatusInternalServerError, ErrInternalServerError, "Unhandled error", err)
	}
}
