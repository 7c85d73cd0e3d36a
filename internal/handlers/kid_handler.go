package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"teachme/internal/models"
	"teachme/internal/security"
	"teachme/internal/service"
	"teachme/internal/validation"
)

// KidHandler handles requests made by signed-in children
type KidHandler struct {
	childService    *service.ChildService
	learningService *service.LearningService
	csrf            *security.CSRFGenerator
}

// NewKidHandler creates a new kid handler
func NewKidHandler(childService *service.ChildService, learningService *service.LearningService, csrf *security.CSRFGenerator) *KidHandler {
	return &KidHandler{
		childService:    childService,
		learningService: learningService,
		csrf:            csrf,
	}
}

type kidSessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	CSRFToken string        `json:"csrfToken"`
	Child     *models.Child `json:"child"`
}

// Login signs a child in with their join code
func (h *KidHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithStatus(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}

	session, child, err := h.childService.KidLogin(r.Context(), req.Code)
	kidLogins.WithLabelValues(kidLoginResult(err)).Inc()
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondWithStatus(w, http.StatusNotFound, "That join code doesn't match anyone, check it and try again", "", nil)
			return
		}
		respondWithError(w, err)
		return
	}

	csrfToken, err := h.csrf.GenerateToken(session.ID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	log.Info().Str("child_id", child.ID).Msg("Kid signed in")
	http.SetCookie(w, security.CreateSessionCookie(r, security.KidSessionCookieName, session.ID, session.ExpiresAt))
	writeJSON(w, http.StatusOK, kidSessionResponse{
		Token:     session.ID,
		ExpiresAt: session.ExpiresAt,
		CSRFToken: csrfToken,
		Child:     child,
	})
}

func kidLoginResult(err error) string {
	var verr validation.ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrAmbiguousMatch):
		return "ambiguous"
	default:
		return "error"
	}
}

// Logout ends the kid session
func (h *KidHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.childService.KidLogout(r.Context(), sessionIDFromContext(r.Context(), KidSessionContextKey)); err != nil {
		respondWithError(w, err)
		return
	}
	http.SetCookie(w, security.CreateDeleteCookie(r, security.KidSessionCookieName))
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard returns the child's progress summary
func (h *KidHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.childService.ChildDashboard(ChildFromContext(r.Context()))
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// Modules returns the child's modules for a subject with lesson state
func (h *KidHandler) Modules(w http.ResponseWriter, r *http.Request) {
	overview, err := h.learningService.ModulesFor(r.Context(), ChildFromContext(r.Context()), chi.URLParam(r, "subject"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// RecordProgress stores progress on a lesson
func (h *KidHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percent *int `json:"percent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithStatus(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}
	if req.Percent == nil {
		respondWithError(w, validation.ValidationError{Field: "percent", Message: "percent is required"})
		return
	}

	result, err := h.learningService.RecordLessonProgress(r.Context(), ChildFromContext(r.Context()), chi.URLParam(r, "id"), *req.Percent)
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
