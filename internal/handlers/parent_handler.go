package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"teachme/internal/models"
	"teachme/internal/service"
)

// streamKeepAlive is how often an idle children stream sends a comment
const streamKeepAlive = 25 * time.Second

// ParentHandler handles a parent's management of their children
type ParentHandler struct {
	childService *service.ChildService
}

// NewParentHandler creates a new parent handler
func NewParentHandler(childService *service.ChildService) *ParentHandler {
	return &ParentHandler{childService: childService}
}

// ListChildren returns the parent's children
func (h *ParentHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.childService.ListChildren(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

// CreateChild adds a child profile
func (h *ParentHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req service.NewChild
	if err := decodeJSON(r, &req); err != nil {
		respondWithStatus(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}

	child, err := h.childService.CreateChild(r.Context(), UserFromContext(r.Context()), req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

// GetChild returns one child
func (h *ParentHandler) GetChild(w http.ResponseWriter, r *http.Request) {
	child, err := h.childService.GetChild(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// UpdateChild applies a partial update
func (h *ParentHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	var upd models.ChildUpdate
	if err := decodeJSON(r, &upd); err != nil {
		respondWithStatus(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}

	child, err := h.childService.UpdateChild(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"), upd)
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// ToggleChild enables or disables a child's sign-in
func (h *ParentHandler) ToggleChild(w http.ResponseWriter, r *http.Request) {
	child, err := h.childService.ToggleChildActive(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// RegenerateJoinCode issues a new join code
func (h *ParentHandler) RegenerateJoinCode(w http.ResponseWriter, r *http.Request) {
	child, err := h.childService.RegenerateJoinCode(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// DeleteChild removes a child profile
func (h *ParentHandler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	if err := h.childService.DeleteChild(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type childrenEvent struct {
	children []models.Child
	err      error
}

// StreamChildren sends the parent's full set of children as a Server-Sent
// Event now and after every change until the client goes away
func (h *ParentHandler) StreamChildren(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	// The callback runs on the subscription goroutine; a single slot that
	// always holds the newest snapshot keeps it from blocking on a slow
	// client.
	events := make(chan childrenEvent, 1)
	sub, err := h.childService.Subscribe(ctx, UserFromContext(ctx), func(children []models.Child, err error) {
		ev := childrenEvent{children: children, err: err}
		for {
			select {
			case events <- ev:
				return
			default:
				select {
				case <-events:
				default:
				}
			}
		}
	})
	if err != nil {
		respondWithError(w, err)
		return
	}
	defer sub.Unsubscribe()

	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Error().Err(err).Msg("Children stream cannot flush")
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev := <-events:
			if err := writeChildrenEvent(w, ev); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeChildrenEvent(w http.ResponseWriter, ev childrenEvent) error {
	name := "children"
	var payload any = ev.children
	if ev.err != nil {
		log.Warn().Err(ev.err).Msg("Children stream load failed")
		name = "error"
		payload = errorResponse{Error: "Could not load children, retrying on next change"}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
