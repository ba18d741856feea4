package handlers

import (
	"net/http"

	"truth-dare-backend/internal/middleware"
	"truth-dare-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SessionHandler handles game session HTTP requests
type SessionHandler struct {
	coordinator *services.TurnCoordinator
	dispatcher  Dispatcher
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(coordinator *services.TurnCoordinator, dispatcher Dispatcher) *SessionHandler {
	return &SessionHandler{
		coordinator: coordinator,
		dispatcher:  dispatcher,
	}
}

// GetSession handles GET /api/v1/sessions/{session_id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "session_id")

	session, err := h.coordinator.SessionStatus(sessionID, userID)
	if err != nil {
		respondGameError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session": session})
}

// EndSession handles POST /api/v1/sessions/{session_id}/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "session_id")

	notes, err := h.coordinator.EndSession(sessionID, userID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("session_id", sessionID).
			Msg("Failed to end session")
		respondGameError(w, err)
		return
	}
	h.dispatcher.Dispatch(notes)

	if len(notes) > 0 {
		log.Info().
			Str("user_id", userID).
			Str("session_id", sessionID).
			Msg("Session ended")
	}

	w.WriteHeader(http.StatusNoContent)
}
