package handlers

import (
	"encoding/json"
	"net/http"

	"truth-dare-backend/internal/middleware"
	"truth-dare-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// QueueHandler handles matching queue HTTP requests
type QueueHandler struct {
	coordinator *services.TurnCoordinator
	dispatcher  Dispatcher
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(coordinator *services.TurnCoordinator, dispatcher Dispatcher) *QueueHandler {
	return &QueueHandler{
		coordinator: coordinator,
		dispatcher:  dispatcher,
	}
}

// JoinQueueRequest represents the request body for joining the queue
type JoinQueueRequest struct {
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// JoinQueueResponse reports whether the user was queued or matched
type JoinQueueResponse struct {
	Status     string `json:"status"`
	QueueSize  int    `json:"queueSize,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	OpponentID string `json:"opponentId,omitempty"`
	IsYourTurn *bool  `json:"isYourTurn,omitempty"`
}

// JoinQueue handles POST /api/v1/queue/join
func (h *QueueHandler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req JoinQueueRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome, notes, err := h.coordinator.Enqueue(userID, "", req.Preferences)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to join queue")
		respondGameError(w, err)
		return
	}
	h.dispatcher.Dispatch(notes)

	if outcome.Result == services.Enqueued {
		respondJSON(w, http.StatusOK, JoinQueueResponse{
			Status:    "queued",
			QueueSize: h.coordinator.QueueSize(),
		})
		return
	}

	yourTurn := outcome.IsSeekerFirstTurn
	respondJSON(w, http.StatusOK, JoinQueueResponse{
		Status:     "matched",
		SessionID:  outcome.Session.ID,
		OpponentID: outcome.Opponent.UserID,
		IsYourTurn: &yourTurn,
	})
}

// LeaveQueue handles POST /api/v1/queue/leave
func (h *QueueHandler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	removed := h.coordinator.LeaveQueue(userID)
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Left matching queue",
		"removed": removed,
	})
}
