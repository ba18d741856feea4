package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"truth-dare-backend/internal/metrics"
	"truth-dare-backend/internal/middleware"
	"truth-dare-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Large enough for SDP offers relayed as video signals.
const maxMessageSize = 64 * 1024

var (
	errInvalidMessage = errors.New("invalid message format")
	errUnknownType    = errors.New("unknown message type")
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *services.WSHub
	auth        services.AuthProvider
	coordinator *services.TurnCoordinator
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. With no allowed
// origins every origin is accepted.
func NewWebSocketHandler(
	hub *services.WSHub,
	auth services.AuthProvider,
	coordinator *services.TurnCoordinator,
	m *metrics.Metrics,
	allowedOrigins []string,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		auth:        auth,
		coordinator: coordinator,
		metrics:     m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.auth)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	// Bind the new channel before the hub closes a previous connection.
	channelRef := h.hub.NewChannelRef()
	status := h.coordinator.Connect(userID, channelRef)
	h.hub.Register(userID, channelRef, conn)
	defer func() {
		h.hub.Unregister(userID, channelRef)
		h.hub.Dispatch(h.coordinator.Disconnect(channelRef))
	}()

	if err := h.hub.SendToUser(userID, status); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to send connection-status message")
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendError(userID, "invalid_message", errInvalidMessage)
			continue
		}
		h.metrics.WSMessage("in", msg.Type)

		notes, err := h.handleMessage(userID, channelRef, msg)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
			h.sendError(userID, "", err)
			continue
		}
		h.hub.Dispatch(notes)
	}
}

// handleMessage processes incoming WebSocket messages. The acting user is
// always the authenticated connection owner.
func (h *WebSocketHandler) handleMessage(userID, channelRef string, msg services.WSMessage) ([]services.Notification, error) {
	switch msg.Type {
	case services.MsgEnqueue:
		_, notes, err := h.coordinator.Enqueue(userID, channelRef, msg.Preferences)
		return notes, err
	case services.MsgLeaveQueue:
		h.coordinator.LeaveQueue(userID)
		return nil, nil
	case services.MsgChooseChallenge:
		return h.coordinator.ChooseChallenge(msg.SessionID, userID, msg.Choice)
	case services.MsgSubmitAnswer:
		return h.coordinator.SubmitAnswer(msg.SessionID, userID, msg.Text)
	case services.MsgEndSession:
		return h.coordinator.EndSession(msg.SessionID, userID)
	case services.MsgVideoSignal:
		return h.coordinator.RelaySignal(msg.SessionID, userID, msg.Signal)
	default:
		return nil, errUnknownType
	}
}

// sendError sends an error event to the user
func (h *WebSocketHandler) sendError(userID, code string, err error) {
	msg := services.ErrorMessage(err)
	if code != "" {
		msg.Code = code
	} else if errors.Is(err, errUnknownType) {
		msg.Code = "unknown_message_type"
	}
	if sendErr := h.hub.SendToUser(userID, msg); sendErr != nil {
		log.Debug().Err(sendErr).Str("user_id", userID).Msg("Failed to send error message")
	}
}
