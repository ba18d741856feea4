package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"truth-dare-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait   = 10 * time.Second
	pushTimeout = 10 * time.Second
)

// ErrUserOffline is returned when a user has no open connection
var ErrUserOffline = errors.New("user is not connected")

// Pusher delivers a notification to a user who is not connected
type Pusher interface {
	Push(ctx context.Context, userID string, msg WSMessage) error
}

type wsClient struct {
	conn       *websocket.Conn
	channelRef string
	writeMu    sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
	pusher      Pusher
	metrics     *metrics.Metrics
}

// NewWSHub creates a new WebSocket hub. pusher may be nil.
func NewWSHub(pusher Pusher, m *metrics.Metrics) *WSHub {
	return &WSHub{
		connections: make(map[string]*wsClient),
		pusher:      pusher,
		metrics:     m,
	}
}

// NewChannelRef returns a fresh channel reference for a connection
func (h *WSHub) NewChannelRef() string {
	return uuid.NewString()
}

// Register registers a new WebSocket connection for a user under channelRef.
// An existing connection is closed. Callers must bind channelRef with
// TurnCoordinator.Connect before calling Register.
func (h *WSHub) Register(userID, channelRef string, conn *websocket.Conn) {
	client := &wsClient{
		conn:       conn,
		channelRef: channelRef,
	}

	h.mu.Lock()
	existing, exists := h.connections[userID]
	h.connections[userID] = client
	h.mu.Unlock()

	if exists {
		existing.conn.Close()
		log.Info().Str("user_id", userID).Msg("Replaced previous WebSocket connection")
	}

	log.Info().
		Str("user_id", userID).
		Str("channel_ref", channelRef).
		Msg("WebSocket connection registered")
}

// Unregister removes the connection identified by channelRef. A connection
// that has already been replaced is left alone.
func (h *WSHub) Unregister(userID, channelRef string) {
	h.mu.Lock()
	client, exists := h.connections[userID]
	if !exists || client.channelRef != channelRef {
		h.mu.Unlock()
		return
	}
	delete(h.connections, userID)
	h.mu.Unlock()

	client.conn.Close()
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrUserOffline, userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID, client.channelRef)
		return fmt.Errorf("failed to send message: %w", err)
	}

	h.metrics.WSMessage("out", message.Type)
	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// ChannelRef returns the channel reference of the user's connection, or ""
func (h *WSHub) ChannelRef(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.connections[userID]; ok {
		return client.channelRef
	}
	return ""
}

// Dispatch delivers notifications. Offline recipients get a push when a
// pusher is configured and the message type warrants one.
func (h *WSHub) Dispatch(notes []Notification) {
	for _, n := range notes {
		err := h.SendToUser(n.UserID, n.Message)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrUserOffline) && h.pusher != nil && pushWorthy(n.Message.Type) {
			go h.push(n)
			continue
		}
		log.Warn().
			Err(err).
			Str("user_id", n.UserID).
			Str("type", n.Message.Type).
			Msg("Failed to deliver notification")
	}
}

func (h *WSHub) push(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := h.pusher.Push(ctx, n.UserID, n.Message); err != nil {
		log.Error().
			Err(err).
			Str("user_id", n.UserID).
			Str("type", n.Message.Type).
			Msg("Failed to push notification")
	}
}

// CloseAll closes every connection, used on shutdown
func (h *WSHub) CloseAll() {
	h.mu.Lock()
	clients := h.connections
	h.connections = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, client := range clients {
		client.writeMu.Lock()
		client.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		client.writeMu.Unlock()
		client.conn.Close()
	}
}

func pushWorthy(msgType string) bool {
	return msgType == MsgMatched || msgType == MsgPromptDelivered
}
