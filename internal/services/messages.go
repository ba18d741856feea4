package services

import (
	"encoding/json"

	"truth-dare-backend/internal/models"
)

// Inbound message types
const (
	MsgEnqueue         = "enqueue"
	MsgLeaveQueue      = "leave-queue"
	MsgChooseChallenge = "choose-challenge"
	MsgSubmitAnswer    = "submit-answer"
	MsgEndSession      = "end-session"
	MsgVideoSignal     = "video-signal"
)

// Outbound message types
const (
	MsgQueued           = "queued"
	MsgMatched          = "matched"
	MsgPromptDelivered  = "prompt-delivered"
	MsgAnswerRecorded   = "answer-recorded"
	MsgSessionEnded     = "session-ended"
	MsgConnectionStatus = "connection-status"
	MsgError            = "error"
)

// Session-ended reasons
const (
	ReasonEndedByParticipant      = "ended_by_participant"
	ReasonParticipantDisconnected = "participant_disconnected"
	ReasonIdleTimeout             = "idle_timeout"
)

// WSMessage represents a WebSocket message in either direction
type WSMessage struct {
	Type          string               `json:"type"`
	SessionID     string               `json:"sessionId,omitempty"`
	UserID        string               `json:"userId,omitempty"`
	Message       string               `json:"message,omitempty"`
	OpponentID    string               `json:"opponentId,omitempty"`
	IsYourTurn    *bool                `json:"isYourTurn,omitempty"`
	Prompt        string               `json:"prompt,omitempty"`
	ChallengeType models.ChallengeType `json:"challengeType,omitempty"`
	Choice        models.ChallengeType `json:"choice,omitempty"`
	Category      string               `json:"category,omitempty"`
	AnswererID    string               `json:"answererId,omitempty"`
	Text          string               `json:"text,omitempty"`
	AnswerText    string               `json:"answerText,omitempty"`
	AuthorID      string               `json:"authorId,omitempty"`
	Round         int                  `json:"round,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	Code          string               `json:"code,omitempty"`
	From          string               `json:"from,omitempty"`
	Signal        json.RawMessage      `json:"signal,omitempty"`
	Preferences   json.RawMessage      `json:"preferences,omitempty"`
	Queued        *bool                `json:"queued,omitempty"`
}

// Notification is an outbound message addressed to one user
type Notification struct {
	UserID  string
	Message WSMessage
}

// ErrorMessage builds the error event sent back for a rejected request
func ErrorMessage(err error) WSMessage {
	return WSMessage{
		Type:    MsgError,
		Code:    ErrorCode(err),
		Message: err.Error(),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func matchedNotification(sessionID, userID, opponentID string, yourTurn bool) Notification {
	return Notification{
		UserID: userID,
		Message: WSMessage{
			Type:       MsgMatched,
			SessionID:  sessionID,
			OpponentID: opponentID,
			IsYourTurn: boolPtr(yourTurn),
		},
	}
}

// toBoth addresses msg to both participants of a session
func toBoth(session *models.GameSession, msg WSMessage) []Notification {
	return []Notification{
		{UserID: session.ParticipantA, Message: msg},
		{UserID: session.ParticipantB, Message: msg},
	}
}
