package models

import (
	"encoding/json"
	"time"
)

// User represents a registered player
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Token     string    `json:"token,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChallengeType is the kind of challenge the turn holder picks each round
type ChallengeType string

const (
	ChallengeUnset ChallengeType = ""
	ChallengeTruth ChallengeType = "truth"
	ChallengeDare  ChallengeType = "dare"
)

// Valid reports whether c is truth or dare
func (c ChallengeType) Valid() bool {
	return c == ChallengeTruth || c == ChallengeDare
}

// Question is a single prompt in the question bank
type Question struct {
	ID         string        `json:"id,omitempty" yaml:"-"`
	Type       ChallengeType `json:"type" yaml:"type"`
	Content    string        `json:"content" yaml:"content"`
	Category   string        `json:"category" yaml:"category"`
	Difficulty int           `json:"difficulty" yaml:"difficulty"`
}

// Phase is the sub-state of the current round
type Phase string

const (
	PhaseChoosing Phase = "choosing"
	PhasePrompted Phase = "prompted"
	PhaseEnded    Phase = "ended"
)

// WaitingEntry is a user currently seeking a match
type WaitingEntry struct {
	UserID      string          `json:"userId"`
	JoinedAt    time.Time       `json:"joinedAt"`
	ChannelRef  string          `json:"-"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// TranscriptEntry is one completed round
type TranscriptEntry struct {
	Prompt        string        `json:"prompt"`
	ChallengeType ChallengeType `json:"challengeType"`
	Response      string        `json:"response"`
	AuthorID      string        `json:"authorId"`
	Round         int           `json:"round"`
	AnsweredAt    time.Time     `json:"answeredAt"`
}

// GameSession is one paired truth-or-dare game
type GameSession struct {
	ID                   string            `json:"sessionId"`
	ParticipantA         string            `json:"participantA"`
	ParticipantB         string            `json:"participantB"`
	CurrentTurnHolder    string            `json:"currentTurnHolder"`
	Round                int               `json:"round"`
	Phase                Phase             `json:"phase"`
	PendingChallengeType ChallengeType     `json:"pendingChallengeType,omitempty"`
	PendingPrompt        string            `json:"pendingPrompt,omitempty"`
	PendingCategory      string            `json:"pendingCategory,omitempty"`
	Transcript           []TranscriptEntry `json:"transcript"`
	CreatedAt            time.Time         `json:"createdAt"`
	LastActivityAt       time.Time         `json:"lastActivityAt"`
	EndedAt              *time.Time        `json:"endedAt,omitempty"`
}

// HasParticipant reports whether userID plays in the session
func (s *GameSession) HasParticipant(userID string) bool {
	return userID != "" && (s.ParticipantA == userID || s.ParticipantB == userID)
}

// Opponent returns the other participant, or "" if userID is not a participant
func (s *GameSession) Opponent(userID string) string {
	switch userID {
	case s.ParticipantA:
		return s.ParticipantB
	case s.ParticipantB:
		return s.ParticipantA
	}
	return ""
}

// Clone returns a deep copy safe to hand outside the coordinator lock
func (s *GameSession) Clone() *GameSession {
	c := *s
	c.Transcript = make([]TranscriptEntry, len(s.Transcript))
	copy(c.Transcript, s.Transcript)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
