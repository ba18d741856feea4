package services

import (
	"encoding/json"

	"truth-dare-backend/internal/models"
)

// MatchResult tells whether a match request was queued or paired
type MatchResult int

const (
	Enqueued MatchResult = iota
	Paired
)

// MatchOutcome is the result of Matchmaker.RequestMatch
type MatchOutcome struct {
	Result MatchResult
	// Entry is set when the seeker was queued
	Entry models.WaitingEntry
	// Session, Opponent and IsSeekerFirstTurn are set when paired
	Session           *models.GameSession
	Opponent          models.WaitingEntry
	IsSeekerFirstTurn bool
}

// Matchmaker pairs seekers with waiting users in arrival-order only.
// Preferences are stored on the waiting entry but never used for pairing.
// It is not safe for concurrent use; TurnCoordinator serialises access.
type Matchmaker struct {
	pool     *WaitingPool
	sessions *SessionStore
}

// NewMatchmaker creates a matchmaker over pool and sessions
func NewMatchmaker(pool *WaitingPool, sessions *SessionStore) *Matchmaker {
	return &Matchmaker{
		pool:     pool,
		sessions: sessions,
	}
}

// RequestMatch pairs userID with a waiting user if there is one, otherwise
// queues it. The seeker becomes participant A and takes the first turn.
func (m *Matchmaker) RequestMatch(userID, channelRef string, preferences json.RawMessage) (MatchOutcome, error) {
	if m.sessions.ByUser(userID) != nil {
		return MatchOutcome{}, ErrAlreadyInSession
	}

	// Drop a stale entry so the seeker can never be paired with itself.
	m.pool.Remove(userID)

	opponent, ok := m.pool.DequeueAny()
	if !ok {
		entry := m.pool.Enqueue(userID, channelRef, preferences)
		return MatchOutcome{Result: Enqueued, Entry: entry}, nil
	}

	session := m.sessions.Create(userID, opponent.UserID)
	return MatchOutcome{
		Result:            Paired,
		Session:           session,
		Opponent:          opponent,
		IsSeekerFirstTurn: session.CurrentTurnHolder == userID,
	}, nil
}

// Leave removes userID from the pool. It is a no-op if the user is not waiting.
func (m *Matchmaker) Leave(userID string) bool {
	return m.pool.Remove(userID)
}
