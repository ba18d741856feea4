package services

import (
	"time"

	"truth-dare-backend/internal/models"

	"github.com/google/uuid"
)

// SessionStore owns every active game session.
// It is not safe for concurrent use; TurnCoordinator serialises access.
type SessionStore struct {
	sessions      map[string]*models.GameSession
	sessionByUser map[string]string
	newID         func() string
	now           func() time.Time
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:      make(map[string]*models.GameSession),
		sessionByUser: make(map[string]string),
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// Create starts a session between participantA and participantB.
// participantA holds the first turn.
func (s *SessionStore) Create(participantA, participantB string) *models.GameSession {
	id := s.newID()
	for _, exists := s.sessions[id]; exists; _, exists = s.sessions[id] {
		id = s.newID()
	}

	now := s.now().UTC()
	session := &models.GameSession{
		ID:                id,
		ParticipantA:      participantA,
		ParticipantB:      participantB,
		CurrentTurnHolder: participantA,
		Round:             1,
		Phase:             models.PhaseChoosing,
		Transcript:        []models.TranscriptEntry{},
		CreatedAt:         now,
		LastActivityAt:    now,
	}

	s.sessions[id] = session
	s.sessionByUser[participantA] = id
	s.sessionByUser[participantB] = id
	return session
}

// Get returns the live session, or nil
func (s *SessionStore) Get(sessionID string) *models.GameSession {
	return s.sessions[sessionID]
}

// ByUser returns the active session userID plays in, or nil
func (s *SessionStore) ByUser(userID string) *models.GameSession {
	id, ok := s.sessionByUser[userID]
	if !ok {
		return nil
	}
	return s.sessions[id]
}

// End marks the session ended and removes it. It returns the removed
// session, or nil if it was already gone.
func (s *SessionStore) End(sessionID string) *models.GameSession {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	now := s.now().UTC()
	session.Phase = models.PhaseEnded
	session.PendingChallengeType = models.ChallengeUnset
	session.PendingPrompt = ""
	session.PendingCategory = ""
	session.EndedAt = &now

	delete(s.sessions, sessionID)
	for _, userID := range []string{session.ParticipantA, session.ParticipantB} {
		if s.sessionByUser[userID] == sessionID {
			delete(s.sessionByUser, userID)
		}
	}
	return session
}

// Count returns the number of active sessions
func (s *SessionStore) Count() int {
	return len(s.sessions)
}

// IdleSince returns the ids of sessions with no activity since cutoff
func (s *SessionStore) IdleSince(cutoff time.Time) []string {
	var ids []string
	for id, session := range s.sessions {
		if session.LastActivityAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
