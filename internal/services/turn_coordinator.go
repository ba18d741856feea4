package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"truth-dare-backend/internal/metrics"
	"truth-dare-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultDifficultyCeiling is the highest question difficulty handed out
	DefaultDifficultyCeiling = 2

	queuedMessage = "Looking for a match..."

	minJanitorInterval = 10 * time.Millisecond
)

// SessionEndedHook runs after a session ended, outside the coordinator lock
type SessionEndedHook func(session *models.GameSession, reason string)

// TurnCoordinatorConfig holds the coordinator dependencies
type TurnCoordinatorConfig struct {
	Pool              *WaitingPool
	Sessions          *SessionStore
	Questions         QuestionSource
	DifficultyCeiling int
	Metrics           *metrics.Metrics
}

// TurnCoordinator turns inbound game events into pool and session
// mutations plus the notifications they produce. One mutex guards the pool,
// the session store and the channel bindings, so pairing and session
// creation happen as a single step.
type TurnCoordinator struct {
	mu         sync.Mutex
	pool       *WaitingPool
	sessions   *SessionStore
	matchmaker *Matchmaker
	questions  QuestionSource
	ceiling    int
	metrics    *metrics.Metrics

	// channelRef -> userID, and each user's current channel
	channels    map[string]string
	userChannel map[string]string

	hooks []SessionEndedHook
	now   func() time.Time
}

// NewTurnCoordinator creates a coordinator
func NewTurnCoordinator(cfg TurnCoordinatorConfig) *TurnCoordinator {
	if cfg.Pool == nil {
		cfg.Pool = NewWaitingPool(PairLIFO)
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionStore()
	}
	if cfg.DifficultyCeiling <= 0 {
		cfg.DifficultyCeiling = DefaultDifficultyCeiling
	}
	return &TurnCoordinator{
		pool:        cfg.Pool,
		sessions:    cfg.Sessions,
		matchmaker:  NewMatchmaker(cfg.Pool, cfg.Sessions),
		questions:   cfg.Questions,
		ceiling:     cfg.DifficultyCeiling,
		metrics:     cfg.Metrics,
		channels:    make(map[string]string),
		userChannel: make(map[string]string),
		now:         time.Now,
	}
}

// OnSessionEnded registers a hook called for every ended session
func (c *TurnCoordinator) OnSessionEnded(hook SessionEndedHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Connect binds channelRef to userID and returns the user's current status.
// A newer channel for the same user replaces the older one.
func (c *TurnCoordinator) Connect(userID, channelRef string) WSMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[channelRef] = userID
	c.userChannel[userID] = channelRef

	status := WSMessage{Type: MsgConnectionStatus, UserID: userID}
	if entry, ok := c.pool.Entry(userID); ok {
		c.pool.Rebind(userID, channelRef)
		status.Queued = boolPtr(true)
		status.Preferences = entry.Preferences
	} else {
		status.Queued = boolPtr(false)
	}
	if session := c.sessions.ByUser(userID); session != nil {
		status.SessionID = session.ID
		status.OpponentID = session.Opponent(userID)
		status.IsYourTurn = boolPtr(session.CurrentTurnHolder == userID)
	}
	return status
}

// Enqueue handles a match request. With an empty channelRef the user's
// currently bound channel is used.
func (c *TurnCoordinator) Enqueue(userID, channelRef string, preferences json.RawMessage) (MatchOutcome, []Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if channelRef == "" {
		channelRef = c.userChannel[userID]
	}

	outcome, err := c.matchmaker.RequestMatch(userID, channelRef, preferences)
	if err != nil {
		c.metrics.Rejected(ErrorCode(err))
		return MatchOutcome{}, nil, err
	}

	if outcome.Result == Enqueued {
		c.updateGauges()
		log.Debug().Str("user_id", userID).Int("queue_size", c.pool.Size()).Msg("User queued")
		return outcome, []Notification{{
			UserID:  userID,
			Message: WSMessage{Type: MsgQueued, Message: queuedMessage},
		}}, nil
	}

	session := outcome.Session
	c.metrics.MatchCreated()
	c.updateGauges()
	log.Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Str("opponent_id", outcome.Opponent.UserID).
		Msg("Match found")

	outcome.Session = session.Clone()
	return outcome, []Notification{
		matchedNotification(session.ID, userID, outcome.Opponent.UserID, outcome.IsSeekerFirstTurn),
		matchedNotification(session.ID, outcome.Opponent.UserID, userID, !outcome.IsSeekerFirstTurn),
	}, nil
}

// LeaveQueue removes userID from the waiting pool. Leaving twice is a no-op.
func (c *TurnCoordinator) LeaveQueue(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.matchmaker.Leave(userID)
	if removed {
		c.updateGauges()
		log.Debug().Str("user_id", userID).Msg("User left queue")
	}
	return removed
}

// ChooseChallenge lets the turn holder pick truth or dare and delivers a prompt
func (c *TurnCoordinator) ChooseChallenge(sessionID, userID string, choice models.ChallengeType) ([]Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.turnHolderSession(sessionID, userID, models.PhaseChoosing)
	if err != nil {
		return nil, c.reject(err)
	}
	if !choice.Valid() {
		return nil, c.reject(ErrInvalidChallenge)
	}
	if c.questions == nil {
		return nil, errors.New("question source not configured")
	}

	question, err := c.questions.Pick(choice, c.ceiling)
	if err != nil {
		return nil, fmt.Errorf("failed to pick question: %w", err)
	}

	session.PendingChallengeType = choice
	session.PendingPrompt = question.Content
	session.PendingCategory = question.Category
	session.Phase = models.PhasePrompted
	session.LastActivityAt = c.now().UTC()

	log.Debug().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Str("choice", string(choice)).
		Msg("Challenge chosen")

	return toBoth(session, WSMessage{
		Type:          MsgPromptDelivered,
		SessionID:     session.ID,
		Prompt:        question.Content,
		ChallengeType: choice,
		Category:      question.Category,
		AnswererID:    userID,
	}), nil
}

// SubmitAnswer records the turn holder's answer, then hands the turn over
func (c *TurnCoordinator) SubmitAnswer(sessionID, userID, text string) ([]Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.turnHolderSession(sessionID, userID, models.PhasePrompted)
	if err != nil {
		return nil, c.reject(err)
	}
	answer := strings.TrimSpace(text)
	if answer == "" {
		return nil, c.reject(ErrEmptyAnswer)
	}

	now := c.now().UTC()
	completed := session.Round
	session.Transcript = append(session.Transcript, models.TranscriptEntry{
		Prompt:        session.PendingPrompt,
		ChallengeType: session.PendingChallengeType,
		Response:      answer,
		AuthorID:      userID,
		Round:         completed,
		AnsweredAt:    now,
	})
	session.CurrentTurnHolder = session.Opponent(userID)
	session.Round++
	session.PendingChallengeType = models.ChallengeUnset
	session.PendingPrompt = ""
	session.PendingCategory = ""
	session.Phase = models.PhaseChoosing
	session.LastActivityAt = now

	log.Debug().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int("round", completed).
		Msg("Answer recorded")

	return toBoth(session, WSMessage{
		Type:       MsgAnswerRecorded,
		SessionID:  session.ID,
		AnswerText: answer,
		AuthorID:   userID,
		Round:      completed,
	}), nil
}

// EndSession ends a session on behalf of one of its participants and
// notifies both. Ending a session that no longer exists is a no-op.
func (c *TurnCoordinator) EndSession(sessionID, userID string) ([]Notification, error) {
	c.mu.Lock()
	session := c.sessions.Get(sessionID)
	if session == nil {
		c.mu.Unlock()
		return nil, nil
	}
	if !session.HasParticipant(userID) {
		c.mu.Unlock()
		return nil, c.reject(ErrNotParticipant)
	}
	ended, notes := c.endLocked(sessionID, ReasonEndedByParticipant, "")
	c.mu.Unlock()

	c.afterEnd(ended, ReasonEndedByParticipant)
	return notes, nil
}

// Disconnect handles a closed channel. The user leaves the pool, and an
// active session is ended with a notification to the remaining participant.
// Channels replaced by a newer connection only drop their binding.
func (c *TurnCoordinator) Disconnect(channelRef string) []Notification {
	c.mu.Lock()
	userID, ok := c.channels[channelRef]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.channels, channelRef)

	current := c.userChannel[userID] == channelRef
	if current {
		delete(c.userChannel, userID)
	}
	if entry, ok := c.pool.Entry(userID); ok && (current || entry.ChannelRef == channelRef) {
		c.pool.Remove(userID)
		c.updateGauges()
	}

	var (
		ended *models.GameSession
		notes []Notification
	)
	if current {
		if session := c.sessions.ByUser(userID); session != nil {
			ended, notes = c.endLocked(session.ID, ReasonParticipantDisconnected, userID)
		}
	}
	c.mu.Unlock()

	if ended != nil {
		log.Info().
			Str("session_id", ended.ID).
			Str("user_id", userID).
			Msg("Session ended by disconnect")
	}
	c.afterEnd(ended, ReasonParticipantDisconnected)
	return notes
}

// RelaySignal forwards an opaque video signal to the sender's opponent
func (c *TurnCoordinator) RelaySignal(sessionID, userID string, signal json.RawMessage) ([]Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.sessions.Get(sessionID)
	if session == nil {
		return nil, c.reject(ErrSessionNotFound)
	}
	if !session.HasParticipant(userID) {
		return nil, c.reject(ErrNotParticipant)
	}
	session.LastActivityAt = c.now().UTC()

	return []Notification{{
		UserID: session.Opponent(userID),
		Message: WSMessage{
			Type:      MsgVideoSignal,
			SessionID: session.ID,
			From:      userID,
			Signal:    signal,
		},
	}}, nil
}

// SessionStatus returns a snapshot of a session for one of its participants
func (c *TurnCoordinator) SessionStatus(sessionID, userID string) (*models.GameSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.sessions.Get(sessionID)
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return session.Clone(), nil
}

// ActiveSessionID returns the id of the session userID plays in, or ""
func (c *TurnCoordinator) ActiveSessionID(userID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session := c.sessions.ByUser(userID); session != nil {
		return session.ID
	}
	return ""
}

// QueueSize returns the number of waiting users
func (c *TurnCoordinator) QueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Size()
}

// ActiveSessions returns the number of running sessions
func (c *TurnCoordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Count()
}

// ExpireIdle ends every session without activity for at least timeout
func (c *TurnCoordinator) ExpireIdle(timeout time.Duration) []Notification {
	c.mu.Lock()
	cutoff := c.now().UTC().Add(-timeout)
	var (
		ended []*models.GameSession
		notes []Notification
	)
	for _, id := range c.sessions.IdleSince(cutoff) {
		session, n := c.endLocked(id, ReasonIdleTimeout, "")
		ended = append(ended, session)
		notes = append(notes, n...)
	}
	c.mu.Unlock()

	for _, session := range ended {
		log.Info().Str("session_id", session.ID).Msg("Idle session expired")
		c.afterEnd(session, ReasonIdleTimeout)
	}
	return notes
}

// StartJanitor periodically expires idle sessions and hands the resulting
// notifications to dispatch. A non-positive interval defaults to timeout/4,
// and no interval is shorter than 10ms. It stops when ctx is done.
func (c *TurnCoordinator) StartJanitor(ctx context.Context, timeout, interval time.Duration, dispatch func([]Notification)) {
	if timeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = timeout / 4
	}
	interval = max(interval, minJanitorInterval)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if notes := c.ExpireIdle(timeout); len(notes) > 0 && dispatch != nil {
					dispatch(notes)
				}
			}
		}
	}()
}

// turnHolderSession returns the live session if userID may act in phase
func (c *TurnCoordinator) turnHolderSession(sessionID, userID string, phase models.Phase) (*models.GameSession, error) {
	session := c.sessions.Get(sessionID)
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.CurrentTurnHolder != userID {
		return nil, ErrNotYourTurn
	}
	if session.Phase != phase {
		return nil, ErrInvalidPhase
	}
	return session, nil
}

// endLocked removes the session and builds session-ended notifications for
// every participant except skip. Callers must hold c.mu.
func (c *TurnCoordinator) endLocked(sessionID, reason, skip string) (*models.GameSession, []Notification) {
	session := c.sessions.End(sessionID)
	if session == nil {
		return nil, nil
	}
	c.metrics.SessionEnded(reason)
	c.updateGauges()

	msg := WSMessage{Type: MsgSessionEnded, SessionID: session.ID, Reason: reason}
	var notes []Notification
	for _, n := range toBoth(session, msg) {
		if n.UserID != skip {
			notes = append(notes, n)
		}
	}
	return session.Clone(), notes
}

func (c *TurnCoordinator) afterEnd(session *models.GameSession, reason string) {
	if session == nil {
		return
	}
	c.mu.Lock()
	hooks := append([]SessionEndedHook(nil), c.hooks...)
	c.mu.Unlock()

	for _, hook := range hooks {
		hook(session, reason)
	}
}

func (c *TurnCoordinator) reject(err error) error {
	c.metrics.Rejected(ErrorCode(err))
	return err
}

func (c *TurnCoordinator) updateGauges() {
	c.metrics.SetQueueSize(c.pool.Size())
	c.metrics.SetActiveSessions(c.sessions.Count())
}
