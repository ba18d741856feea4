package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"truth-dare-backend/internal/metrics"
	"truth-dare-backend/internal/models"
)

func newTestCoordinator(t *testing.T) *TurnCoordinator {
	t.Helper()
	questions, err := DefaultQuestions()
	if err != nil {
		t.Fatalf("DefaultQuestions() error = %v", err)
	}
	return NewTurnCoordinator(TurnCoordinatorConfig{
		Pool:      NewWaitingPool(PairLIFO),
		Sessions:  NewSessionStore(),
		Questions: NewQuestionBank(questions),
		Metrics:   metrics.New("test"),
	})
}

// pair queues alice then matches bob, returning the session id
func pair(t *testing.T, c *TurnCoordinator) string {
	t.Helper()
	c.Connect("alice", "ch-alice")
	c.Connect("bob", "ch-bob")
	if _, _, err := c.Enqueue("alice", "", nil); err != nil {
		t.Fatalf("Enqueue(alice) error = %v", err)
	}
	outcome, _, err := c.Enqueue("bob", "", nil)
	if err != nil {
		t.Fatalf("Enqueue(bob) error = %v", err)
	}
	if outcome.Result != Paired {
		t.Fatalf("bob should be paired, got %+v", outcome)
	}
	return outcome.Session.ID
}

func findNote(notes []Notification, userID string) (WSMessage, bool) {
	for _, n := range notes {
		if n.UserID == userID {
			return n.Message, true
		}
	}
	return WSMessage{}, false
}

func snapshot(t *testing.T, c *TurnCoordinator, sessionID, userID string) *models.GameSession {
	t.Helper()
	session, err := c.SessionStatus(sessionID, userID)
	if err != nil {
		t.Fatalf("SessionStatus() error = %v", err)
	}
	return session
}

func TestTurnCoordinatorFullRound(t *testing.T) {
	c := newTestCoordinator(t)
	c.Connect("alice", "ch-alice")
	c.Connect("bob", "ch-bob")

	outcome, notes, err := c.Enqueue("alice", "", nil)
	if err != nil {
		t.Fatalf("Enqueue(alice) error = %v", err)
	}
	if outcome.Result != Enqueued || outcome.Entry.ChannelRef != "ch-alice" {
		t.Fatalf("alice outcome = %+v, want queued on ch-alice", outcome)
	}
	if msg, ok := findNote(notes, "alice"); !ok || msg.Type != MsgQueued {
		t.Fatalf("alice should get a queued message, got %+v", notes)
	}

	outcome, notes, err = c.Enqueue("bob", "", nil)
	if err != nil {
		t.Fatalf("Enqueue(bob) error = %v", err)
	}
	if outcome.Result != Paired || c.QueueSize() != 0 {
		t.Fatalf("bob should pair with alice, queue size %d", c.QueueSize())
	}
	sessionID := outcome.Session.ID

	bobMsg, _ := findNote(notes, "bob")
	aliceMsg, _ := findNote(notes, "alice")
	if bobMsg.Type != MsgMatched || bobMsg.OpponentID != "alice" || bobMsg.IsYourTurn == nil || !*bobMsg.IsYourTurn {
		t.Fatalf("bob matched message = %+v", bobMsg)
	}
	if aliceMsg.Type != MsgMatched || aliceMsg.OpponentID != "bob" || aliceMsg.IsYourTurn == nil || *aliceMsg.IsYourTurn {
		t.Fatalf("alice matched message = %+v", aliceMsg)
	}
	if bobMsg.SessionID != sessionID || aliceMsg.SessionID != sessionID {
		t.Fatalf("matched messages should carry session %s", sessionID)
	}

	notes, err = c.ChooseChallenge(sessionID, "bob", models.ChallengeTruth)
	if err != nil {
		t.Fatalf("ChooseChallenge() error = %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("prompt should go to both participants, got %d notifications", len(notes))
	}
	prompt := notes[0].Message
	if prompt.Type != MsgPromptDelivered || prompt.ChallengeType != models.ChallengeTruth || prompt.AnswererID != "bob" || prompt.Prompt == "" {
		t.Fatalf("prompt message = %+v", prompt)
	}
	session := snapshot(t, c, sessionID, "alice")
	if session.Phase != models.PhasePrompted || session.PendingPrompt != prompt.Prompt {
		t.Fatalf("session after choose = %+v", session)
	}

	questions, _ := DefaultQuestions()
	for _, q := range questions {
		if q.Content == prompt.Prompt && q.Difficulty > DefaultDifficultyCeiling {
			t.Fatalf("prompt %q exceeds the difficulty ceiling", q.Content)
		}
	}

	notes, err = c.SubmitAnswer(sessionID, "bob", "  I once ate a whole cake.  ")
	if err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	recorded, _ := findNote(notes, "alice")
	if recorded.Type != MsgAnswerRecorded || recorded.AnswerText != "I once ate a whole cake." || recorded.AuthorID != "bob" || recorded.Round != 1 {
		t.Fatalf("answer-recorded message = %+v", recorded)
	}

	session = snapshot(t, c, sessionID, "bob")
	if len(session.Transcript) != 1 {
		t.Fatalf("transcript length = %d, want 1", len(session.Transcript))
	}
	entry := session.Transcript[0]
	if entry.AuthorID != "bob" || entry.Prompt != prompt.Prompt || entry.ChallengeType != models.ChallengeTruth || entry.Round != 1 {
		t.Fatalf("transcript entry = %+v", entry)
	}
	if session.Round != 2 || session.CurrentTurnHolder != "alice" || session.Phase != models.PhaseChoosing {
		t.Fatalf("session after answer = round %d holder %q phase %q", session.Round, session.CurrentTurnHolder, session.Phase)
	}
	if session.PendingPrompt != "" || session.PendingChallengeType != models.ChallengeUnset {
		t.Fatalf("pending challenge should be cleared, got %+v", session)
	}
}

func TestTurnCoordinatorRejectsOutOfTurnActions(t *testing.T) {
	c := newTestCoordinator(t)
	sessionID := pair(t, c)

	if _, err := c.ChooseChallenge(sessionID, "alice", models.ChallengeDare); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("ChooseChallenge(alice) error = %v, want %v", err, ErrNotYourTurn)
	}
	if _, err := c.SubmitAnswer(sessionID, "bob", "early"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("SubmitAnswer before prompt error = %v, want %v", err, ErrInvalidPhase)
	}
	if _, err := c.ChooseChallenge(sessionID, "bob", models.ChallengeType("both")); !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("ChooseChallenge(both) error = %v, want %v", err, ErrInvalidChallenge)
	}
	if _, err := c.ChooseChallenge("missing", "bob", models.ChallengeDare); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("ChooseChallenge(missing) error = %v, want %v", err, ErrSessionNotFound)
	}

	session := snapshot(t, c, sessionID, "bob")
	if session.Phase != models.PhaseChoosing || session.CurrentTurnHolder != "bob" || session.Round != 1 {
		t.Fatalf("rejected actions changed the session: %+v", session)
	}

	if _, err := c.ChooseChallenge(sessionID, "bob", models.ChallengeDare); err != nil {
		t.Fatalf("ChooseChallenge(bob) error = %v", err)
	}
	if _, err := c.ChooseChallenge(sessionID, "bob", models.ChallengeTruth); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("second ChooseChallenge error = %v, want %v", err, ErrInvalidPhase)
	}
	if _, err := c.SubmitAnswer(sessionID, "alice", "not mine"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("SubmitAnswer(alice) error = %v, want %v", err, ErrNotYourTurn)
	}
	if _, err := c.SubmitAnswer(sessionID, "bob", "   "); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("SubmitAnswer(blank) error = %v, want %v", err, ErrEmptyAnswer)
	}

	session = snapshot(t, c, sessionID, "bob")
	if session.Phase != models.PhasePrompted || len(session.Transcript) != 0 {
		t.Fatalf("rejected answers changed the session: %+v", session)
	}
}

func TestTurnCoordinatorEnqueueWhileInSession(t *testing.T) {
	c := newTestCoordinator(t)
	pair(t, c)

	if _, _, err := c.Enqueue("alice", "", nil); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("Enqueue(alice) error = %v, want %v", err, ErrAlreadyInSession)
	}
	if c.QueueSize() != 0 {
		t.Fatalf("queue size = %d, want 0", c.QueueSize())
	}
}

func TestTurnCoordinatorEndSession(t *testing.T) {
	c := newTestCoordinator(t)
	sessionID := pair(t, c)

	var hooked []string
	c.OnSessionEnded(func(session *models.GameSession, reason string) {
		hooked = append(hooked, session.ID+":"+reason)
	})

	if _, err := c.EndSession(sessionID, "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("EndSession(mallory) error = %v, want %v", err, ErrNotParticipant)
	}

	notes, err := c.EndSession(sessionID, "alice")
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("both participants should be notified, got %d", len(notes))
	}
	for _, n := range notes {
		if n.Message.Type != MsgSessionEnded || n.Message.Reason != ReasonEndedByParticipant {
			t.Fatalf("unexpected notification %+v", n)
		}
	}

	notes, err = c.EndSession(sessionID, "alice")
	if err != nil || notes != nil {
		t.Fatalf("second EndSession() = %v, %v, want no-op", notes, err)
	}
	if c.ActiveSessions() != 0 || c.ActiveSessionID("bob") != "" {
		t.Fatalf("session should be gone")
	}
	if len(hooked) != 1 || hooked[0] != sessionID+":"+ReasonEndedByParticipant {
		t.Fatalf("hooks = %v, want one call for %s", hooked, sessionID)
	}

	if _, err := c.SessionStatus(sessionID, "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("SessionStatus after end error = %v, want %v", err, ErrSessionNotFound)
	}

	// Both players may queue again.
	if _, _, err := c.Enqueue("alice", "", nil); err != nil {
		t.Fatalf("Enqueue after end error = %v", err)
	}
}

func TestTurnCoordinatorDisconnectWhileWaiting(t *testing.T) {
	c := newTestCoordinator(t)
	c.Connect("alice", "ch-alice")
	if _, _, err := c.Enqueue("alice", "", nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if notes := c.Disconnect("ch-alice"); len(notes) != 0 {
		t.Fatalf("Disconnect() notes = %v, want none", notes)
	}
	if c.QueueSize() != 0 {
		t.Fatalf("queue size = %d, want 0", c.QueueSize())
	}
	if notes := c.Disconnect("ch-alice"); notes != nil {
		t.Fatalf("second Disconnect() should be a no-op")
	}
}

func TestTurnCoordinatorDisconnectEndsSession(t *testing.T) {
	c := newTestCoordinator(t)
	sessionID := pair(t, c)

	notes := c.Disconnect("ch-bob")
	if len(notes) != 1 || notes[0].UserID != "alice" {
		t.Fatalf("only alice should be notified, got %+v", notes)
	}
	msg := notes[0].Message
	if msg.Type != MsgSessionEnded || msg.SessionID != sessionID || msg.Reason != ReasonParticipantDisconnected {
		t.Fatalf("session-ended message = %+v", msg)
	}
	if c.ActiveSessions() != 0 {
		t.Fatalf("session should be removed")
	}
}

func TestTurnCoordinatorStaleChannelDisconnect(t *testing.T) {
	c := newTestCoordinator(t)
	sessionID := pair(t, c)

	status := c.Connect("bob", "ch-bob-2")
	if status.SessionID != sessionID || status.OpponentID != "alice" || status.IsYourTurn == nil || !*status.IsYourTurn {
		t.Fatalf("connection status = %+v", status)
	}

	if notes := c.Disconnect("ch-bob"); len(notes) != 0 {
		t.Fatalf("stale channel disconnect notes = %v, want none", notes)
	}
	if c.ActiveSessionID("bob") != sessionID {
		t.Fatalf("session should survive a stale channel closing")
	}
}

func TestTurnCoordinatorReconnectRebindsWaitingEntry(t *testing.T) {
	c := newTestCoordinator(t)
	c.Connect("alice", "ch-1")
	if _, _, err := c.Enqueue("alice", "", json.RawMessage(`{"mode":"quick"}`)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	status := c.Connect("alice", "ch-2")
	if status.Queued == nil || !*status.Queued || string(status.Preferences) != `{"mode":"quick"}` {
		t.Fatalf("connection status = %+v", status)
	}

	c.Disconnect("ch-1")
	if c.QueueSize() != 1 {
		t.Fatalf("alice should still be queued after the old channel closed")
	}

	outcome, _, err := c.Enqueue("bob", "ch-bob", nil)
	if err != nil {
		t.Fatalf("Enqueue(bob) error = %v", err)
	}
	if outcome.Opponent.ChannelRef != "ch-2" {
		t.Fatalf("opponent channel = %q, want ch-2", outcome.Opponent.ChannelRef)
	}
}

func TestTurnCoordinatorRelaySignal(t *testing.T) {
	c := newTestCoordinator(t)
	sessionID := pair(t, c)

	signal := json.RawMessage(`{"sdp":"offer"}`)
	notes, err := c.RelaySignal(sessionID, "alice", signal)
	if err != nil {
		t.Fatalf("RelaySignal() error = %v", err)
	}
	if len(notes) != 1 || notes[0].UserID != "bob" {
		t.Fatalf("signal should go to bob only, got %+v", notes)
	}
	if notes[0].Message.From != "alice" || string(notes[0].Message.Signal) != `{"sdp":"offer"}` {
		t.Fatalf("video-signal message = %+v", notes[0].Message)
	}

	if _, err := c.RelaySignal(sessionID, "mallory", signal); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("RelaySignal(mallory) error = %v, want %v", err, ErrNotParticipant)
	}
}

func TestTurnCoordinatorLeaveQueue(t *testing.T) {
	c := newTestCoordinator(t)
	if _, _, err := c.Enqueue("alice", "", nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !c.LeaveQueue("alice") {
		t.Fatalf("LeaveQueue() = false, want true")
	}
	if c.LeaveQueue("alice") {
		t.Fatalf("second LeaveQueue() = true, want false")
	}
}

func TestTurnCoordinatorExpireIdle(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewSessionStore()
	store.now = func() time.Time { return base }

	questions, _ := DefaultQuestions()
	c := NewTurnCoordinator(TurnCoordinatorConfig{
		Sessions:  store,
		Questions: NewQuestionBank(questions),
	})
	c.now = func() time.Time { return base.Add(5 * time.Minute) }

	sessionID := pair(t, c)

	if notes := c.ExpireIdle(10 * time.Minute); len(notes) != 0 {
		t.Fatalf("session should not expire yet, got %v", notes)
	}

	var reasons []string
	c.OnSessionEnded(func(_ *models.GameSession, reason string) {
		reasons = append(reasons, reason)
	})

	notes := c.ExpireIdle(time.Minute)
	if len(notes) != 2 {
		t.Fatalf("both participants should be notified, got %d", len(notes))
	}
	if notes[0].Message.Reason != ReasonIdleTimeout || notes[0].Message.SessionID != sessionID {
		t.Fatalf("session-ended message = %+v", notes[0].Message)
	}
	if len(reasons) != 1 || reasons[0] != ReasonIdleTimeout {
		t.Fatalf("hook reasons = %v", reasons)
	}
	if c.ActiveSessions() != 0 {
		t.Fatalf("session should be removed")
	}
}

func TestTurnCoordinatorJanitorWithTinyTimeout(t *testing.T) {
	c := newTestCoordinator(t)
	sessionID := pair(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatched := make(chan []Notification, 1)
	// timeout/4 rounds down to zero here.
	c.StartJanitor(ctx, 3*time.Nanosecond, 0, func(notes []Notification) {
		dispatched <- notes
	})

	select {
	case notes := <-dispatched:
		if len(notes) != 2 || notes[0].Message.SessionID != sessionID || notes[0].Message.Reason != ReasonIdleTimeout {
			t.Fatalf("janitor notifications = %+v", notes)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not expire the idle session")
	}
}

func TestTurnCoordinatorSerialisesConcurrentSeekers(t *testing.T) {
	c := newTestCoordinator(t)
	const players = 50

	done := make(chan struct{})
	for i := 0; i < players; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			userID := "player-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
			_, _, _ = c.Enqueue(userID, "", nil)
		}(i)
	}
	for i := 0; i < players; i++ {
		<-done
	}

	if got := c.QueueSize() + 2*c.ActiveSessions(); got != players {
		t.Fatalf("queued + paired = %d, want %d", got, players)
	}
	if c.QueueSize() > 1 {
		t.Fatalf("queue size = %d, at most one player should be left waiting", c.QueueSize())
	}
}
