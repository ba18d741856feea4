package services

import (
	"errors"
	"net/http"
)

// Game errors. Each one rejects a single request and leaves pool and
// sessions untouched.
var (
	ErrNotYourTurn      = errors.New("not your turn")
	ErrInvalidPhase     = errors.New("action not allowed in current phase")
	ErrEmptyAnswer      = errors.New("answer must not be empty")
	// ErrAlreadyQueued is reserved; a repeated enqueue replaces the entry.
	ErrAlreadyQueued    = errors.New("already in matching queue")
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyInSession = errors.New("already in an active session")
	ErrNotParticipant   = errors.New("user is not a participant of this session")
	ErrInvalidChallenge = errors.New("challenge must be truth or dare")
)

// errorCodes lists the wire code and HTTP status of every game error.
// ErrAlreadyQueued is never returned; its row only keeps the code reserved.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{ErrNotYourTurn, "not_your_turn", http.StatusConflict},
	{ErrInvalidPhase, "invalid_phase", http.StatusConflict},
	{ErrEmptyAnswer, "empty_answer", http.StatusBadRequest},
	{ErrAlreadyQueued, "already_queued", http.StatusConflict},
	{ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{ErrAlreadyInSession, "already_in_session", http.StatusConflict},
	{ErrNotParticipant, "not_participant", http.StatusForbidden},
	{ErrInvalidChallenge, "invalid_challenge", http.StatusBadRequest},
}

// ErrorCode returns the wire code for a game error, or "internal_error".
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal_error"
}

// HTTPStatus returns the HTTP status matching a game error.
func HTTPStatus(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
