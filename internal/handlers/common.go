package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"truth-dare-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Dispatcher delivers outbound notifications to connected users
type Dispatcher interface {
	Dispatch(notes []services.Notification)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondGameError maps a game error to its status and wire code
func respondGameError(w http.ResponseWriter, err error) {
	respondJSON(w, services.HTTPStatus(err), ErrorResponse{
		Error: err.Error(),
		Code:  services.ErrorCode(err),
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeOptionalJSON decodes the request body into dst; an empty body is allowed
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
