package protocol

import (
	"errors"
	"net/http"

	"eta/internal/auth"
	"eta/internal/session"
	"eta/internal/users"
)

const (
	CodeInternal    = "internal"
	CodeInvalidJSON = "invalid_json"
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{session.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{session.ErrSessionFull, "session_full", http.StatusConflict},
	{session.ErrJoinOwnSession, "join_own_session", http.StatusConflict},
	{session.ErrNoSubscriber, "no_subscriber", http.StatusConflict},
	{session.ErrNotHost, "not_host", http.StatusForbidden},
	{session.ErrNotParticipant, "not_participant", http.StatusForbidden},
	{session.ErrNotAuthorized, "not_authorized", http.StatusForbidden},
	{session.ErrInvalidLocation, "invalid_location", http.StatusBadRequest},
	{session.ErrInvalidConfig, "invalid_config", http.StatusBadRequest},
	{session.ErrInvalidQuery, "invalid_query", http.StatusBadRequest},
	{session.ErrConflictExhausted, "conflict", http.StatusServiceUnavailable},
	{auth.ErrInvalidToken, "invalid_token", http.StatusUnauthorized},
	{users.ErrUserNotFound, "user_not_found", http.StatusNotFound},
	{users.ErrEmailTaken, "email_taken", http.StatusConflict},
	{users.ErrInvalidCredentials, "invalid_credentials", http.StatusUnauthorized},
	{users.ErrInvalidEmail, "invalid_email", http.StatusBadRequest},
	{users.ErrWeakPassword, "weak_password", http.StatusBadRequest},
	{users.ErrInvalidUsername, "invalid_username", http.StatusBadRequest},
}

// ErrorCode maps an error to its API code and HTTP status.
func ErrorCode(err error) (string, int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// CodeError maps an API code back to its sentinel error, or nil if the code is unknown.
func CodeError(code string) error {
	for _, e := range errorCodes {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
