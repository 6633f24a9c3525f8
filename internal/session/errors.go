package session

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionFull       = errors.New("session already has a subscriber")
	ErrJoinOwnSession    = errors.New("host cannot join their own session")
	ErrNotHost           = errors.New("only the host may do this")
	ErrNoSubscriber      = errors.New("session has no subscriber")
	ErrNotParticipant    = errors.New("user is not part of the session")
	ErrNotAuthorized     = errors.New("subscriber is not authorized")
	ErrInvalidLocation   = errors.New("invalid location")
	ErrInvalidConfig     = errors.New("invalid session configuration")
	ErrInvalidQuery      = errors.New("invalid feed query")
	ErrDecoding          = errors.New("malformed session record")
	ErrFeedOverflow      = errors.New("change feed subscriber fell behind")
	ErrStoreClosed       = errors.New("session store closed")
	ErrConflictExhausted = errors.New("too many concurrent updates")
)
