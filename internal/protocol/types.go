package protocol

import (
	"encoding/json"
	"time"

	"eta/internal/session"
	"eta/internal/users"
)

// CreateResponse is returned by the create endpoint.
type CreateResponse struct {
	Name    string          `json:"name"`
	Session session.Session `json:"session"`
}

// LocationRequest is the body of a location write.
type LocationRequest struct {
	UserIdentifier string           `json:"userIdentifier,omitempty"`
	Location       session.Location `json:"location"`
}

// RegisterRequest is the body of the register endpoint. Username is optional.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse carries the bearer token for the signed-in user.
type SignInResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      users.User `json:"user"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// FeedFrame is one change-feed event on the websocket. Session stays raw so
// the receiver can drop records it cannot decode without losing the stream.
type FeedFrame struct {
	Kind    session.EventKind `json:"kind"`
	ID      string            `json:"id"`
	Session json.RawMessage   `json:"session"`
}

// NewFeedFrame encodes a store event for the wire.
func NewFeedFrame(ev session.Event) (FeedFrame, error) {
	raw, err := session.EncodeRecord(ev.Session)
	if err != nil {
		return FeedFrame{}, err
	}
	return FeedFrame{Kind: ev.Kind, ID: ev.Session.Identifier, Session: raw}, nil
}

// Event decodes the frame back into a store event.
func (f FeedFrame) Event() (session.Event, error) {
	s, err := session.DecodeRecord(f.ID, f.Session)
	if err != nil {
		return session.Event{}, err
	}
	return session.Event{Kind: f.Kind, Session: s}, nil
}
