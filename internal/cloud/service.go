// Package cloud provides the session service backends the client talks to.
package cloud

import (
	"context"

	"eta/internal/auth"
	"eta/internal/session"
	"eta/internal/users"
)

// Service is the eta API as seen by the client. Registration and sign-in
// are public; every other call carries the user's bearer token.
type Service interface {
	RegisterUser(ctx context.Context, email, password, username string) (users.User, error)
	SignIn(ctx context.Context, email, password string) (auth.Grant, error)
	GetUser(ctx context.Context, token, id string) (users.User, error)

	CreateSession(ctx context.Context, token string, cfg session.Configuration) (session.Session, error)
	GetSession(ctx context.Context, token, id string) (session.Session, error)
	RemoveSession(ctx context.Context, token, id string) error
	JoinSession(ctx context.Context, token, id string) error
	AuthorizeSession(ctx context.Context, token, id string) error
	WriteLocation(ctx context.Context, token, sessionID, userID string, loc session.Location) error
	SetETA(ctx context.Context, token, id string, eta session.ETA) error
}

var (
	_ Service            = (*StoreService)(nil)
	_ Service            = (*RemoteService)(nil)
	_ auth.Authenticator = Service(nil)
)
