package cloud

import (
	"context"

	"eta/internal/auth"
	"eta/internal/users"
)

// Accounts registers users and signs them in. It is the only place tokens
// are issued.
type Accounts struct {
	registry *users.Registry
	issuer   *auth.Issuer
}

func NewAccounts(registry *users.Registry, issuer *auth.Issuer) *Accounts {
	return &Accounts{registry: registry, issuer: issuer}
}

func (a *Accounts) Register(ctx context.Context, email, password, username string) (users.User, error) {
	return a.registry.Register(ctx, email, password, username)
}

// SignIn checks the credentials and issues a token for the account.
func (a *Accounts) SignIn(ctx context.Context, email, password string) (auth.Grant, users.User, error) {
	u, err := a.registry.Authenticate(ctx, email, password)
	if err != nil {
		return auth.Grant{}, users.User{}, err
	}
	grant, err := a.issuer.Grant(u.Identifier)
	if err != nil {
		return auth.Grant{}, users.User{}, err
	}
	return grant, u, nil
}

// Verify returns the user a token was issued to.
func (a *Accounts) Verify(token string) (string, error) {
	return a.issuer.Verify(token)
}

// Get returns the account id as seen by viewer. Only the owner sees the email.
func (a *Accounts) Get(ctx context.Context, viewer, id string) (users.User, error) {
	u, err := a.registry.Get(ctx, id)
	if err != nil {
		return users.User{}, err
	}
	if viewer != id {
		u.Email = ""
	}
	return u, nil
}
