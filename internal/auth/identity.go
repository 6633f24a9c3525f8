package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"eta/internal/constants"
)

// Grant is a bearer token handed out by the server at sign-in.
type Grant struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
}

// Authenticator exchanges account credentials for a Grant.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (Grant, error)
}

type credentials struct {
	email    string
	password string
}

// LocalIdentity is the signed-in user of this process. Tokens come from the
// authenticator and are cached until they are close to expiry, then renewed
// with the credentials given at sign-in.
type LocalIdentity struct {
	authn Authenticator
	clock clock.Clock

	// refresh serializes token renewal without holding mu across the network call
	refresh sync.Mutex

	mu      sync.Mutex
	user    string
	creds   credentials
	token   string
	expires time.Time
	subs    map[int]chan string
	nextSub int
}

func NewLocalIdentity(authn Authenticator) *LocalIdentity {
	return &LocalIdentity{
		authn: authn,
		clock: clock.New(),
		subs:  make(map[int]chan string),
	}
}

// WithClock sets the clock used to judge token expiry.
func (id *LocalIdentity) WithClock(c clock.Clock) *LocalIdentity {
	id.clock = c
	return id
}

// SignIn authenticates and makes the account the current user.
func (id *LocalIdentity) SignIn(ctx context.Context, email, password string) (string, error) {
	grant, err := id.authn.SignIn(ctx, email, password)
	if err != nil {
		return "", err
	}

	id.mu.Lock()
	defer id.mu.Unlock()

	changed := id.user != grant.UserID
	id.user = grant.UserID
	id.creds = credentials{email: email, password: password}
	id.token = grant.Token
	id.expires = grant.ExpiresAt
	if changed {
		id.notifyLocked(grant.UserID)
	}
	return grant.UserID, nil
}

func (id *LocalIdentity) SignOut() {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.user == "" {
		return
	}
	id.user = ""
	id.creds = credentials{}
	id.token = ""
	id.notifyLocked("")
}

func (id *LocalIdentity) CurrentUser() (string, bool) {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.user, id.user != ""
}

// Token returns a bearer token for the signed-in user.
func (id *LocalIdentity) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id.refresh.Lock()
	defer id.refresh.Unlock()

	id.mu.Lock()
	user, creds, token, expires := id.user, id.creds, id.token, id.expires
	id.mu.Unlock()

	if user == "" {
		return "", ErrSignedOut
	}
	if token != "" && id.clock.Now().Before(expires.Add(-constants.TokenRefreshSkew)) {
		return token, nil
	}

	grant, err := id.authn.SignIn(ctx, creds.email, creds.password)
	if err != nil {
		return "", fmt.Errorf("renew token: %w", err)
	}

	id.mu.Lock()
	defer id.mu.Unlock()
	if id.user != user || grant.UserID != user {
		return "", ErrSignedOut
	}
	id.token = grant.Token
	id.expires = grant.ExpiresAt
	return grant.Token, nil
}

// StateChanges delivers the user identifier after every sign-in and ""
// after sign-out. cancel closes the channel.
func (id *LocalIdentity) StateChanges() (<-chan string, func()) {
	id.mu.Lock()
	defer id.mu.Unlock()

	ch := make(chan string, constants.StateChangeBuffer)
	key := id.nextSub
	id.nextSub++
	id.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			id.mu.Lock()
			defer id.mu.Unlock()
			delete(id.subs, key)
			close(ch)
		})
	}
}

func (id *LocalIdentity) notifyLocked(user string) {
	for _, ch := range id.subs {
		select {
		case ch <- user:
		default:
		}
	}
}
