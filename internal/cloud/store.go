package cloud

import (
	"context"

	"eta/internal/auth"
	"eta/internal/session"
	"eta/internal/users"
)

// StoreService serves the API in process, straight from the stores.
type StoreService struct {
	ops      *Operations
	accounts *Accounts
}

func NewStoreService(store session.Store, accounts *Accounts) *StoreService {
	return &StoreService{ops: NewOperations(store), accounts: accounts}
}

func (s *StoreService) RegisterUser(ctx context.Context, email, password, username string) (users.User, error) {
	return s.accounts.Register(ctx, email, password, username)
}

func (s *StoreService) SignIn(ctx context.Context, email, password string) (auth.Grant, error) {
	grant, _, err := s.accounts.SignIn(ctx, email, password)
	return grant, err
}

func (s *StoreService) GetUser(ctx context.Context, token, id string) (users.User, error) {
	viewer, err := s.accounts.Verify(token)
	if err != nil {
		return users.User{}, err
	}
	return s.accounts.Get(ctx, viewer, id)
}

func (s *StoreService) CreateSession(ctx context.Context, token string, cfg session.Configuration) (session.Session, error) {
	user, err := s.accounts.Verify(token)
	if err != nil {
		return session.Session{}, err
	}
	return s.ops.Create(ctx, user, cfg)
}

func (s *StoreService) GetSession(ctx context.Context, token, id string) (session.Session, error) {
	user, err := s.accounts.Verify(token)
	if err != nil {
		return session.Session{}, err
	}
	return s.ops.Get(ctx, user, id)
}

func (s *StoreService) RemoveSession(ctx context.Context, token, id string) error {
	user, err := s.accounts.Verify(token)
	if err != nil {
		return err
	}
	return s.ops.Remove(ctx, user, id)
}

func (s *StoreService) JoinSession(ctx context.Context, token, id string) error {
	user, err := s.accounts.Verify(token)
	if err != nil {
		return err
	}
	return s.ops.Join(ctx, user, id)
}

func (s *StoreService) AuthorizeSession(ctx context.Context, token, id string) error {
	user, err := s.accounts.Verify(token)
	if err != nil {
		return err
	}
	return s.ops.Authorize(ctx, user, id)
}

func (s *StoreService) WriteLocation(ctx context.Context, token, sessionID, userID string, loc session.Location) error {
	user, err := s.accounts.Verify(token)
	if err != nil {
		return err
	}
	return s.ops.WriteLocation(ctx, user, sessionID, userID, loc)
}

func (s *StoreService) SetETA(ctx context.Context, token, id string, eta session.ETA) error {
	user, err := s.accounts.Verify(token)
	if err != nil {
		return err
	}
	return s.ops.SetETA(ctx, user, id, eta)
}

// Feeds returns a change-feed source that authenticates with tokens.
func (s *StoreService) Feeds(tokens auth.TokenSource) *StoreFeeds {
	return &StoreFeeds{svc: s, tokens: tokens}
}

// StoreFeeds opens in-process change feeds on behalf of a token holder.
type StoreFeeds struct {
	svc    *StoreService
	tokens auth.TokenSource
}

func (f *StoreFeeds) Subscribe(ctx context.Context, q session.Query, events session.ObservedEvents) (session.Subscription, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	user, err := f.svc.accounts.Verify(token)
	if err != nil {
		return nil, err
	}
	return f.svc.ops.Subscribe(ctx, user, q, events)
}
