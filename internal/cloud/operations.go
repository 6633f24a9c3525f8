package cloud

import (
	"context"

	"eta/internal/session"
)

// Operations applies the access rules of the session API for an already
// identified user on top of a Store.
type Operations struct {
	store session.Store
}

func NewOperations(store session.Store) *Operations {
	return &Operations{store: store}
}

func (o *Operations) Create(ctx context.Context, user string, cfg session.Configuration) (session.Session, error) {
	return o.store.Create(ctx, user, cfg)
}

// Get returns the session if user takes part in it.
func (o *Operations) Get(ctx context.Context, user, id string) (session.Session, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return session.Session{}, err
	}
	if !s.IsParticipant(user) {
		return session.Session{}, session.ErrNotParticipant
	}
	return s, nil
}

func (o *Operations) Remove(ctx context.Context, user, id string) error {
	return o.store.Remove(ctx, id, user)
}

func (o *Operations) Join(ctx context.Context, user, id string) error {
	return o.store.Join(ctx, id, user)
}

func (o *Operations) Authorize(ctx context.Context, user, id string) error {
	return o.store.Authorize(ctx, id, user)
}

// WriteLocation stores loc for user. A non-empty target must match user.
func (o *Operations) WriteLocation(ctx context.Context, user, id, target string, loc session.Location) error {
	if target != "" && target != user {
		return session.ErrNotParticipant
	}
	return o.store.WriteLocation(ctx, id, user, loc)
}

// SetETA is reserved to the host, who relays the routing service's estimate.
func (o *Operations) SetETA(ctx context.Context, user, id string, eta session.ETA) error {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.HostUserIdentifier != user {
		return session.ErrNotHost
	}
	return o.store.SetETA(ctx, id, eta)
}

// Subscribe opens a feed if user is allowed to observe q: their own hosted
// or subscribed sessions, or a single session they take part in.
func (o *Operations) Subscribe(ctx context.Context, user string, q session.Query, events session.ObservedEvents) (session.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	switch q.By {
	case session.ByHost, session.BySubscriber:
		if q.Value != user {
			return nil, session.ErrNotParticipant
		}
	case session.ByIdentifier:
		if _, err := o.Get(ctx, user, q.Value); err != nil {
			return nil, err
		}
	}
	return o.store.Subscribe(ctx, q, events)
}
