package session

import "context"

// Subscription is a live change-feed. Events is closed when the feed ends;
// Err then reports why (nil after Close or context cancellation).
type Subscription interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Store persists sessions and publishes their changes.
type Store interface {
	Create(ctx context.Context, host string, cfg Configuration) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Remove(ctx context.Context, id, host string) error
	Join(ctx context.Context, id, subscriber string) error
	Authorize(ctx context.Context, id, host string) error
	WriteLocation(ctx context.Context, id, user string, loc Location) error
	SetETA(ctx context.Context, id string, eta ETA) error
	Subscribe(ctx context.Context, q Query, events ObservedEvents) (Subscription, error)
	OnExpire(fn func(id string))
	Close() error
}
