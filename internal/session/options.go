package session

import (
	"time"

	"github.com/benbjohnson/clock"

	"eta/internal/constants"
)

type options struct {
	clock           clock.Clock
	cleanupInterval time.Duration
}

// Option customizes a store.
type Option func(*options)

// WithClock sets the clock used for timestamps and expiry.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCleanupInterval sets how often expired sessions are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanupInterval = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:           clock.New(),
		cleanupInterval: constants.CleanupInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
