package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"eta/internal/auth"
	"eta/internal/constants"
	"eta/internal/lifecycle"
	"eta/internal/metrics"
	"eta/internal/session"
)

var (
	ErrFeedClosed     = errors.New("change feed closed")
	ErrAlreadyStarted = errors.New("location controller already started")
)

// Feeds opens change-feed subscriptions. session.Store and the websocket
// feed client both satisfy it.
type Feeds interface {
	Subscribe(ctx context.Context, q session.Query, events session.ObservedEvents) (session.Subscription, error)
}

type Options struct {
	UserID   string
	Feeds    Feeds
	Tokens   auth.TokenSource
	Writer   Writer
	Provider Provider
	Clock    clock.Clock
	Window   time.Duration
	Logger   zerolog.Logger
}

// Status is a point-in-time view of the controller for observers.
type Status struct {
	State      GateState
	Hosting    int
	Subscribed int
	Authorized int
}

// Controller runs the tracking pipeline for one signed-in user. Feed events,
// raw fixes and throttle windows are all handled on the goroutine that calls
// Run; only dispatch network calls happen elsewhere.
type Controller struct {
	userID     string
	feeds      Feeds
	provider   Provider
	membership *Membership
	gate       *Gate
	throttle   *Throttle
	dispatcher *Dispatcher
	bag        lifecycle.Bag
	log        zerolog.Logger

	started   atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	status Status
}

func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Window <= 0 {
		opts.Window = constants.ThrottleWindow
	}

	log := opts.Logger.With().Str("component", "location-controller").Str("user_id", opts.UserID).Logger()
	c := &Controller{
		userID:     opts.UserID,
		feeds:      opts.Feeds,
		provider:   opts.Provider,
		gate:       NewGate(opts.Provider, opts.Logger),
		throttle:   NewThrottle(opts.Clock, opts.Window),
		dispatcher: NewDispatcher(opts.UserID, opts.Tokens, opts.Writer, opts.Logger),
		closing:    make(chan struct{}),
		log:        log,
	}
	c.membership = NewMembership(c.membershipChanged)
	return c
}

// Run subscribes to both feeds and processes events until ctx is done,
// Close is called or a feed fails. A feed failure is returned; the other
// exits return nil. Teardown always runs before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.teardown()

	hostFeed, err := c.feeds.Subscribe(ctx, session.HostedBy(c.userID), session.ObserveChildren)
	if err != nil {
		return fmt.Errorf("subscribe host feed: %w", err)
	}
	c.bag.AddCloser(hostFeed)

	subscriberFeed, err := c.feeds.Subscribe(ctx, session.SubscribedBy(c.userID), session.ObserveChildren)
	if err != nil {
		return fmt.Errorf("subscribe subscriber feed: %w", err)
	}
	c.bag.AddCloser(subscriberFeed)

	c.log.Info().Msg("location controller started")

	hostEvents := hostFeed.Events()
	subscriberEvents := subscriberFeed.Events()
	fixes := c.provider.Fixes()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closing:
			return nil
		case ev, ok := <-hostEvents:
			if !ok {
				return c.feedEnded(ctx, RoleHost, hostFeed)
			}
			c.apply(RoleHost, ev)
		case ev, ok := <-subscriberEvents:
			if !ok {
				return c.feedEnded(ctx, RoleSubscriber, subscriberFeed)
			}
			c.apply(RoleSubscriber, ev)
		case loc, ok := <-fixes:
			if !ok {
				fixes = nil
				continue
			}
			if c.gate.State() == Tracking {
				c.throttle.Offer(loc)
			}
		case <-c.throttle.C():
			if loc, ok := c.throttle.Flush(); ok {
				c.dispatcher.Dispatch(loc, c.membership.Targets())
			}
		}
	}
}

// Close stops Run. It does not wait for Run to return.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.closing) })
}

// Wait blocks until writes issued before teardown have finished.
func (c *Controller) Wait() {
	c.dispatcher.Wait()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) apply(role Role, ev session.Event) {
	if c.membership.Apply(role, ev) {
		metrics.RecordFeedEvent(role.String(), ev.Kind.String())
		c.log.Debug().
			Str("role", role.String()).
			Str("kind", ev.Kind.String()).
			Str("session_id", ev.Session.Identifier).
			Msg("membership updated")
	}
	c.publishStatus()
}

func (c *Controller) membershipChanged(active bool) {
	if !c.gate.Evaluate(active) {
		c.throttle.Stop()
	}
}

func (c *Controller) feedEnded(ctx context.Context, role Role, sub session.Subscription) error {
	if ctx.Err() != nil {
		return nil
	}
	err := sub.Err()
	if err == nil {
		err = ErrFeedClosed
	}
	metrics.FeedErrors.WithLabelValues(role.String()).Inc()
	c.log.Error().Err(err).Str("role", role.String()).Msg("change feed terminated")
	return fmt.Errorf("%s feed: %w", role, err)
}

func (c *Controller) teardown() {
	if err := c.bag.Dispose(); err != nil {
		c.log.Warn().Err(err).Msg("releasing feed subscriptions")
	}
	c.gate.Stop()
	c.throttle.Stop()
	c.dispatcher.Close()
	c.membership.Reset()
	c.publishStatus()
	c.log.Info().Msg("location controller stopped")
}

func (c *Controller) publishStatus() {
	st := Status{
		State:      c.gate.State(),
		Hosting:    len(c.membership.hosting),
		Subscribed: len(c.membership.subscribed),
		Authorized: len(c.membership.AuthorizedSubscriptions()),
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}
