package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	user := func(name string) string { return name + "-" + uuid.NewString()[:8] }
	here := Location{Coordinate: Coordinate{Latitude: 51.5, Longitude: -0.12}, Date: time.Now().UTC()}

	t.Run("create applies defaults", func(t *testing.T) {
		st := newStore(t)
		host := user("alice")

		s, err := st.Create(ctx, host, Configuration{PrivateMode: true})
		require.NoError(t, err)
		assert.NotEmpty(t, s.Identifier)
		assert.Equal(t, host, s.HostUserIdentifier)
		assert.Equal(t, time.Hour, s.Configuration.ExpiresAfter)
		assert.Equal(t, StatusUnauthorized, s.Status)

		got, err := st.Get(ctx, s.Identifier)
		require.NoError(t, err)
		assert.Equal(t, s.Identifier, got.Identifier)
	})

	t.Run("create rejects out of range expiry", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Create(ctx, user("alice"), Configuration{ExpiresAfter: time.Second})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("get unknown", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("join rules", func(t *testing.T) {
		st := newStore(t)
		host, bob, carol := user("alice"), user("bob"), user("carol")
		s, err := st.Create(ctx, host, DefaultConfiguration())
		require.NoError(t, err)

		assert.ErrorIs(t, st.Join(ctx, s.Identifier, host), ErrJoinOwnSession)
		require.NoError(t, st.Join(ctx, s.Identifier, bob))
		require.NoError(t, st.Join(ctx, s.Identifier, bob), "re-joining is a no-op")
		assert.ErrorIs(t, st.Join(ctx, s.Identifier, carol), ErrSessionFull)
		assert.ErrorIs(t, st.Join(ctx, uuid.NewString(), carol), ErrSessionNotFound)

		got, err := st.Get(ctx, s.Identifier)
		require.NoError(t, err)
		assert.Equal(t, bob, got.SubscriberUserIdentifier)
	})

	t.Run("concurrent joins admit exactly one subscriber", func(t *testing.T) {
		st := newStore(t)
		s, err := st.Create(ctx, user("alice"), DefaultConfiguration())
		require.NoError(t, err)

		joiners := []string{user("bob"), user("carol")}
		errs := make([]error, len(joiners))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i, j := range joiners {
			wg.Add(1)
			go func(i int, j string) {
				defer wg.Done()
				<-start
				errs[i] = st.Join(ctx, s.Identifier, j)
			}(i, j)
		}
		close(start)
		wg.Wait()

		var ok, full int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSessionFull):
				full++
			default:
				t.Fatalf("unexpected join error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, full)
	})

	t.Run("authorize rules", func(t *testing.T) {
		st := newStore(t)
		host, bob := user("alice"), user("bob")
		s, err := st.Create(ctx, host, DefaultConfiguration())
		require.NoError(t, err)

		assert.ErrorIs(t, st.Authorize(ctx, s.Identifier, host), ErrNoSubscriber)
		require.NoError(t, st.Join(ctx, s.Identifier, bob))
		assert.ErrorIs(t, st.Authorize(ctx, s.Identifier, bob), ErrNotHost)
		require.NoError(t, st.Authorize(ctx, s.Identifier, host))

		got, err := st.Get(ctx, s.Identifier)
		require.NoError(t, err)
		assert.Equal(t, StatusAuthorized, got.Status)
	})

	t.Run("write location rules", func(t *testing.T) {
		st := newStore(t)
		host, bob, mallory := user("alice"), user("bob"), user("mallory")
		s, err := st.Create(ctx, host, DefaultConfiguration())
		require.NoError(t, err)

		require.NoError(t, st.WriteLocation(ctx, s.Identifier, host, here))
		assert.ErrorIs(t, st.WriteLocation(ctx, s.Identifier, mallory, here), ErrNotParticipant)
		assert.ErrorIs(t, st.WriteLocation(ctx, s.Identifier, host, Location{Coordinate: Coordinate{Latitude: 100}}), ErrInvalidLocation)

		require.NoError(t, st.Join(ctx, s.Identifier, bob))
		assert.ErrorIs(t, st.WriteLocation(ctx, s.Identifier, bob, here), ErrNotAuthorized)
		require.NoError(t, st.Authorize(ctx, s.Identifier, host))
		require.NoError(t, st.WriteLocation(ctx, s.Identifier, bob, here))

		got, err := st.Get(ctx, s.Identifier)
		require.NoError(t, err)
		assert.Len(t, got.Locations, 2)
		assert.InDelta(t, 51.5, got.Locations[host].Coordinate.Latitude, 1e-9)
	})

	t.Run("set eta", func(t *testing.T) {
		st := newStore(t)
		s, err := st.Create(ctx, user("alice"), DefaultConfiguration())
		require.NoError(t, err)

		require.NoError(t, st.SetETA(ctx, s.Identifier, ETA{Activity: 1, Description: "walking", Duration: 7 * time.Minute}))
		got, err := st.Get(ctx, s.Identifier)
		require.NoError(t, err)
		require.NotNil(t, got.ETA)
		assert.Equal(t, 7*time.Minute, got.ETA.Duration)
	})

	t.Run("remove is host only", func(t *testing.T) {
		st := newStore(t)
		host := user("alice")
		s, err := st.Create(ctx, host, DefaultConfiguration())
		require.NoError(t, err)

		assert.ErrorIs(t, st.Remove(ctx, s.Identifier, user("bob")), ErrNotHost)
		require.NoError(t, st.Remove(ctx, s.Identifier, host))
		_, err = st.Get(ctx, s.Identifier)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, st.Remove(ctx, s.Identifier, host), ErrSessionNotFound)
	})

	t.Run("feed replays current records then follows mutations", func(t *testing.T) {
		st := newStore(t)
		host, bob := user("alice"), user("bob")
		existing, err := st.Create(ctx, host, DefaultConfiguration())
		require.NoError(t, err)

		hostFeed, err := st.Subscribe(ctx, HostedBy(host), ObserveChildren)
		require.NoError(t, err)
		defer hostFeed.Close()
		subFeed, err := st.Subscribe(ctx, SubscribedBy(bob), ObserveChildren)
		require.NoError(t, err)
		defer subFeed.Close()

		ev := next(t, hostFeed)
		assert.Equal(t, EventAdded, ev.Kind)
		assert.Equal(t, existing.Identifier, ev.Session.Identifier)

		require.NoError(t, st.Join(ctx, existing.Identifier, bob))
		ev = next(t, hostFeed)
		assert.Equal(t, EventChanged, ev.Kind)
		assert.Equal(t, bob, ev.Session.SubscriberUserIdentifier)

		ev = next(t, subFeed)
		assert.Equal(t, EventAdded, ev.Kind)

		require.NoError(t, st.Authorize(ctx, existing.Identifier, host))
		ev = next(t, subFeed)
		assert.Equal(t, EventChanged, ev.Kind)
		assert.True(t, ev.Session.IsAuthorized())
		next(t, hostFeed)

		require.NoError(t, st.Remove(ctx, existing.Identifier, host))
		assert.Equal(t, EventRemoved, next(t, hostFeed).Kind)
		assert.Equal(t, EventRemoved, next(t, subFeed).Kind)
	})

	t.Run("feed close ends the channel", func(t *testing.T) {
		st := newStore(t)
		feed, err := st.Subscribe(ctx, HostedBy(user("alice")), ObserveChildren)
		require.NoError(t, err)
		require.NoError(t, feed.Close())

		_, open := <-feed.Events()
		assert.False(t, open)
		assert.NoError(t, feed.Err())
	})

	t.Run("feed ends with context", func(t *testing.T) {
		st := newStore(t)
		subCtx, cancel := context.WithCancel(ctx)
		feed, err := st.Subscribe(subCtx, HostedBy(user("alice")), ObserveChildren)
		require.NoError(t, err)
		cancel()

		require.Eventually(t, func() bool {
			select {
			case _, open := <-feed.Events():
				return !open
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("invalid query", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Subscribe(ctx, Query{By: "owner", Value: "x"}, ObserveChildren)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func next(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "feed closed: %v", sub.Err())
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return Event{}
	}
}
