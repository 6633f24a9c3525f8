package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eta/internal/session"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	store    *session.MemoryStore
	provider *fakeProvider
	tokens   *fakeTokens
	writer   *fakeWriter
	mock     *clock.Mock
	ctrl     *Controller
	done     chan error
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, feeds Feeds) *harness {
	t.Helper()
	h := &harness{
		store:    session.NewMemoryStore(zerolog.Nop()),
		provider: newFakeProvider(),
		tokens:   &fakeTokens{token: "tok"},
		writer:   &fakeWriter{},
		mock:     clock.NewMock(),
		done:     make(chan error, 1),
	}
	if feeds == nil {
		feeds = h.store
	}
	h.ctrl = NewController(Options{
		UserID:   "alice",
		Feeds:    feeds,
		Tokens:   h.tokens,
		Writer:   h.writer,
		Provider: h.provider,
		Clock:    h.mock,
		Window:   10 * time.Second,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(func() { h.store.Close() })
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.ctrl.Run(ctx) }()
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-time.After(waitFor):
		t.Fatal("controller did not stop")
		return nil
	}
}

func (h *harness) waitState(t *testing.T, state GateState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.Status().State == state }, waitFor, tick)
}

// advanceUntil moves the mock clock forward until cond holds.
func (h *harness) advanceUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		h.mock.Add(time.Second)
		return cond()
	}, waitFor, tick)
}

func TestControllerIdleToTrackingStartsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.start()

	_, err := h.store.Create(ctx, "alice", session.DefaultConfiguration())
	require.NoError(t, err)
	h.waitState(t, Tracking)

	_, starts, stops := h.provider.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	require.NoError(t, h.stop(t))
	_, starts, stops = h.provider.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, Status{State: Idle}, h.ctrl.Status())
}

func TestControllerDispatchesThrottledFixToTargets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	var want []string
	for i := 0; i < 2; i++ {
		s, err := h.store.Create(ctx, "alice", session.DefaultConfiguration())
		require.NoError(t, err)
		want = append(want, s.Identifier)
	}
	for i, host := range []string{"bob", "carol", "dave"} {
		s, err := h.store.Create(ctx, host, session.DefaultConfiguration())
		require.NoError(t, err)
		require.NoError(t, h.store.Join(ctx, s.Identifier, "alice"))
		if i == 0 {
			require.NoError(t, h.store.Authorize(ctx, s.Identifier, host))
			want = append(want, s.Identifier)
		}
	}

	h.start()
	h.waitState(t, Tracking)
	require.Eventually(t, func() bool { return h.ctrl.Status().Subscribed == 3 }, waitFor, tick)

	h.provider.fixes <- fix(1)
	h.provider.fixes <- fix(2)
	h.advanceUntil(t, func() bool { return h.writer.count() >= 3 })
	require.NoError(t, h.stop(t))
	h.ctrl.Wait()

	assert.ElementsMatch(t, want, h.writer.sessionIDs())
	for _, w := range h.writer.writes {
		assert.Equal(t, fix(2), w.loc)
	}
}

func TestControllerAuthorizationStartsTrackingForSubscriber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.start()

	s, err := h.store.Create(ctx, "bob", session.DefaultConfiguration())
	require.NoError(t, err)
	require.NoError(t, h.store.Join(ctx, s.Identifier, "alice"))
	require.Eventually(t, func() bool { return h.ctrl.Status().Subscribed == 1 }, waitFor, tick)
	assert.Equal(t, Idle, h.ctrl.Status().State)

	require.NoError(t, h.store.Authorize(ctx, s.Identifier, "bob"))
	h.waitState(t, Tracking)

	require.NoError(t, h.store.Remove(ctx, s.Identifier, "bob"))
	h.waitState(t, Idle)

	_, starts, stops := h.provider.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	require.NoError(t, h.stop(t))
}

func TestControllerDropsBatchWhenAuthorizationFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.tokens.err = errors.New("signed out")

	_, err := h.store.Create(ctx, "alice", session.DefaultConfiguration())
	require.NoError(t, err)
	h.start()
	h.waitState(t, Tracking)

	h.provider.fixes <- fix(1)
	h.advanceUntil(t, func() bool { return h.tokens.count() == 1 })
	require.NoError(t, h.stop(t))
	h.ctrl.Wait()

	assert.Equal(t, 0, h.writer.count())
}

func TestControllerReturnsFeedError(t *testing.T) {
	feeds := newFakeFeeds()
	h := newHarness(t, feeds)
	h.start()

	<-feeds.opened
	<-feeds.opened
	feeds.sub(session.BySubscriber).fail(session.ErrFeedOverflow)

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, session.ErrFeedOverflow)
	case <-time.After(waitFor):
		t.Fatal("controller did not stop on feed error")
	}

	_, open := <-feeds.sub(session.ByHost).Events()
	assert.False(t, open, "host feed released on teardown")
}

func TestControllerSubscribeFailure(t *testing.T) {
	feeds := newFakeFeeds()
	feeds.err = errors.New("connection refused")
	h := newHarness(t, feeds)

	err := h.ctrl.Run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestControllerCloseTearsDown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.store.Create(ctx, "alice", session.DefaultConfiguration())
	require.NoError(t, err)
	h.start()
	h.waitState(t, Tracking)

	h.ctrl.Close()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("controller did not stop on Close")
	}

	_, _, stops := h.provider.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, ErrAlreadyStarted, h.ctrl.Run(ctx))
}

func TestControllerIgnoresFixesWhileIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.provider.fixes <- fix(1)
	require.Eventually(t, func() bool { return len(h.provider.fixes) == 0 }, waitFor, tick)
	h.mock.Add(time.Minute)

	require.NoError(t, h.stop(t))
	h.ctrl.Wait()
	assert.Equal(t, 0, h.writer.count())
	assert.Equal(t, 0, h.tokens.count())
}
