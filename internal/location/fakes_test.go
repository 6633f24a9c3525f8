package location

import (
	"context"
	"sort"
	"sync"

	"eta/internal/session"
)

type fakeProvider struct {
	mu         sync.Mutex
	permission Permission
	grant      Permission
	requests   int
	starts     int
	stops      int
	accuracy   Accuracy
	background bool
	fixes      chan session.Location
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		grant: PermissionGranted,
		fixes: make(chan session.Location, 16),
	}
}

func (p *fakeProvider) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *fakeProvider) setPermission(permission Permission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = permission
}

func (p *fakeProvider) RequestPermission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	p.permission = p.grant
	return p.permission
}

func (p *fakeProvider) SetDesiredAccuracy(a Accuracy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accuracy = a
}

func (p *fakeProvider) SetBackgroundUpdates(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.background = enabled
}

func (p *fakeProvider) StartUpdates() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
}

func (p *fakeProvider) StopUpdates() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakeProvider) Fixes() <-chan session.Location {
	return p.fixes
}

func (p *fakeProvider) counts() (requests, starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests, p.starts, p.stops
}

type fakeTokens struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
	gate  chan struct{}
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.token, f.err
}

func (f *fakeTokens) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type write struct {
	token     string
	sessionID string
	userID    string
	loc       session.Location
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []write
	fail   map[string]error
}

func (w *fakeWriter) WriteLocation(_ context.Context, token, sessionID, userID string, loc session.Location) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, write{token: token, sessionID: sessionID, userID: userID, loc: loc})
	return w.fail[sessionID]
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func (w *fakeWriter) sessionIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.writes))
	for _, wr := range w.writes {
		ids = append(ids, wr.sessionID)
	}
	sort.Strings(ids)
	return ids
}

type fakeSubscription struct {
	ch   chan session.Event
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan session.Event, 16)}
}

func (s *fakeSubscription) Events() <-chan session.Event { return s.ch }

func (s *fakeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSubscription) Close() error {
	s.fail(nil)
	return nil
}

func (s *fakeSubscription) fail(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

// fakeFeeds hands out one fake subscription per query field.
type fakeFeeds struct {
	mu     sync.Mutex
	subs   map[session.QueryField]*fakeSubscription
	err    error
	opened chan session.QueryField
}

func newFakeFeeds() *fakeFeeds {
	return &fakeFeeds{
		subs:   make(map[session.QueryField]*fakeSubscription),
		opened: make(chan session.QueryField, 2),
	}
}

func (f *fakeFeeds) Subscribe(_ context.Context, q session.Query, _ session.ObservedEvents) (session.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := newFakeSubscription()
	f.subs[q.By] = sub
	f.opened <- q.By
	return sub, nil
}

func (f *fakeFeeds) sub(by session.QueryField) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[by]
}
