package session

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"eta/internal/metrics"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	broker   *broker
	onExpire func(id string)

	clock  clock.Clock
	log    zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewMemoryStore(log zerolog.Logger, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	store := &MemoryStore{
		sessions: make(map[string]Session),
		broker:   newBroker(),
		clock:    o.clock,
		log:      log.With().Str("component", "memory-store").Logger(),
		cancel:   cancel,
	}

	store.wg.Add(1)
	go func() {
		defer store.wg.Done()
		store.cleanupLoop(ctx, o)
	}()

	return store
}

func (st *MemoryStore) OnExpire(fn func(id string)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onExpire = fn
}

func (st *MemoryStore) Create(_ context.Context, host string, cfg Configuration) (Session, error) {
	s, err := newSession(host, cfg, st.clock.Now())
	if err != nil {
		return Session{}, err
	}

	st.mu.Lock()
	st.sessions[s.Identifier] = s
	st.broker.publish(nil, &s)
	st.mu.Unlock()

	metrics.RecordSessionCreated()
	st.log.Debug().Str("session_id", s.Identifier).Str("host", host).Msg("session created")
	return s.Clone(), nil
}

func (st *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()

	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.IsExpired(st.clock.Now()) {
		st.expire(id)
		return Session{}, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (st *MemoryStore) Remove(_ context.Context, id, host string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	if err := checkRemove(s, host); err != nil {
		st.mu.Unlock()
		return err
	}
	delete(st.sessions, id)
	st.broker.publish(&s, nil)
	st.mu.Unlock()

	metrics.RecordSessionRemoved()
	st.log.Debug().Str("session_id", id).Msg("session removed")
	return nil
}

func (st *MemoryStore) Join(_ context.Context, id, subscriber string) error {
	return st.update(id, func(s *Session) error {
		return applyJoin(s, subscriber, st.clock.Now())
	})
}

func (st *MemoryStore) Authorize(_ context.Context, id, host string) error {
	return st.update(id, func(s *Session) error {
		return applyAuthorize(s, host, st.clock.Now())
	})
}

func (st *MemoryStore) WriteLocation(_ context.Context, id, user string, loc Location) error {
	return st.update(id, func(s *Session) error {
		return applyWriteLocation(s, user, loc, st.clock.Now())
	})
}

func (st *MemoryStore) SetETA(_ context.Context, id string, eta ETA) error {
	return st.update(id, func(s *Session) error {
		return applyETA(s, eta, st.clock.Now())
	})
}

func (st *MemoryStore) Subscribe(ctx context.Context, q Query, events ObservedEvents) (Subscription, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.broker.subscribe(ctx, q, events, func() ([]Session, error) {
		now := st.clock.Now()
		out := make([]Session, 0, len(st.sessions))
		for _, s := range st.sessions {
			if !s.IsExpired(now) {
				out = append(out, s)
			}
		}
		return out, nil
	})
}

func (st *MemoryStore) Close() error {
	st.once.Do(func() {
		st.cancel()
		st.wg.Wait()
		st.broker.close()
	})
	return nil
}

// update applies fn to a copy of the session and publishes the result.
// Holding st.mu across the read-modify-write serializes joins.
func (st *MemoryStore) update(id string, fn func(s *Session) error) error {
	st.mu.Lock()
	cur, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	if cur.IsExpired(st.clock.Now()) {
		st.mu.Unlock()
		st.expire(id)
		return ErrSessionNotFound
	}

	after := cur.Clone()
	if err := fn(&after); err != nil {
		st.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}

	st.sessions[id] = after
	st.broker.publish(&cur, &after)
	st.mu.Unlock()
	return nil
}

func (st *MemoryStore) expire(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if !ok || !s.IsExpired(st.clock.Now()) {
		st.mu.Unlock()
		return
	}
	delete(st.sessions, id)
	st.broker.publish(&s, nil)
	onExpire := st.onExpire
	st.mu.Unlock()

	metrics.RecordSessionRemoved()
	if onExpire != nil {
		onExpire(id)
	}
	st.log.Info().Str("session_id", id).Msg("expired session cleaned up")
}

func (st *MemoryStore) cleanupLoop(ctx context.Context, o options) {
	ticker := st.clock.Ticker(o.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.cleanupExpired()
		}
	}
}

func (st *MemoryStore) cleanupExpired() {
	now := st.clock.Now()

	st.mu.Lock()
	var expired []string
	for id, s := range st.sessions {
		if s.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	st.mu.Unlock()

	for _, id := range expired {
		st.expire(id)
	}
}
