package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"eta/internal/constants"
	"eta/internal/metrics"
)

// RedisStore keeps sessions in Redis. Mutations run as WATCH/MULTI
// transactions and are published on a channel that every process reads
// back into its local broker, so feeds see writes from all instances.
type RedisStore struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	broker   *broker
	clock    clock.Clock
	grace    time.Duration
	log      zerolog.Logger
	ctx      context.Context
	cancel   func()
	wg       sync.WaitGroup
	once     sync.Once
	mu       sync.RWMutex
	onExpire func(id string)
}

func NewRedisStore(addr, username, password string, log zerolog.Logger, opts ...Option) (*RedisStore, error) {
	o := buildOptions(opts)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithCancel(context.Background())

	store := &RedisStore{
		client: client,
		broker: newBroker(),
		clock:  o.clock,
		grace:  2 * o.cleanupInterval,
		log:    log.With().Str("component", "redis-store").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := store.client.Ping(ctx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	store.pubsub = client.Subscribe(ctx, constants.RedisEventsChannel)
	if _, err := store.pubsub.Receive(ctx); err != nil {
		cancel()
		store.pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", constants.RedisEventsChannel, err)
	}

	store.startReader()
	store.startCleanup(o.cleanupInterval)

	return store, nil
}

func (st *RedisStore) OnExpire(fn func(id string)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onExpire = fn
}

func (st *RedisStore) Create(ctx context.Context, host string, cfg Configuration) (Session, error) {
	s, err := newSession(host, cfg, st.clock.Now())
	if err != nil {
		return Session{}, err
	}

	data, err := EncodeRecord(s)
	if err != nil {
		return Session{}, err
	}
	payload, err := encodeChange(s.Identifier, nil, &s)
	if err != nil {
		return Session{}, err
	}

	_, err = st.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, st.key(s.Identifier), data, st.ttl(s))
		pipe.Publish(ctx, constants.RedisEventsChannel, payload)
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	metrics.RecordSessionCreated()
	st.log.Debug().Str("session_id", s.Identifier).Dur("ttl", st.ttl(s)).Msg("saved session to redis")
	return s, nil
}

func (st *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	s, err := st.load(ctx, st.client, id)
	if err != nil {
		return Session{}, err
	}
	if s.IsExpired(st.clock.Now()) {
		st.removeExpired(ctx, id)
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (st *RedisStore) Remove(ctx context.Context, id, host string) error {
	err := st.watch(ctx, id, func(tx *redis.Tx) error {
		cur, err := st.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkRemove(cur, host); err != nil {
			return err
		}
		return st.commit(ctx, tx, id, &cur, nil)
	})
	if err == nil {
		metrics.RecordSessionRemoved()
	}
	return err
}

func (st *RedisStore) Join(ctx context.Context, id, subscriber string) error {
	return st.update(ctx, id, func(s *Session) error {
		return applyJoin(s, subscriber, st.clock.Now())
	})
}

func (st *RedisStore) Authorize(ctx context.Context, id, host string) error {
	return st.update(ctx, id, func(s *Session) error {
		return applyAuthorize(s, host, st.clock.Now())
	})
}

func (st *RedisStore) WriteLocation(ctx context.Context, id, user string, loc Location) error {
	return st.update(ctx, id, func(s *Session) error {
		return applyWriteLocation(s, user, loc, st.clock.Now())
	})
}

func (st *RedisStore) SetETA(ctx context.Context, id string, eta ETA) error {
	return st.update(ctx, id, func(s *Session) error {
		return applyETA(s, eta, st.clock.Now())
	})
}

func (st *RedisStore) Subscribe(ctx context.Context, q Query, events ObservedEvents) (Subscription, error) {
	return st.broker.subscribe(ctx, q, events, func() ([]Session, error) {
		if q.By == ByIdentifier {
			s, err := st.Get(ctx, q.Value)
			if errors.Is(err, ErrSessionNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []Session{s}, nil
		}
		return st.scan(ctx)
	})
}

func (st *RedisStore) Close() error {
	var err error
	st.once.Do(func() {
		st.cancel()
		st.pubsub.Close()
		st.wg.Wait()
		st.broker.close()
		err = st.client.Close()
	})
	return err
}

func (st *RedisStore) key(id string) string {
	return constants.RedisKeyPrefix + id
}

// ttl keeps the key around past expiry so the cleanup loop can publish its removal.
func (st *RedisStore) ttl(s Session) time.Duration {
	ttl := s.ExpiresAt().Sub(st.clock.Now()) + st.grace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (st *RedisStore) load(ctx context.Context, c redis.Cmdable, id string) (Session, error) {
	raw, err := c.Get(ctx, st.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return DecodeRecord(id, raw)
}

func (st *RedisStore) watch(ctx context.Context, id string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < constants.RedisTxRetries; attempt++ {
		err := st.client.Watch(ctx, fn, st.key(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflictExhausted
}

// update runs fn inside an optimistic transaction. A concurrent write to the
// same key aborts the EXEC and the whole read-modify-write is retried, which
// is what makes the first joiner win across processes.
func (st *RedisStore) update(ctx context.Context, id string, fn func(s *Session) error) error {
	err := st.watch(ctx, id, func(tx *redis.Tx) error {
		cur, err := st.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsExpired(st.clock.Now()) {
			return ErrSessionNotFound
		}
		after := cur.Clone()
		if err := fn(&after); err != nil {
			return err
		}
		return st.commit(ctx, tx, id, &cur, &after)
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (st *RedisStore) commit(ctx context.Context, tx *redis.Tx, id string, before, after *Session) error {
	payload, err := encodeChange(id, before, after)
	if err != nil {
		return err
	}
	var data []byte
	if after != nil {
		if data, err = EncodeRecord(*after); err != nil {
			return err
		}
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if after != nil {
			pipe.Set(ctx, st.key(id), data, st.ttl(*after))
		} else {
			pipe.Del(ctx, st.key(id))
		}
		pipe.Publish(ctx, constants.RedisEventsChannel, payload)
		return nil
	})
	return err
}

func (st *RedisStore) scan(ctx context.Context) ([]Session, error) {
	now := st.clock.Now()
	var out []Session

	iter := st.client.Scan(ctx, 0, constants.RedisKeyPrefix+"*", constants.RedisScanBatch).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), constants.RedisKeyPrefix)
		s, err := st.load(ctx, st.client, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if errors.Is(err, ErrDecoding) {
			metrics.DecodeDrops.Inc()
			st.log.Warn().Err(err).Str("session_id", id).Msg("dropping malformed session record")
			continue
		}
		if err != nil {
			return nil, err
		}
		if !s.IsExpired(now) {
			out = append(out, s)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return out, nil
}

func (st *RedisStore) startReader() {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		for msg := range st.pubsub.Channel() {
			before, after, err := decodeChange([]byte(msg.Payload))
			if err != nil {
				metrics.DecodeDrops.Inc()
				st.log.Warn().Err(err).Msg("dropping malformed session change")
				continue
			}
			st.broker.publish(before, after)
		}
	}()
}

func (st *RedisStore) startCleanup(interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := st.clock.Ticker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-st.ctx.Done():
				return
			case <-ticker.C:
				st.cleanupExpired()
			}
		}
	}()
}

func (st *RedisStore) cleanupExpired() {
	now := st.clock.Now()
	iter := st.client.Scan(st.ctx, 0, constants.RedisKeyPrefix+"*", constants.RedisScanBatch).Iterator()

	for iter.Next(st.ctx) {
		id := strings.TrimPrefix(iter.Val(), constants.RedisKeyPrefix)
		s, err := st.load(st.ctx, st.client, id)
		if err != nil {
			continue
		}
		if s.IsExpired(now) {
			st.removeExpired(st.ctx, id)
		}
	}

	if err := iter.Err(); err != nil && st.ctx.Err() == nil {
		st.log.Error().Err(err).Msg("redis scan error")
	}
}

func (st *RedisStore) removeExpired(ctx context.Context, id string) {
	err := st.watch(ctx, id, func(tx *redis.Tx) error {
		cur, err := st.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.IsExpired(st.clock.Now()) {
			return errUnchanged
		}
		return st.commit(ctx, tx, id, &cur, nil)
	})
	if err != nil {
		return
	}

	metrics.RecordSessionRemoved()
	st.mu.RLock()
	onExpire := st.onExpire
	st.mu.RUnlock()
	if onExpire != nil {
		onExpire(id)
	}
	st.log.Info().Str("session_id", id).Msg("expired session cleaned up")
}
