package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"eta/internal/constants"
)

// RedisStore keeps accounts as JSON under eta:user:<id>. The email index
// key is claimed with SETNX so two registrations cannot share an address.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisStore(addr, username, password string, log zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		log:    log.With().Str("component", "redis-user-store").Logger(),
	}, nil
}

func (st *RedisStore) Create(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	claimed, err := st.client.SetNX(ctx, st.emailKey(rec.Email), rec.Identifier, 0).Result()
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}
	if !claimed {
		return ErrEmailTaken
	}

	if err := st.client.Set(ctx, st.key(rec.Identifier), data, 0).Err(); err != nil {
		if delErr := st.client.Del(ctx, st.emailKey(rec.Email)).Err(); delErr != nil {
			st.log.Error().Err(delErr).Str("user_id", rec.Identifier).Msg("failed to release email after failed registration")
		}
		return fmt.Errorf("save user: %w", err)
	}

	st.log.Debug().Str("user_id", rec.Identifier).Msg("saved user to redis")
	return nil
}

func (st *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	data, err := st.client.Get(ctx, st.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrUserNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load user: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return rec, nil
}

func (st *RedisStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	id, err := st.client.Get(ctx, st.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrUserNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load email index: %w", err)
	}
	return st.Get(ctx, id)
}

func (st *RedisStore) Close() error {
	return st.client.Close()
}

func (st *RedisStore) key(id string) string {
	return constants.RedisUserKeyPrefix + id
}

func (st *RedisStore) emailKey(email string) string {
	return constants.RedisEmailKeyPrefix + email
}
