package users

import (
	"context"

	"github.com/rs/zerolog"

	"eta/internal/config"
)

// Store persists account records. Emails are unique.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	GetByEmail(ctx context.Context, email string) (Record, error)
	Close() error
}

// NewStore returns a Redis-backed store when REDIS_HOST is configured and
// falls back to memory when Redis is not configured or unreachable.
func NewStore(cfg *config.Config, log zerolog.Logger) Store {
	if addr := cfg.RedisAddr(); addr != "" {
		store, err := NewRedisStore(addr, cfg.RedisUsername, cfg.RedisPassword, log)
		if err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("redis connection failed, falling back to in-memory user store")
			return NewMemoryStore()
		}
		log.Info().Str("addr", addr).Msg("using redis user store")
		return store
	}

	log.Info().Msg("using in-memory user store")
	return NewMemoryStore()
}
