package session

import (
	"github.com/rs/zerolog"

	"eta/internal/config"
)

// NewStore returns a Redis-backed store when REDIS_HOST is configured and
// falls back to memory when Redis is not configured or unreachable.
func NewStore(cfg *config.Config, log zerolog.Logger, opts ...Option) Store {
	opts = append([]Option{WithCleanupInterval(cfg.CleanupInterval)}, opts...)

	if addr := cfg.RedisAddr(); addr != "" {
		store, err := NewRedisStore(addr, cfg.RedisUsername, cfg.RedisPassword, log, opts...)
		if err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("redis connection failed, falling back to in-memory session store")
			return NewMemoryStore(log, opts...)
		}
		log.Info().Str("addr", addr).Msg("using redis session store")
		return store
	}

	log.Info().Msg("using in-memory session store")
	return NewMemoryStore(log, opts...)
}
