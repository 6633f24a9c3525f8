package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"eta/internal/auth"
	"eta/internal/cloud"
	"eta/internal/config"
	"eta/internal/logger"
	"eta/internal/server"
	"eta/internal/session"
	"eta/internal/users"
)

func main() {
	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatal().Err(err).Msg("invalid server configuration")
	}

	logg := logger.New(cfg.LogLevel, cfg.ServiceName, cfg.Environment)

	store := session.NewStore(cfg, logg)
	userStore := users.NewStore(cfg, logg)
	defer userStore.Close()

	issuer := auth.NewIssuer(cfg.AuthSecret, cfg.AuthIssuer, cfg.TokenTTL)
	accounts := cloud.NewAccounts(users.NewRegistry(userStore, logg), issuer)
	s := server.NewServer(cfg, store, accounts, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx); err != nil {
		logg.Fatal().Err(err).Msg("server failed")
	}
}
