// Package server exposes a session Store over HTTP and websocket change feeds.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"eta/internal/cloud"
	"eta/internal/config"
	"eta/internal/constants"
	"eta/internal/metrics"
	"eta/internal/security"
	"eta/internal/session"
)

type Server struct {
	cfg            *config.Config
	store          session.Store
	ops            *cloud.Operations
	accounts       *cloud.Accounts
	connLimiter    *security.ConnectionLimiter
	bruteProtector *security.BruteForceProtector
	audit          *security.AuditLogger
	upgrader       websocket.Upgrader
	tracer         trace.Tracer
	log            zerolog.Logger
}

func NewServer(cfg *config.Config, store session.Store, accounts *cloud.Accounts, log zerolog.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		store:          store,
		ops:            cloud.NewOperations(store),
		accounts:       accounts,
		connLimiter:    security.NewConnectionLimiter(constants.MaxFeedsPerIP),
		bruteProtector: security.NewBruteForceProtector(constants.MaxAuthAttempts, constants.AuthBlockDuration, clock.New()),
		audit:          security.NewAuditLogger(log, clock.New()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.WSBufferSize,
			WriteBufferSize: constants.WSBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		tracer: otel.Tracer("eta/server"),
		log:    log.With().Str("component", "server").Logger(),
	}

	s.store.OnExpire(func(id string) {
		s.log.Info().Str("session_id", id).Msg("session expired")
	})

	return s
}

// Handler returns the routed API with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.LoggingMiddleware, s.TracingMiddleware)

	r.HandleFunc(constants.EndpointHealth, s.HandleHealth).Methods(http.MethodGet)
	r.Handle(constants.EndpointMetrics, metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc(constants.EndpointRegister, s.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc(constants.EndpointSignIn, s.HandleSignIn).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(s.AuthMiddleware)
	api.HandleFunc(constants.EndpointCreate, s.HandleCreate).Methods(http.MethodPost)
	api.HandleFunc(constants.EndpointRemove, s.HandleRemove).Methods(http.MethodPost)
	api.HandleFunc(constants.EndpointJoin, s.HandleJoin).Methods(http.MethodPost)
	api.HandleFunc(constants.EndpointAuthorize, s.HandleAuthorize).Methods(http.MethodPost)
	api.HandleFunc(constants.EndpointLocation, s.HandleLocation).Methods(http.MethodPost)
	api.HandleFunc(constants.EndpointETA, s.HandleETA).Methods(http.MethodPut)
	api.HandleFunc(constants.EndpointSession, s.HandleGet).Methods(http.MethodGet)
	api.HandleFunc(constants.EndpointUser, s.HandleGetUser).Methods(http.MethodGet)
	api.HandleFunc(constants.EndpointFeed, s.HandleFeed).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = security.MaxBodySize(constants.MaxBodySize)(handler)
	handler = security.SecurityHeaders(handler)
	handler = CorsMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)
	return handler
}

func (s *Server) tlsEnabled() bool {
	if !s.cfg.EnableTLS {
		return false
	}
	if _, err := os.Stat(s.cfg.CertFile); err != nil {
		s.log.Warn().Str("cert_file", s.cfg.CertFile).Msg("ETA_ENABLE_TLS is true but the certificate was not found")
		return false
	}
	if _, err := os.Stat(s.cfg.KeyFile); err != nil {
		s.log.Warn().Str("key_file", s.cfg.KeyFile).Msg("ETA_ENABLE_TLS is true but the key was not found")
		return false
	}
	return true
}

// Run serves until ctx is done, then shuts down and closes the store.
func (s *Server) Run(ctx context.Context) error {
	useTLS := s.tlsEnabled()

	handler := s.Handler()
	if !useTLS {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           handler,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	guardCtx, stopGuard := context.WithCancel(context.Background())
	defer stopGuard()
	go s.bruteProtector.Run(guardCtx, constants.AuthCleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			s.log.Info().Str("addr", srv.Addr).Msg("HTTPS enabled (HTTP/2)")
			err = srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			s.log.Info().Str("addr", srv.Addr).Msg("HTTP mode (HTTP/2 cleartext enabled)")
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info().Str("version", constants.Version).Msg("eta server starting")

	select {
	case err := <-errCh:
		s.Cleanup()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("server forced to shutdown")
	}

	s.Cleanup()
	s.log.Info().Msg("server stopped")
	return nil
}

// Cleanup closes the store, which terminates any open feeds.
func (s *Server) Cleanup() {
	if err := s.store.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close session store")
	}
}
