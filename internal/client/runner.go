// Package client is the headless eta app: it hosts or joins sessions and
// streams the device location while a session needs it.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eta/internal/auth"
	"eta/internal/cloud"
	"eta/internal/config"
	"eta/internal/constants"
	"eta/internal/lifecycle"
	"eta/internal/location"
	"eta/internal/pending"
	"eta/internal/session"
	"eta/internal/users"
	"eta/internal/utils"
)

const (
	BackendRemote = "remote"
	BackendStore  = "store"
)

var ErrNoCredentials = errors.New("no account configured: set ETA_EMAIL and ETA_PASSWORD or pass -email and -password")

type Options struct {
	Config   *config.Config
	Email    string
	Password string
	Backend  string
	// Fixes feeds the replay location provider.
	Fixes io.Reader
	Out   io.Writer
	Clock clock.Clock
	Log   zerolog.Logger

	// Service overrides the backend selected by Backend.
	Service cloud.Service
}

type Runner struct {
	cfg      *config.Config
	email    string
	password string
	identity *auth.LocalIdentity
	service  cloud.Service
	feeds    location.Feeds
	pending  *pending.Controller
	printer  *Printer
	fixes    io.Reader
	clock    clock.Clock
	bag      lifecycle.Bag
	log      zerolog.Logger
}

// New builds a runner. Call SignIn or Register before running a command.
func New(opts Options) (*Runner, error) {
	if opts.Email == "" || opts.Password == "" {
		return nil, ErrNoCredentials
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Fixes == nil {
		opts.Fixes = os.Stdin
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	cfg := opts.Config
	log := opts.Log.With().Str("component", "client").Logger()

	r := &Runner{
		cfg:      cfg,
		email:    opts.Email,
		password: opts.Password,
		service:  opts.Service,
		pending:  pending.NewController(opts.Log),
		printer:  NewPrinter(opts.Out),
		fixes:    opts.Fixes,
		clock:    opts.Clock,
		log:      log,
	}

	if r.service == nil {
		switch opts.Backend {
		case BackendRemote, "":
			r.service = cloud.NewRemoteService(cfg.ServerURL, opts.Log)
		case BackendStore:
			r.service = r.localService(opts.Log)
		default:
			return nil, fmt.Errorf("unknown backend %q", opts.Backend)
		}
	}
	r.identity = auth.NewLocalIdentity(r.service).WithClock(opts.Clock)

	if svc, ok := r.service.(*cloud.StoreService); ok {
		r.feeds = svc.Feeds(r.identity)
	} else {
		feeds, err := cloud.NewFeedClient(cfg.ServerURL, r.identity, opts.Log)
		if err != nil {
			return nil, err
		}
		r.feeds = feeds
	}

	return r, nil
}

// localService runs the whole API in process. Tokens never leave the
// process, so a missing secret is replaced by a random one.
func (r *Runner) localService(log zerolog.Logger) *cloud.StoreService {
	secret := r.cfg.AuthSecret
	if secret == "" {
		secret = uuid.NewString()
	}
	store := session.NewStore(r.cfg, log)
	userStore := users.NewStore(r.cfg, log)
	r.bag.AddCloser(store)
	r.bag.AddCloser(userStore)

	issuer := auth.NewIssuer(secret, r.cfg.AuthIssuer, r.cfg.TokenTTL)
	return cloud.NewStoreService(store, cloud.NewAccounts(users.NewRegistry(userStore, log), issuer))
}

// SignIn signs the configured account in.
func (r *Runner) SignIn(ctx context.Context) error {
	user, err := r.identity.SignIn(ctx, r.email, r.password)
	if err != nil {
		return err
	}
	r.log.Info().Str("user_id", user).Msg("signed in")
	return nil
}

// Register creates the configured account and signs it in.
func (r *Runner) Register(ctx context.Context, username string) error {
	u, err := r.service.RegisterUser(ctx, r.email, r.password, username)
	if err != nil {
		return err
	}
	r.printer.Step(fmt.Sprintf("registered %s%s%s", ColorGreen, u.DisplayName(), ColorReset))
	return r.SignIn(ctx)
}

// Close releases the backend.
func (r *Runner) Close() error {
	return r.bag.Dispose()
}

// SignOut signs the local user out. A running Track stops.
func (r *Runner) SignOut() {
	r.identity.SignOut()
}

func (r *Runner) Printer() *Printer {
	return r.printer
}

// Host creates a session, prints how to join it and tracks until ctx is done.
func (r *Runner) Host(ctx context.Context, cfg session.Configuration, autoAuthorize bool) error {
	token, err := r.identity.Token(ctx)
	if err != nil {
		return err
	}
	s, err := r.service.CreateSession(ctx, token, cfg)
	if err != nil {
		return err
	}

	link := utils.ShareLink(r.cfg.ServerURL, s.Identifier)
	r.printer.Sep()
	r.printer.Field("session", s.Identifier, ColorCyan)
	r.printer.Field("share link", link, ColorYellow)
	r.printer.Field("expires", fmt.Sprintf("%s (%s)",
		s.ExpiresAt().Local().Format(constants.TimeFormatShort),
		utils.FormatDuration(s.Configuration.ExpiresAfter)), ColorReset)
	if s.Configuration.PrivateMode {
		r.printer.Field("mode", "private", ColorPurple)
	}
	r.printer.Sep()
	if err := r.printer.QR(link); err != nil {
		r.log.Warn().Err(err).Msg("failed to render share link")
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	if autoAuthorize {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.autoAuthorize(ctx, s.Identifier)
		}()
	}

	return r.Track(ctx)
}

// autoAuthorize authorizes the first subscriber that joins id.
func (r *Runner) autoAuthorize(ctx context.Context, id string) {
	sub, err := r.feeds.Subscribe(ctx, session.WithIdentifier(id), session.ObserveValue)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", id).Msg("failed to watch session")
		return
	}
	defer sub.Close()

	for ev := range sub.Events() {
		s := ev.Session
		if !s.HasSubscriber() || s.IsAuthorized() {
			continue
		}
		token, err := r.identity.Token(ctx)
		if err == nil {
			err = r.service.AuthorizeSession(ctx, token, id)
		}
		if err != nil {
			r.log.Error().Err(err).Str("session_id", id).Msg("failed to authorize subscriber")
			return
		}
		r.printer.Step(fmt.Sprintf("authorized %s%s%s", ColorGreen, r.displayName(ctx, s.SubscriberUserIdentifier), ColorReset))
		return
	}
}

// displayName looks up a user's name for printing, falling back to the identifier.
func (r *Runner) displayName(ctx context.Context, id string) string {
	token, err := r.identity.Token(ctx)
	if err != nil {
		return id
	}
	u, err := r.service.GetUser(ctx, token, id)
	if err != nil {
		r.log.Debug().Err(err).Str("user_id", id).Msg("failed to look up user")
		return id
	}
	return u.DisplayName()
}

// Join queues a session for joining and tracks until ctx is done. link is
// a share link or a bare session identifier.
func (r *Runner) Join(ctx context.Context, link string) error {
	id := utils.SessionIDFromLink(link)
	if id == "" {
		return fmt.Errorf("%w: %q", session.ErrSessionNotFound, link)
	}
	r.pending.Add(id)
	return r.Track(ctx)
}

// Track runs the location controller until ctx is done, the user signs out
// or a change feed fails.
func (r *Runner) Track(ctx context.Context) error {
	user, ok := r.identity.CurrentUser()
	if !ok {
		return auth.ErrSignedOut
	}

	provider := location.NewReplayProvider(r.fixes, r.cfg.ReplayInterval, r.clock, r.log)
	ctrl := location.NewController(location.Options{
		UserID:   user,
		Feeds:    r.feeds,
		Tokens:   r.identity,
		Writer:   r.service,
		Provider: provider,
		Clock:    r.clock,
		Window:   r.cfg.ThrottleWindow,
		Logger:   r.log,
	})

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	changes, stopChanges := r.identity.StateChanges()
	defer stopChanges()

	wg.Add(3)
	go func() {
		defer wg.Done()
		r.watchIdentity(ctx, changes, user, ctrl)
	}()
	go func() {
		defer wg.Done()
		r.runJoiner(ctx)
	}()
	go func() {
		defer wg.Done()
		r.watchStatus(ctx, ctrl)
	}()

	err := ctrl.Run(ctx)
	ctrl.Wait()
	r.printer.Status(ctrl.Status())
	return err
}

// watchIdentity stops the controller once user is no longer signed in.
func (r *Runner) watchIdentity(ctx context.Context, changes <-chan string, user string, ctrl *location.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case current, ok := <-changes:
			if !ok {
				return
			}
			if current != user {
				r.log.Info().Str("user_id", user).Msg("signed out, stopping location sharing")
				ctrl.Close()
				return
			}
		}
	}
}

// runJoiner joins every session handed to the pending controller.
func (r *Runner) runJoiner(ctx context.Context) {
	ids, cancel := r.pending.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ids:
			if !ok {
				return
			}
			r.join(ctx, id)
		}
	}
}

func (r *Runner) join(ctx context.Context, id string) {
	token, err := r.identity.Token(ctx)
	if err == nil {
		err = r.service.JoinSession(ctx, token, id)
	}
	if err != nil {
		r.log.Error().Err(err).Str("session_id", id).Msg("failed to join session")
		r.printer.Error(fmt.Errorf("join %s: %w", id, err))
		return
	}
	r.log.Info().Str("session_id", id).Msg("joined session")
	r.printer.Step("joined " + id + ", waiting for the host to authorize")
}

func (r *Runner) watchStatus(ctx context.Context, ctrl *location.Controller) {
	ticker := r.clock.Ticker(time.Second)
	defer ticker.Stop()

	var last location.Status
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if st := ctrl.Status(); st != last {
				last = st
				r.printer.Status(st)
			}
		}
	}
}

// Authorize lets the subscriber of id see the host's location.
func (r *Runner) Authorize(ctx context.Context, id string) error {
	token, err := r.identity.Token(ctx)
	if err != nil {
		return err
	}
	if err := r.service.AuthorizeSession(ctx, token, utils.SessionIDFromLink(id)); err != nil {
		return err
	}
	r.printer.Step("authorized " + id)
	return nil
}

// Remove ends a hosted session.
func (r *Runner) Remove(ctx context.Context, id string) error {
	token, err := r.identity.Token(ctx)
	if err != nil {
		return err
	}
	if err := r.service.RemoveSession(ctx, token, utils.SessionIDFromLink(id)); err != nil {
		return err
	}
	r.printer.Step("removed " + id)
	return nil
}
