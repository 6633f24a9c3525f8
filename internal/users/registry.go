package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"eta/internal/constants"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// Registry registers accounts and checks passwords against the stored
// bcrypt hashes.
type Registry struct {
	store Store
	cost  int
	clock clock.Clock
	log   zerolog.Logger

	// compared when the email is unknown so both failures cost one bcrypt run
	dummyHash []byte
}

// Option customizes a Registry.
type Option func(*Registry)

// WithBcryptCost sets the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(r *Registry) { r.cost = cost }
}

func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func NewRegistry(store Store, log zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		cost:  constants.BcryptCost,
		clock: clock.New(),
		log:   log.With().Str("component", "user-registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), r.cost)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to prepare dummy password hash")
	}
	r.dummyHash = hash
	return r
}

// Register creates an account. The username is optional.
func (r *Registry) Register(ctx context.Context, email, password, username string) (User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}
	username = strings.TrimSpace(username)
	if username != "" && !usernamePattern.MatchString(username) {
		return User{}, ErrInvalidUsername
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	rec := Record{
		User: User{
			Identifier: uuid.NewString(),
			Email:      email,
			Username:   username,
			CreatedAt:  r.clock.Now().UTC(),
		},
		PasswordHash: string(hash),
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return User{}, err
	}

	r.log.Info().Str("user_id", rec.Identifier).Msg("user registered")
	return rec.User, nil
}

// Authenticate returns the account for email when password matches.
// Unknown emails and wrong passwords fail the same way.
func (r *Registry) Authenticate(ctx context.Context, email, password string) (User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return User{}, ErrInvalidCredentials
	}

	rec, err := r.store.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		bcrypt.CompareHashAndPassword(r.dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return rec.User, nil
}

// Get returns the public view of an account.
func (r *Registry) Get(ctx context.Context, id string) (User, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	return rec.User, nil
}

// NormalizeEmail trims and lower-cases a bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ValidatePassword enforces the length bcrypt can hash.
func ValidatePassword(password string) error {
	if len(password) < constants.MinPasswordLength || len(password) > constants.MaxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
