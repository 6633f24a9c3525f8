package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eta/internal/constants"
)

// errUnchanged tells an update helper the mutation is a successful no-op.
var errUnchanged = errors.New("unchanged")

func validateConfiguration(cfg Configuration) (Configuration, error) {
	if cfg.ExpiresAfter == 0 {
		cfg.ExpiresAfter = constants.DefaultExpiresAfter
	}
	if cfg.ExpiresAfter < constants.MinExpiresAfter || cfg.ExpiresAfter > constants.MaxExpiresAfter {
		return cfg, fmt.Errorf("%w: expiresAfter %s outside [%s, %s]",
			ErrInvalidConfig, cfg.ExpiresAfter, constants.MinExpiresAfter, constants.MaxExpiresAfter)
	}
	return cfg, nil
}

func newSession(host string, cfg Configuration, now time.Time) (Session, error) {
	if host == "" {
		return Session{}, ErrNotHost
	}
	cfg, err := validateConfiguration(cfg)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Identifier:         uuid.NewString(),
		HostUserIdentifier: host,
		Configuration:      cfg,
		Status:             StatusUnauthorized,
		StartDate:          now,
		LastUpdated:        now,
	}, nil
}

func applyJoin(s *Session, subscriber string, now time.Time) error {
	switch {
	case subscriber == "":
		return ErrNotParticipant
	case subscriber == s.HostUserIdentifier:
		return ErrJoinOwnSession
	case s.SubscriberUserIdentifier == subscriber:
		return errUnchanged
	case s.HasSubscriber():
		return ErrSessionFull
	}
	s.SubscriberUserIdentifier = subscriber
	s.Status = StatusUnauthorized
	s.LastUpdated = now
	return nil
}

func applyAuthorize(s *Session, host string, now time.Time) error {
	if host != s.HostUserIdentifier {
		return ErrNotHost
	}
	if !s.HasSubscriber() {
		return ErrNoSubscriber
	}
	if s.Status == StatusAuthorized {
		return errUnchanged
	}
	s.Status = StatusAuthorized
	s.LastUpdated = now
	return nil
}

func applyWriteLocation(s *Session, user string, loc Location, now time.Time) error {
	if !loc.Coordinate.Valid() {
		return ErrInvalidLocation
	}
	switch {
	case user == s.HostUserIdentifier:
	case user != "" && user == s.SubscriberUserIdentifier:
		if !s.IsAuthorized() {
			return ErrNotAuthorized
		}
	default:
		return ErrNotParticipant
	}
	if loc.Date.IsZero() {
		loc.Date = now
	}
	if s.Locations == nil {
		s.Locations = make(map[string]Location)
	}
	s.Locations[user] = loc
	s.LastUpdated = now
	return nil
}

func applyETA(s *Session, eta ETA, now time.Time) error {
	s.ETA = &eta
	s.LastUpdated = now
	return nil
}

func checkRemove(s Session, host string) error {
	if host != s.HostUserIdentifier {
		return ErrNotHost
	}
	return nil
}
