package security

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"eta/internal/constants"
)

// AuditLogger writes security relevant events to a dedicated logger, capped
// per minute so a flood of bad requests cannot drown the log.
type AuditLogger struct {
	mu          sync.Mutex
	log         zerolog.Logger
	clock       clock.Clock
	count       int
	windowStart time.Time
}

func NewAuditLogger(log zerolog.Logger, clk clock.Clock) *AuditLogger {
	if clk == nil {
		clk = clock.New()
	}
	return &AuditLogger{
		log:         log.With().Str("component", "audit").Logger(),
		clock:       clk,
		windowStart: clk.Now(),
	}
}

// allow reports whether another entry fits in the current window.
func (al *AuditLogger) allow() bool {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.clock.Now()
	if now.Sub(al.windowStart) > time.Minute {
		al.windowStart = now
		al.count = 0
	}
	if al.count >= constants.MaxAuditLogsPerMinute {
		return false
	}
	al.count++
	return true
}

func (al *AuditLogger) event(level zerolog.Level, eventType, ip string) *zerolog.Event {
	if !al.allow() {
		return nil
	}
	return al.log.WithLevel(level).Str("event_type", eventType).Str("ip", ip)
}

func (al *AuditLogger) LogAuthFailure(ip, reason string) {
	if e := al.event(zerolog.WarnLevel, "auth_failure", ip); e != nil {
		e.Str("details", reason).Msg("authentication failed")
	}
}

func (al *AuditLogger) LogBruteForce(ip string, attempts int) {
	if e := al.event(zerolog.WarnLevel, "brute_force", ip); e != nil {
		e.Int("attempts", attempts).Msg("client blocked after repeated authentication failures")
	}
}

func (al *AuditLogger) LogConnectionLimit(ip string) {
	if e := al.event(zerolog.WarnLevel, "connection_limit", ip); e != nil {
		e.Msg("feed connection limit exceeded")
	}
}

func (al *AuditLogger) LogSessionRemoved(ip, sessionID, user string) {
	if e := al.event(zerolog.InfoLevel, "session_removed", ip); e != nil {
		e.Str("session_id", sessionID).Str("user_id", user).Msg("session removed")
	}
}

func (al *AuditLogger) LogSessionAuthorized(ip, sessionID, user string) {
	if e := al.event(zerolog.InfoLevel, "session_authorized", ip); e != nil {
		e.Str("session_id", sessionID).Str("user_id", user).Msg("subscriber authorized")
	}
}

func (al *AuditLogger) LogUserRegistered(ip, user string) {
	if e := al.event(zerolog.InfoLevel, "user_registered", ip); e != nil {
		e.Str("user_id", user).Msg("user registered")
	}
}

func (al *AuditLogger) LogSignIn(ip, user string) {
	if e := al.event(zerolog.InfoLevel, "sign_in", ip); e != nil {
		e.Str("user_id", user).Msg("user signed in")
	}
}
