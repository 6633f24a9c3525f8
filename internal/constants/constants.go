package constants

import (
	"time"
)

const Version = "0.3.0"

// Network defaults
const (
	CleanupInterval = 30 * time.Second
	RequestTimeout  = 15 * time.Second
	MaxBodySize     = 64 * 1024
)

// Session settings
const (
	DefaultExpiresAfter = time.Hour
	MinExpiresAfter     = time.Minute
	MaxExpiresAfter     = 24 * time.Hour
	DefaultPrivateMode  = true
)

// Location pipeline
const (
	ThrottleWindow      = 10 * time.Second
	WriteTimeout        = 10 * time.Second
	AuthorizeTimeout    = 10 * time.Second
	DesiredAccuracy     = 10.0 // meters
	ReplayInterval      = time.Second
	ProviderFixesBuffer = 16
)

// Change feed
const (
	FeedBufferSize       = 256
	FeedWriteWait        = 10 * time.Second
	FeedPongWait         = 60 * time.Second
	FeedPingPeriod       = (FeedPongWait * 9) / 10
	FeedReadLimit        = 64 * 1024
	WSBufferSize         = 16 * 1024
	WSHandshakeTimeout   = 10 * time.Second
	FeedCloseOverflow    = 4001
	FeedCloseStoreClosed = 4002
	MaxFeedsPerIP        = 20
	PendingBufferSize    = 8
	StateChangeBuffer    = 4
	RedisTxRetries       = 8
	RedisScanBatch       = 100
	RedisKeyPrefix       = "eta:session:"
	RedisEventsChannel   = "eta:sessions:events"
	RedisUserKeyPrefix   = "eta:user:"
	RedisEmailKeyPrefix  = "eta:user:email:"
	TokenRefreshSkew     = time.Minute
	DefaultTokenTTL      = time.Hour
	DefaultTokenIssuer   = "eta"
	AuthorizationHeader  = "Authorization"
	BearerPrefix         = "Bearer "
	ContentTypeJSON      = "application/json"
	DefaultClientService = "eta-client"
)

// Security
const (
	MaxAuthAttempts       = 5
	AuthBlockDuration     = 15 * time.Minute
	AuthCleanupInterval   = 5 * time.Minute
	MaxAuditLogsPerMinute = 600
	TrustedProxiesEnv     = "ETA_TRUSTED_PROXIES"
	BcryptCost            = 12
	MinPasswordLength     = 8
	MaxPasswordLength     = 72
)

// API endpoints
const (
	EndpointCreate    = "/session/v1/create"
	EndpointSession   = "/session/v1/{id}"
	EndpointRemove    = "/session/v1/remove/{id}"
	EndpointJoin      = "/session/v1/join/{id}"
	EndpointAuthorize = "/session/v1/authorize/{id}"
	EndpointLocation  = "/session/v1/location/{id}"
	EndpointETA       = "/session/v1/eta/{id}"
	EndpointRegister  = "/user/v1/register"
	EndpointUser      = "/user/v1/{id}"
	EndpointSignIn    = "/auth/v1/signin"
	EndpointFeed      = "/ws/sessions"
	EndpointHealth    = "/healthz"
	EndpointMetrics   = "/metrics"
	ShareLinkPath     = "/join/"
)

// Time formats
const (
	TimeFormatShort = "15:04:05"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
	ColorPurple = "\033[35m"
)

// Messages
const (
	MsgInvalidJSON  = "Invalid JSON"
	MsgUnauthorized = "Missing or invalid bearer token"
	MsgFeedLimit    = "Feed connection limit exceeded"
	MsgUsage        = "Usage: eta-client [flags] <register|host|join|track|authorize|remove> [session]"
	MsgExample      = "Example: ETA_EMAIL=me@example.com ETA_PASSWORD=... eta-client -fixes route.csv -auto-authorize host"
)
