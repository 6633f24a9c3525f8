package session

import (
	"encoding/json"
	"time"

	"eta/internal/constants"
)

// Status is the authorization state of a session's subscriber.
type Status int

const (
	StatusUnauthorized Status = iota
	StatusAuthorized
)

func (s Status) String() string {
	if s == StatusAuthorized {
		return "authorized"
	}
	return "unauthorized"
}

// Configuration is fixed when a session is created.
type Configuration struct {
	ExpiresAfter time.Duration
	PrivateMode  bool
}

// DefaultConfiguration returns the configuration used when a caller provides none.
func DefaultConfiguration() Configuration {
	return Configuration{
		ExpiresAfter: constants.DefaultExpiresAfter,
		PrivateMode:  constants.DefaultPrivateMode,
	}
}

type configurationJSON struct {
	ExpiresAfter float64 `json:"expiresAfter"`
	PrivateMode  bool    `json:"privateMode"`
}

func (c Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(configurationJSON{
		ExpiresAfter: c.ExpiresAfter.Seconds(),
		PrivateMode:  c.PrivateMode,
	})
}

func (c *Configuration) UnmarshalJSON(data []byte) error {
	var raw configurationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ExpiresAfter = time.Duration(raw.ExpiresAfter * float64(time.Second))
	c.PrivateMode = raw.PrivateMode
	return nil
}

// ETA is an arrival estimate produced by a routing service.
type ETA struct {
	Activity    int
	Date        time.Time
	Description string
	Duration    time.Duration
}

type etaJSON struct {
	Activity    int       `json:"activity"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Duration    float64   `json:"duration"`
}

func (e ETA) MarshalJSON() ([]byte, error) {
	return json.Marshal(etaJSON{
		Activity:    e.Activity,
		Date:        e.Date,
		Description: e.Description,
		Duration:    e.Duration.Seconds(),
	})
}

func (e *ETA) UnmarshalJSON(data []byte) error {
	var raw etaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Activity = raw.Activity
	e.Date = raw.Date
	e.Description = raw.Description
	e.Duration = time.Duration(raw.Duration * float64(time.Second))
	return nil
}

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Location is a single position fix.
type Location struct {
	Coordinate Coordinate `json:"coordinate"`
	Date       time.Time  `json:"date"`
}

// Session is one location sharing relationship between a host and at most one subscriber.
type Session struct {
	Identifier               string              `json:"identifier"`
	HostUserIdentifier       string              `json:"userIdentifier"`
	SubscriberUserIdentifier string              `json:"subscriberIdentifier,omitempty"`
	Configuration            Configuration       `json:"configuration"`
	Status                   Status              `json:"status"`
	StartDate                time.Time           `json:"startDate"`
	LastUpdated              time.Time           `json:"lastUpdated"`
	ETA                      *ETA                `json:"eta,omitempty"`
	Locations                map[string]Location `json:"locations,omitempty"`
}

func (s Session) HasSubscriber() bool {
	return s.SubscriberUserIdentifier != ""
}

func (s Session) IsAuthorized() bool {
	return s.Status == StatusAuthorized
}

// IsParticipant reports whether user is the host or the subscriber.
func (s Session) IsParticipant(user string) bool {
	return user != "" && (user == s.HostUserIdentifier || user == s.SubscriberUserIdentifier)
}

func (s Session) ExpiresAt() time.Time {
	return s.StartDate.Add(s.Configuration.ExpiresAfter)
}

func (s Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt())
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	out := s
	if s.ETA != nil {
		eta := *s.ETA
		out.ETA = &eta
	}
	if s.Locations != nil {
		out.Locations = make(map[string]Location, len(s.Locations))
		for k, v := range s.Locations {
			out.Locations[k] = v
		}
	}
	return out
}
