package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionWireFormat(t *testing.T) {
	start := time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC)
	s := Session{
		Identifier:               "s1",
		HostUserIdentifier:       "alice",
		SubscriberUserIdentifier: "bob",
		Configuration:            Configuration{ExpiresAfter: 90 * time.Minute, PrivateMode: true},
		Status:                   StatusAuthorized,
		StartDate:                start,
		LastUpdated:              start,
		ETA:                      &ETA{Activity: 2, Date: start, Description: "by car", Duration: 15 * time.Minute},
	}

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "alice", generic["userIdentifier"])
	assert.Equal(t, "bob", generic["subscriberIdentifier"])
	assert.Equal(t, float64(1), generic["status"])
	assert.Equal(t, float64(5400), generic["configuration"].(map[string]any)["expiresAfter"])
	assert.Equal(t, float64(900), generic["eta"].(map[string]any)["duration"])

	var back Session
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, s.Configuration, back.Configuration)
	assert.Equal(t, 15*time.Minute, back.ETA.Duration)
}

func TestSessionWithoutSubscriberOmitsField(t *testing.T) {
	raw, err := json.Marshal(Session{Identifier: "s1", HostUserIdentifier: "alice"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "subscriberIdentifier")
	assert.NotContains(t, string(raw), `"eta"`)
}

func TestSessionExpiry(t *testing.T) {
	start := time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC)
	s := Session{StartDate: start, Configuration: Configuration{ExpiresAfter: time.Hour}}

	assert.False(t, s.IsExpired(start.Add(59*time.Minute)))
	assert.True(t, s.IsExpired(start.Add(61*time.Minute)))
}

func TestCloneDoesNotShareLocations(t *testing.T) {
	s := Session{Locations: map[string]Location{"alice": {Coordinate: Coordinate{Latitude: 1}}}, ETA: &ETA{Activity: 1}}
	c := s.Clone()
	c.Locations["alice"] = Location{Coordinate: Coordinate{Latitude: 2}}
	c.ETA.Activity = 3

	assert.Equal(t, 1.0, s.Locations["alice"].Coordinate.Latitude)
	assert.Equal(t, 1, s.ETA.Activity)
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, Coordinate{Latitude: 51.5, Longitude: -0.12}.Valid())
	assert.False(t, Coordinate{Latitude: 91}.Valid())
	assert.False(t, Coordinate{Longitude: -181}.Valid())
}
