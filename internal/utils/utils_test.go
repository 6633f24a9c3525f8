package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1 minute", FormatDuration(time.Minute))
	assert.Equal(t, "45 minutes", FormatDuration(45*time.Minute))
	assert.Equal(t, "1 hour", FormatDuration(time.Hour))
	assert.Equal(t, "3 hours", FormatDuration(3*time.Hour))
	assert.Equal(t, "1 hour 30 minutes", FormatDuration(90*time.Minute))
	assert.Equal(t, "2 hours 5 minutes", FormatDuration(125*time.Minute))
}

func TestNormalizeServerURL(t *testing.T) {
	u, skip := NormalizeServerURL("https://localhost:8443/")
	assert.Equal(t, "https://localhost:8443", u)
	assert.True(t, skip)

	u, skip = NormalizeServerURL("https://eta.example.com")
	assert.Equal(t, "https://eta.example.com", u)
	assert.False(t, skip)

	_, skip = NormalizeServerURL("http://127.0.0.1:8080")
	assert.False(t, skip)
}

func TestWebSocketURL(t *testing.T) {
	u, err := WebSocketURL("http://localhost:8080/", "/ws/sessions")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/sessions", u)

	u, err = WebSocketURL("https://eta.example.com/api", "/ws/sessions")
	require.NoError(t, err)
	assert.Equal(t, "wss://eta.example.com/api/ws/sessions", u)

	_, err = WebSocketURL("ftp://eta.example.com", "/ws/sessions")
	assert.Error(t, err)
}

func TestShareLinks(t *testing.T) {
	link := ShareLink("https://eta.example.com/", "abc-123")
	assert.Equal(t, "https://eta.example.com/join/abc-123", link)
	assert.Equal(t, "abc-123", SessionIDFromLink(link))
	assert.Equal(t, "abc-123", SessionIDFromLink("  abc-123 "))
	assert.Equal(t, "abc-123", SessionIDFromLink("https://eta.example.com/join/abc-123/"))
}
