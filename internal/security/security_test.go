package security

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eta/internal/constants"
)

func TestConnectionLimiter(t *testing.T) {
	cl := NewConnectionLimiter(2)
	assert.True(t, cl.TryConnect("1.2.3.4"))
	assert.True(t, cl.TryConnect("1.2.3.4"))
	assert.False(t, cl.TryConnect("1.2.3.4"))
	assert.True(t, cl.TryConnect("5.6.7.8"))

	cl.Disconnect("1.2.3.4")
	assert.Equal(t, 1, cl.Count("1.2.3.4"))
	assert.True(t, cl.TryConnect("1.2.3.4"))

	cl.Disconnect("9.9.9.9")
	assert.Equal(t, 0, cl.Count("9.9.9.9"))
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", GetClientIP(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.2:5000"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "198.51.100.2", GetClientIP(r), "untrusted peers cannot spoof")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:1"
	r.Header.Set("X-Real-Ip", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", GetClientIP(r))
}

func TestBruteForceProtector(t *testing.T) {
	clk := clock.NewMock()
	bf := NewBruteForceProtector(3, time.Minute, clk)

	assert.True(t, bf.Check("ip"))
	bf.RecordFailure("ip")
	bf.RecordFailure("ip")
	assert.True(t, bf.Check("ip"))
	assert.Equal(t, 3, bf.RecordFailure("ip"))
	assert.False(t, bf.Check("ip"))

	clk.Add(59 * time.Second)
	assert.False(t, bf.Check("ip"))
	clk.Add(2 * time.Second)
	assert.True(t, bf.Check("ip"))

	bf.RecordFailure("other")
	bf.RecordSuccess("other")
	assert.True(t, bf.Check("other"))
}

func TestBruteForceProtectorPrunes(t *testing.T) {
	clk := clock.NewMock()
	bf := NewBruteForceProtector(1, time.Minute, clk)
	bf.RecordFailure("ip")
	require.Equal(t, 1, bf.tracked())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bf.Run(ctx, 30*time.Second)

	require.Eventually(t, func() bool {
		clk.Add(30 * time.Second)
		return bf.tracked() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidateSessionID("0b1c5a0e-3c1f-4d2a-9d8e-1f2a3b4c5d6e"))
	assert.True(t, ValidateSessionID("0B1C5A0E-3C1F-4D2A-9D8E-1F2A3B4C5D6E"))
	assert.False(t, ValidateSessionID(""))
	assert.False(t, ValidateSessionID("../etc/passwd"))

	assert.True(t, ValidateUserID("alice"))
	assert.False(t, ValidateUserID("  "))
	assert.False(t, ValidateUserID("bad\x00id"))
	assert.False(t, ValidateUserID(strings.Repeat("a", 300)))
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	require.Error(t, readErr)
	assert.Contains(t, readErr.Error(), "too large")
}

func TestAuditLoggerCapsPerMinute(t *testing.T) {
	var buf bytes.Buffer
	clk := clock.NewMock()
	al := NewAuditLogger(zerolog.New(&buf), clk)

	for i := 0; i < constants.MaxAuditLogsPerMinute+5; i++ {
		al.LogAuthFailure("1.2.3.4", "bad token")
	}
	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, constants.MaxAuditLogsPerMinute, lines)

	clk.Add(61 * time.Second)
	al.LogConnectionLimit("1.2.3.4")
	al.LogSignIn("1.2.3.4", "alice")
	assert.Contains(t, buf.String(), `"event_type":"connection_limit"`)
	assert.Contains(t, buf.String(), `"event_type":"sign_in"`)
	assert.Contains(t, buf.String(), `"component":"audit"`)
}
