package security

import (
	"net/http"
	"regexp"
	"strings"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidateSessionID checks the identifier has the UUID shape sessions are created with.
func ValidateSessionID(id string) bool {
	if id == "" {
		return false
	}
	return uuidRegex.MatchString(strings.ToLower(id))
}

// ValidateUserID rejects empty identifiers and control characters.
func ValidateUserID(id string) bool {
	if strings.TrimSpace(id) == "" || len(id) > 256 {
		return false
	}
	for _, r := range id {
		if r < 32 || r == 127 {
			return false
		}
	}
	return true
}

// MaxBodySize middleware limits request body size
func MaxBodySize(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}
