// Package users keeps the registered accounts that sign in to eta.
package users

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be 8-72 characters")
	ErrInvalidUsername    = errors.New("username must be 3-20 letters, digits or underscores")
)

// User is the public view of an account.
type User struct {
	Identifier string    `json:"identifier"`
	Email      string    `json:"email,omitempty"`
	Username   string    `json:"username,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DisplayName is the username, or the email when no username was chosen.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.Email != "" {
		return u.Email
	}
	return u.Identifier
}

// Record is a stored account. PasswordHash never leaves the server.
type Record struct {
	User
	PasswordHash string `json:"passwordHash"`
}
