package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"eta/internal/constants"
	"eta/internal/protocol"
	"eta/internal/security"
	"eta/internal/users"
)

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := s.accounts.Register(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit.LogUserRegistered(security.GetClientIP(r), u.Identifier)
	writeJSON(w, http.StatusCreated, u)
}

// HandleSignIn exchanges email and password for a bearer token. Wrong
// credentials count towards the same per-IP block as bad tokens.
func (s *Server) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)
	if !s.bruteProtector.Check(clientIP) {
		writeErrorMessage(w, http.StatusTooManyRequests, "too_many_attempts", "Too many failed authentication attempts")
		return
	}

	var req protocol.SignInRequest
	if !decodeBody(w, r, &req) {
		return
	}

	grant, u, err := s.accounts.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		attempts := s.bruteProtector.RecordFailure(clientIP)
		s.audit.LogAuthFailure(clientIP, err.Error())
		if attempts == constants.MaxAuthAttempts {
			s.audit.LogBruteForce(clientIP, attempts)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.bruteProtector.RecordSuccess(clientIP)
	s.audit.LogSignIn(clientIP, u.Identifier)

	writeJSON(w, http.StatusOK, protocol.SignInResponse{Token: grant.Token, ExpiresAt: grant.ExpiresAt, User: u})
}

func (s *Server) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !security.ValidateUserID(id) {
		writeError(w, users.ErrUserNotFound)
		return
	}
	u, err := s.accounts.Get(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
