package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"eta/internal/constants"
	"eta/internal/protocol"
	"eta/internal/security"
	"eta/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: protocol.ErrorBody{Code: code, Message: message}})
}

// writeError maps err to its API code. Internal failures are not echoed back.
func writeError(w http.ResponseWriter, err error) {
	code, status := protocol.ErrorCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeErrorMessage(w, status, code, message)
}

// decodeBody decodes the JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeErrorMessage(w, http.StatusBadRequest, protocol.CodeInvalidJSON, constants.MsgInvalidJSON)
		return false
	}
	return true
}

// sessionID reads the {id} route variable. Malformed identifiers cannot name a session.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if !security.ValidateSessionID(id) {
		writeError(w, session.ErrSessionNotFound)
		return "", false
	}
	return id, true
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Version: constants.Version})
}

func (s *Server) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var cfg session.Configuration
	if !decodeBody(w, r, &cfg) {
		return
	}

	user := userFrom(r.Context())
	created, err := s.ops.Create(r.Context(), user, cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info().
		Str("session_id", created.Identifier).
		Str("user_id", user).
		Dur("expires_after", created.Configuration.ExpiresAfter).
		Msg("session created")
	writeJSON(w, http.StatusOK, protocol.CreateResponse{Name: created.Identifier, Session: created})
}

func (s *Server) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.ops.Get(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	user := userFrom(r.Context())
	if err := s.ops.Remove(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.LogSessionRemoved(security.GetClientIP(r), id, user)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := s.ops.Join(r.Context(), userFrom(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	user := userFrom(r.Context())
	if err := s.ops.Authorize(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.LogSessionAuthorized(security.GetClientIP(r), id, user)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req protocol.LocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ops.WriteLocation(r.Context(), userFrom(r.Context()), id, req.UserIdentifier, req.Location); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleETA(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var eta session.ETA
	if !decodeBody(w, r, &eta) {
		return
	}
	if err := s.ops.SetETA(r.Context(), userFrom(r.Context()), id, eta); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
