package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"eta/internal/constants"
	"eta/internal/metrics"
	"eta/internal/protocol"
	"eta/internal/security"
	"eta/internal/session"
)

// HandleFeed streams a session change feed over a websocket. Access is
// checked before the upgrade so refusals come back as regular API errors.
func (s *Server) HandleFeed(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)
	if !s.connLimiter.TryConnect(clientIP) {
		s.audit.LogConnectionLimit(clientIP)
		writeErrorMessage(w, http.StatusTooManyRequests, "feed_limit", constants.MsgFeedLimit)
		return
	}
	defer s.connLimiter.Disconnect(clientIP)

	params := r.URL.Query()
	events, err := session.ParseObservedEvents(params.Get("events"))
	if err != nil {
		writeError(w, err)
		return
	}
	q := session.Query{By: session.QueryField(params.Get("by")), Value: params.Get("value")}

	// Hijacked connections outlive the request context's cancellation, so the
	// feed gets its own and the read pump cancels it when the peer goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	user := userFrom(r.Context())
	sub, err := s.ops.Subscribe(ctx, user, q, events)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("ip", clientIP).Msg("feed upgrade failed")
		return
	}
	defer conn.Close()

	metrics.ActiveFeeds.Inc()
	defer metrics.ActiveFeeds.Dec()

	log := s.log.With().Str("user_id", user).Str("query", q.String()).Logger()
	log.Debug().Str("events", events.String()).Msg("feed opened")

	go func() {
		defer cancel()
		conn.SetReadLimit(constants.FeedReadLimit)
		conn.SetReadDeadline(time.Now().Add(constants.FeedPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(constants.FeedPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(constants.FeedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				closeFeed(conn, sub.Err())
				log.Debug().AnErr("reason", sub.Err()).Msg("feed closed")
				return
			}
			frame, err := protocol.NewFeedFrame(ev)
			if err != nil {
				log.Error().Err(err).Str("session_id", ev.Session.Identifier).Msg("failed to encode feed frame")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(constants.FeedWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug().Err(err).Msg("feed write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(constants.FeedWriteWait)); err != nil {
				return
			}
		}
	}
}

// closeFeed tells the peer why its feed ended.
func closeFeed(conn *websocket.Conn, err error) {
	code, text := websocket.CloseNormalClosure, ""
	switch {
	case err == nil:
	case errors.Is(err, session.ErrFeedOverflow):
		code, text = constants.FeedCloseOverflow, err.Error()
	case errors.Is(err, session.ErrStoreClosed):
		code, text = constants.FeedCloseStoreClosed, err.Error()
	default:
		code, text = websocket.CloseInternalServerErr, http.StatusText(http.StatusInternalServerError)
	}
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(constants.FeedWriteWait))
}
