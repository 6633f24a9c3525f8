package cloud

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"eta/internal/auth"
	"eta/internal/constants"
	"eta/internal/metrics"
	"eta/internal/protocol"
	"eta/internal/session"
	"eta/internal/utils"
)

// FeedClient opens change feeds against a remote session server. Every
// subscription gets its own websocket.
type FeedClient struct {
	wsURL  string
	tokens auth.TokenSource
	dialer *websocket.Dialer
	log    zerolog.Logger
}

func NewFeedClient(serverURL string, tokens auth.TokenSource, log zerolog.Logger) (*FeedClient, error) {
	serverURL, skipTLSVerify := utils.NormalizeServerURL(serverURL)
	wsURL, err := utils.WebSocketURL(serverURL, constants.EndpointFeed)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		ReadBufferSize:    constants.WSBufferSize,
		WriteBufferSize:   constants.WSBufferSize,
		EnableCompression: false,
		HandshakeTimeout:  constants.WSHandshakeTimeout,
		Proxy:             http.ProxyFromEnvironment,
	}
	if skipTLSVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &FeedClient{
		wsURL:  wsURL,
		tokens: tokens,
		dialer: dialer,
		log:    log.With().Str("component", "feed-client").Logger(),
	}, nil
}

func (f *FeedClient) Subscribe(ctx context.Context, q session.Query, events session.ObservedEvents) (session.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("by", string(q.By))
	params.Set("value", q.Value)
	params.Set("events", events.String())

	header := http.Header{}
	header.Set(constants.AuthorizationHeader, constants.BearerPrefix+token)

	conn, resp, err := f.dialer.DialContext(ctx, f.wsURL+"?"+params.Encode(), header)
	if err != nil {
		return nil, dialError(resp, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	conn.SetReadLimit(constants.FeedReadLimit)

	sub := &feedSubscription{
		conn:  conn,
		query: q,
		ch:    make(chan session.Event, constants.FeedBufferSize),
		done:  make(chan struct{}),
		log:   f.log.With().Str("query", q.String()).Logger(),
	}
	go sub.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// dialError maps a failed handshake to the API error it carried, if any.
func dialError(resp *http.Response, err error) error {
	if resp == nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer resp.Body.Close()

	var apiErr protocol.ErrorResponse
	if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Code != "" {
		if sentinel := protocol.CodeError(apiErr.Error.Code); sentinel != nil {
			return fmt.Errorf("dial feed: %w", sentinel)
		}
		return fmt.Errorf("dial feed: %s (%s)", apiErr.Error.Message, apiErr.Error.Code)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("dial feed: server not found (404)")
	case http.StatusTooManyRequests:
		return fmt.Errorf("dial feed: %s", constants.MsgFeedLimit)
	default:
		return fmt.Errorf("dial feed: status %d: %w", resp.StatusCode, err)
	}
}

type feedSubscription struct {
	conn  *websocket.Conn
	query session.Query
	ch    chan session.Event
	done  chan struct{}
	log   zerolog.Logger

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *feedSubscription) Events() <-chan session.Event { return s.ch }

func (s *feedSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *feedSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(constants.FeedWriteWait))
	return s.conn.Close()
}

func (s *feedSubscription) readLoop() {
	defer close(s.ch)

	s.conn.SetReadDeadline(time.Now().Add(constants.FeedPongWait))
	s.conn.SetPingHandler(func(data string) error {
		s.conn.SetReadDeadline(time.Now().Add(constants.FeedPongWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(constants.FeedWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(constants.FeedPongWait))

		var frame protocol.FeedFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			metrics.DecodeDrops.Inc()
			s.log.Warn().Err(err).Msg("dropping malformed feed frame")
			continue
		}
		ev, err := frame.Event()
		if err != nil {
			metrics.DecodeDrops.Inc()
			s.log.Warn().Err(err).Str("session_id", frame.ID).Msg("dropping undecodable session")
			continue
		}

		select {
		case s.ch <- ev:
		case <-s.done:
			s.finish(nil)
			return
		}
	}
}

// finish records why the feed ended. A local Close ends it cleanly.
func (s *feedSubscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.err = feedError(err)
	s.conn.Close()
	s.log.Debug().Err(s.err).Msg("feed ended")
}

func feedError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case constants.FeedCloseOverflow:
			return session.ErrFeedOverflow
		case constants.FeedCloseStoreClosed:
			return session.ErrStoreClosed
		case websocket.CloseNormalClosure:
			return fmt.Errorf("feed closed by server: %s", closeErr.Text)
		}
	}
	return fmt.Errorf("feed connection lost: %w", err)
}
