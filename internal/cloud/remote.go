package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"eta/internal/auth"
	"eta/internal/constants"
	"eta/internal/protocol"
	"eta/internal/session"
	"eta/internal/users"
)

// RemoteService talks to the session server over HTTP.
type RemoteService struct {
	client *resty.Client
	log    zerolog.Logger
}

func NewRemoteService(baseURL string, log zerolog.Logger) *RemoteService {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(constants.RequestTimeout).
		SetHeader("User-Agent", "eta-client/"+constants.Version).
		SetHeader("Content-Type", constants.ContentTypeJSON)

	return &RemoteService{
		client: client,
		log:    log.With().Str("component", "remote-service").Logger(),
	}
}

func (r *RemoteService) RegisterUser(ctx context.Context, email, password, username string) (users.User, error) {
	var result users.User
	resp, err := r.public(ctx).
		SetBody(protocol.RegisterRequest{Email: email, Password: password, Username: username}).
		SetResult(&result).
		Post(constants.EndpointRegister)
	if err := r.check(resp, err, "register user"); err != nil {
		return users.User{}, err
	}
	return result, nil
}

func (r *RemoteService) SignIn(ctx context.Context, email, password string) (auth.Grant, error) {
	var result protocol.SignInResponse
	resp, err := r.public(ctx).
		SetBody(protocol.SignInRequest{Email: email, Password: password}).
		SetResult(&result).
		Post(constants.EndpointSignIn)
	if err := r.check(resp, err, "sign in"); err != nil {
		return auth.Grant{}, err
	}
	return auth.Grant{Token: result.Token, ExpiresAt: result.ExpiresAt, UserID: result.User.Identifier}, nil
}

func (r *RemoteService) GetUser(ctx context.Context, token, id string) (users.User, error) {
	var result users.User
	resp, err := r.request(ctx, token).
		SetPathParam("id", id).
		SetResult(&result).
		Get(constants.EndpointUser)
	if err := r.check(resp, err, "get user"); err != nil {
		return users.User{}, err
	}
	return result, nil
}

func (r *RemoteService) CreateSession(ctx context.Context, token string, cfg session.Configuration) (session.Session, error) {
	var result protocol.CreateResponse
	resp, err := r.request(ctx, token).
		SetBody(cfg).
		SetResult(&result).
		Post(constants.EndpointCreate)
	if err := r.check(resp, err, "create session"); err != nil {
		return session.Session{}, err
	}
	return result.Session, nil
}

func (r *RemoteService) GetSession(ctx context.Context, token, id string) (session.Session, error) {
	var result session.Session
	resp, err := r.request(ctx, token).
		SetPathParam("id", id).
		SetResult(&result).
		Get(constants.EndpointSession)
	if err := r.check(resp, err, "get session"); err != nil {
		return session.Session{}, err
	}
	return result, nil
}

func (r *RemoteService) RemoveSession(ctx context.Context, token, id string) error {
	resp, err := r.request(ctx, token).
		SetPathParam("id", id).
		Post(constants.EndpointRemove)
	return r.check(resp, err, "remove session")
}

func (r *RemoteService) JoinSession(ctx context.Context, token, id string) error {
	resp, err := r.request(ctx, token).
		SetPathParam("id", id).
		Post(constants.EndpointJoin)
	return r.check(resp, err, "join session")
}

func (r *RemoteService) AuthorizeSession(ctx context.Context, token, id string) error {
	resp, err := r.request(ctx, token).
		SetPathParam("id", id).
		Post(constants.EndpointAuthorize)
	return r.check(resp, err, "authorize session")
}

func (r *RemoteService) WriteLocation(ctx context.Context, token, sessionID, userID string, loc session.Location) error {
	resp, err := r.request(ctx, token).
		SetPathParam("id", sessionID).
		SetBody(protocol.LocationRequest{UserIdentifier: userID, Location: loc}).
		Post(constants.EndpointLocation)
	return r.check(resp, err, "write location")
}

func (r *RemoteService) SetETA(ctx context.Context, token, id string, eta session.ETA) error {
	resp, err := r.request(ctx, token).
		SetPathParam("id", id).
		SetBody(eta).
		Put(constants.EndpointETA)
	return r.check(resp, err, "set eta")
}

func (r *RemoteService) request(ctx context.Context, token string) *resty.Request {
	return r.public(ctx).SetAuthToken(token)
}

func (r *RemoteService) public(ctx context.Context) *resty.Request {
	return r.client.R().
		SetContext(ctx).
		SetError(&protocol.ErrorResponse{})
}

// check turns transport failures and API error bodies into errors. Known
// error codes come back as the matching sentinel so callers can use errors.Is.
func (r *RemoteService) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr, _ := resp.Error().(*protocol.ErrorResponse)
	if apiErr == nil || apiErr.Error.Code == "" {
		return fmt.Errorf("%s: server returned status %d: %s", op, resp.StatusCode(), resp.String())
	}
	if sentinel := protocol.CodeError(apiErr.Error.Code); sentinel != nil {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	r.log.Debug().Str("code", apiErr.Error.Code).Int("status", resp.StatusCode()).Msg("unmapped api error")
	return fmt.Errorf("%s: %s (%s)", op, apiErr.Error.Message, apiErr.Error.Code)
}
