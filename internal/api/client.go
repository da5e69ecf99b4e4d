package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"famsched/internal/credstore"
	"famsched/internal/session"
	"famsched/pkg/logging"
)

// SessionState gives the client access to the session owned by the
// surrounding application.
type SessionState interface {
	// CurrentSession returns a snapshot of the current session.
	CurrentSession() session.Session

	// PublishSession replaces the session; nil means logged out.
	PublishSession(s *session.Session)
}

// Client sends authenticated requests and transparently refreshes the access
// token when the backend answers 401.
type Client struct {
	backend     *Backend
	store       credstore.Store
	state       SessionState
	coordinator *RefreshCoordinator
	metrics     *Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCoordinator shares a refresh coordinator between clients.
func WithCoordinator(rc *RefreshCoordinator) ClientOption {
	return func(c *Client) {
		c.coordinator = rc
	}
}

// WithMetrics records request and refresh metrics.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a request client.
func NewClient(backend *Backend, store credstore.Store, state SessionState, opts ...ClientOption) *Client {
	c := &Client{
		backend: backend,
		store:   store,
		state:   state,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.coordinator == nil {
		c.coordinator = NewRefreshCoordinator()
	}
	return c
}

// Backend returns the underlying interceptor-free backend.
func (c *Client) Backend() *Backend {
	return c.backend
}

// Send performs req with the current access token. A first 401 triggers a
// shared token refresh and one replay; every other failure is returned as is.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	p, err := prepare(req)
	if err != nil {
		return nil, err
	}

	p.sentToken = c.state.CurrentSession().AccessToken
	resp, err := c.backend.do(ctx, p, p.sentToken)
	c.metrics.observeRequest(p.method, resp, err)
	if err == nil {
		return resp, nil
	}

	if !IsUnauthorized(err) || p.retried {
		logging.Debug("APIClient", "%s %s failed: %v", p.method, p.path, err)
		return nil, err
	}

	return c.retryAfterRefresh(ctx, p, err)
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Patch sends a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// retryAfterRefresh handles a first 401: it waits for, or performs, the
// single in-flight refresh and replays the request once with the new token.
func (c *Client) retryAfterRefresh(ctx context.Context, p *preparedRequest, authErr error) (*Response, error) {
	p.retried = true

	// A refresh that completed while this request was in flight already
	// replaced the token it was rejected for.
	if current := c.state.CurrentSession().AccessToken; current != "" && current != p.sentToken {
		logging.Debug("APIClient", "Access token already refreshed, replaying %s %s", p.method, p.path)
		return c.replay(ctx, p, current)
	}

	wait, leader := c.coordinator.begin()
	if !leader {
		c.metrics.observeQueued()
		logging.Debug("APIClient", "Token refresh in progress, queueing %s %s", p.method, p.path)

		token, err := c.coordinator.await(ctx, wait)
		if err != nil {
			return nil, err
		}
		return c.replay(ctx, p, token)
	}

	// The refresh outcome is shared with every queued request, so the leader's
	// cancellation must not abort it. The HTTP client timeout still applies.
	token, err := c.refresh(context.WithoutCancel(ctx), authErr)
	if err != nil {
		return nil, err
	}
	return c.replay(ctx, p, token)
}

// Refresh obtains a new access token without waiting for a 401, sharing an
// in-flight refresh if there is one. Failures log out like a failed
// transparent refresh.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	wait, leader := c.coordinator.begin()
	if !leader {
		c.metrics.observeQueued()
		return c.coordinator.await(ctx, wait)
	}
	return c.refresh(context.WithoutCancel(ctx), nil)
}

// replay sends a request that already went through a refresh. Its failures,
// including a second 401, are final.
func (c *Client) replay(ctx context.Context, p *preparedRequest, token string) (*Response, error) {
	resp, err := c.backend.do(ctx, p, token)
	c.metrics.observeRequest(p.method, resp, err)
	if err != nil {
		logging.Debug("APIClient", "Replay of %s %s failed: %v", p.method, p.path, err)
	}
	return resp, err
}

// refresh obtains a new access token. It runs only in the refresh leader and
// always releases the coordinator, whatever the outcome. authErr is the 401
// that triggered it, nil for an explicit Refresh.
func (c *Client) refresh(ctx context.Context, authErr error) (token string, err error) {
	defer func() {
		c.coordinator.finish(token, err)
	}()

	if authErr != nil {
		logging.Info("APIClient", "Access token rejected, attempting token refresh")
	} else {
		logging.Info("APIClient", "Refreshing access token")
	}

	refreshToken, err := c.resolveRefreshToken(ctx)
	if err != nil {
		c.metrics.observeRefresh(refreshStoreError)
		logging.Error("APIClient", err, "Failed to read refresh token")
		return "", err
	}

	if refreshToken == "" {
		c.metrics.observeRefresh(refreshNoRefreshToken)
		logging.Warn("APIClient", "No refresh token available for refresh attempt, logging out")
		c.logout(ctx)
		if authErr == nil {
			return "", ErrNoRefreshToken
		}
		return "", fmt.Errorf("%w: %w", ErrNoRefreshToken, authErr)
	}

	newToken, err := c.backend.Refresh(ctx, refreshToken)
	if err != nil {
		c.metrics.observeRefresh(refreshFailure)
		logging.Error("APIClient", err, "Token refresh failed, logging out")
		c.logout(ctx)
		return "", &RefreshError{Err: err}
	}

	current := c.state.CurrentSession()
	account, err := c.subject(ctx, current)
	if err != nil {
		c.metrics.observeRefresh(refreshStoreError)
		return "", err
	}
	if account == "" {
		c.metrics.observeRefresh(refreshFailure)
		logging.Warn("APIClient", "Refreshed token has no user to be stored for, logging out")
		c.logout(ctx)
		return "", &RefreshError{Err: ErrNoSubject}
	}

	if err := c.store.Save(ctx, credstore.AccessTokenKey, account, newToken.AccessToken); err != nil {
		c.metrics.observeRefresh(refreshStoreError)
		return "", err
	}

	nextRefresh := refreshToken
	if newToken.RefreshToken != "" && newToken.RefreshToken != refreshToken {
		if err := c.store.Save(ctx, credstore.RefreshTokenKey, account, newToken.RefreshToken); err != nil {
			c.metrics.observeRefresh(refreshStoreError)
			return "", err
		}
		nextRefresh = newToken.RefreshToken
		logging.Debug("APIClient", "Refresh token rotated")
	}

	c.state.PublishSession(session.New(current.User, newToken.AccessToken, nextRefresh))
	c.metrics.observeRefresh(refreshSuccess)
	logging.Info("APIClient", "Token refresh successful")

	return newToken.AccessToken, nil
}

// resolveRefreshToken prefers the durable store, which another process may
// have updated, over the in-memory session, which may be stale. The session
// is only consulted when the store holds nothing.
func (c *Client) resolveRefreshToken(ctx context.Context) (string, error) {
	cred, err := c.store.Load(ctx, credstore.RefreshTokenKey)
	if err != nil {
		return "", err
	}
	if cred != nil && cred.Secret != "" {
		return cred.Secret, nil
	}
	return c.state.CurrentSession().RefreshToken, nil
}

// subject returns the account name refreshed credentials are stored under:
// the session user, else the account of the stored access credential.
func (c *Client) subject(ctx context.Context, current session.Session) (string, error) {
	if s := current.User.Subject(); s != "" {
		return s, nil
	}
	cred, err := c.store.Load(ctx, credstore.AccessTokenKey)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", nil
	}
	return cred.AccountName, nil
}

// logout clears both stored credentials and publishes a nil session. Storage
// errors are logged; the session is cleared regardless.
func (c *Client) logout(ctx context.Context) {
	if err := credstore.ClearAll(ctx, c.store); err != nil {
		logging.Error("APIClient", err, "Failed to clear stored credentials during logout")
	}
	c.state.PublishSession(nil)
}
