package auth

import (
	"context"
	"fmt"

	"famsched/internal/api"
	"famsched/internal/credstore"
	"famsched/internal/session"
	"famsched/pkg/logging"
)

// Result is the outcome of Bootstrap.
type Result struct {
	IsAuthenticated bool
	State           State
}

// Bootstrapper restores the session persisted by a previous run.
type Bootstrapper struct {
	backend  *api.Backend
	store    credstore.Store
	state    api.SessionState
	policy   ValidationErrorPolicy
	observer func(State)
}

// BootstrapOption configures a Bootstrapper.
type BootstrapOption func(*Bootstrapper)

// WithValidationErrorPolicy sets the behavior for non-401 validation errors.
func WithValidationErrorPolicy(p ValidationErrorPolicy) BootstrapOption {
	return func(b *Bootstrapper) {
		b.policy = p
	}
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(State)) BootstrapOption {
	return func(b *Bootstrapper) {
		b.observer = fn
	}
}

// NewBootstrapper creates a bootstrapper. It talks to backend directly so that
// validation never triggers the request client's own refresh.
func NewBootstrapper(backend *api.Backend, store credstore.Store, state api.SessionState, opts ...BootstrapOption) *Bootstrapper {
	b := &Bootstrapper{
		backend: backend,
		store:   store,
		state:   state,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bootstrapper) enter(s State) {
	logging.Debug("Bootstrap", "State %s", s)
	if b.observer != nil {
		b.observer(s)
	}
}

func (b *Bootstrapper) unauthenticated() (Result, error) {
	b.enter(StateUnauthenticated)
	return Result{State: StateUnauthenticated}, nil
}

// Bootstrap validates the stored access token and publishes the resulting
// session. It performs at most one refresh.
//
// A returned error means the outcome is inconclusive: storage could not be
// read or written, or validation failed with a non-401 error under the
// Propagate policy. The session is left untouched in that case.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (Result, error) {
	access, err := b.store.Load(ctx, credstore.AccessTokenKey)
	if err != nil {
		return Result{State: StateUnknown}, fmt.Errorf("failed to read stored session: %w", err)
	}

	if access == nil || access.Secret == "" {
		b.enter(StateNoCredential)
		logging.Info("Bootstrap", "No stored credential, starting logged out")
		b.state.PublishSession(nil)
		return b.unauthenticated()
	}

	b.enter(StateValidating)
	user, err := b.backend.Me(ctx, access.Secret)
	switch {
	case err == nil:
		refresh := b.storedRefreshToken(ctx)
		b.state.PublishSession(session.New(user, access.Secret, refresh))
		logging.Info("Bootstrap", "Restored session for %s", user.DisplayName())
		b.enter(StateAuthenticated)
		return Result{IsAuthenticated: true, State: StateAuthenticated}, nil

	case !api.IsUnauthorized(err):
		if b.policy == Logout {
			logging.Warn("Bootstrap", "Session validation failed (%v), logging out", err)
			b.logout(ctx)
			return b.unauthenticated()
		}
		logging.Warn("Bootstrap", "Session validation inconclusive: %v", err)
		return Result{State: StateValidating}, fmt.Errorf("failed to validate stored session: %w", err)
	}

	b.enter(StateRefreshing)
	return b.refresh(ctx, access)
}

// refresh handles a 401 during validation: one refresh, one revalidation.
func (b *Bootstrapper) refresh(ctx context.Context, access *credstore.Credential) (Result, error) {
	refreshCred, err := b.store.Load(ctx, credstore.RefreshTokenKey)
	if err != nil {
		return Result{State: StateRefreshing}, fmt.Errorf("failed to read stored refresh token: %w", err)
	}
	if refreshCred == nil || refreshCred.Secret == "" {
		logging.Info("Bootstrap", "Stored token expired and no refresh token is available")
		b.logout(ctx)
		return b.unauthenticated()
	}

	token, err := b.backend.Refresh(ctx, refreshCred.Secret)
	if err != nil {
		logging.Warn("Bootstrap", "Token refresh failed: %v", err)
		b.logout(ctx)
		return b.unauthenticated()
	}

	user, err := b.backend.Me(ctx, token.AccessToken)
	if err != nil {
		logging.Warn("Bootstrap", "Refreshed token failed validation: %v", err)
		b.logout(ctx)
		return b.unauthenticated()
	}

	account := access.AccountName
	if account == "" {
		account = user.Subject()
	}
	if err := b.store.Save(ctx, credstore.AccessTokenKey, account, token.AccessToken); err != nil {
		return Result{State: StateRefreshing}, err
	}
	nextRefresh := refreshCred.Secret
	if token.RefreshToken != "" && token.RefreshToken != refreshCred.Secret {
		if err := b.store.Save(ctx, credstore.RefreshTokenKey, account, token.RefreshToken); err != nil {
			return Result{State: StateRefreshing}, err
		}
		nextRefresh = token.RefreshToken
	}

	b.state.PublishSession(session.New(user, token.AccessToken, nextRefresh))
	logging.Info("Bootstrap", "Restored session for %s after token refresh", user.DisplayName())
	b.enter(StateAuthenticated)
	return Result{IsAuthenticated: true, State: StateAuthenticated}, nil
}

// storedRefreshToken loads the refresh token on a best effort basis.
func (b *Bootstrapper) storedRefreshToken(ctx context.Context) string {
	cred, err := b.store.Load(ctx, credstore.RefreshTokenKey)
	if err != nil {
		logging.Warn("Bootstrap", "Could not read refresh token: %v", err)
		return ""
	}
	if cred == nil {
		return ""
	}
	return cred.Secret
}

func (b *Bootstrapper) logout(ctx context.Context) {
	if err := credstore.ClearAll(ctx, b.store); err != nil {
		logging.Error("Bootstrap", err, "Failed to clear stored credentials")
	}
	b.state.PublishSession(nil)
}
