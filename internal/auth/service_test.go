package auth

import (
	"context"
	"testing"

	"famsched/internal/credstore"
	"famsched/internal/session"
	"famsched/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Login(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{})
	svc := NewService(f.backend, f.store, f.holder)

	user, err := svc.Login(context.Background(), mock.DefaultEmail, mock.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "Pat Parent", user.DisplayName())

	current := f.holder.CurrentSession()
	assert.True(t, current.IsAuthenticated)
	assert.Equal(t, current.AccessToken, f.stored(t, credstore.AccessTokenKey))
	assert.Equal(t, current.RefreshToken, f.stored(t, credstore.RefreshTokenKey))

	cred, err := f.store.Load(context.Background(), credstore.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "1", cred.AccountName)
}

func TestService_LoginRejected(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{})
	svc := NewService(f.backend, f.store, f.holder)

	_, err := svc.Login(context.Background(), mock.DefaultEmail, "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "Unable to log in with provided credentials.")
	assert.False(t, f.holder.CurrentSession().IsAuthenticated)
	assert.Empty(t, f.stored(t, credstore.AccessTokenKey))

	_, err = svc.Login(context.Background(), "", "x")
	assert.Error(t, err)
}

func TestService_LoginWithGoogle(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{
		GoogleAccounts: map[string]string{"id-token": mock.DefaultEmail},
	})
	svc := NewService(f.backend, f.store, f.holder)
	ctx := context.Background()

	user, err := svc.LoginWithGoogle(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, "Pat Parent", user.DisplayName())

	current := f.holder.CurrentSession()
	assert.True(t, current.IsAuthenticated)
	assert.Equal(t, current.AccessToken, f.stored(t, credstore.AccessTokenKey))
	assert.Equal(t, current.RefreshToken, f.stored(t, credstore.RefreshTokenKey))

	cred, err := f.store.Load(ctx, credstore.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "1", cred.AccountName)
}

func TestService_LoginWithGoogleRejected(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{})
	svc := NewService(f.backend, f.store, f.holder)

	_, err := svc.LoginWithGoogle(context.Background(), "forged")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, f.holder.CurrentSession().IsAuthenticated)
	assert.Empty(t, f.stored(t, credstore.AccessTokenKey))

	_, err = svc.LoginWithGoogle(context.Background(), "  ")
	assert.Error(t, err)
	assert.Empty(t, f.mock.Requests(""))
}

func TestService_Register(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{})
	svc := NewService(f.backend, f.store, f.holder)
	ctx := context.Background()

	_, err := svc.Register(ctx, "kid@example.com", "pw-1", "pw-2")
	require.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Empty(t, f.mock.Requests(""), "mismatch is rejected locally")

	user, err := svc.Register(ctx, "kid@example.com", "pw-1", "pw-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "kid@example.com", user.Email)
	assert.True(t, f.holder.CurrentSession().IsAuthenticated)

	_, err = svc.Register(ctx, "kid@example.com", "pw-1", "pw-1")
	assert.ErrorContains(t, err, "already exists")
}

func TestService_RegisterRequiresLogin(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{RegisterWithoutLogin: true})
	svc := NewService(f.backend, f.store, f.holder)

	user, err := svc.Register(context.Background(), "kid@example.com", "pw-1", "pw-1")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.False(t, f.holder.CurrentSession().IsAuthenticated)
	assert.Empty(t, f.stored(t, credstore.AccessTokenKey))
}

func TestService_PasswordReset(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{})
	svc := NewService(f.backend, f.store, f.holder)
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, mock.DefaultEmail))
	uid, token, ok := f.mock.ResetToken(mock.DefaultEmail)
	require.True(t, ok)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, uid, token, "brand-new"))
	_, err := svc.Login(ctx, mock.DefaultEmail, "brand-new")
	assert.NoError(t, err)

	assert.Error(t, svc.ConfirmPasswordReset(ctx, uid, token, "again"), "reset tokens are single use")
	assert.Error(t, svc.RequestPasswordReset(ctx, " "))
}

func TestService_Logout(t *testing.T) {
	f := newFixture(t, mock.BackendConfig{})
	svc := NewService(f.backend, f.store, f.holder)
	ctx := context.Background()

	_, err := svc.Login(ctx, mock.DefaultEmail, mock.DefaultPassword)
	require.NoError(t, err)

	var published []session.Session
	f.holder.Subscribe(func(s session.Session) { published = append(published, s) })

	svc.Logout(ctx)

	assert.Empty(t, f.stored(t, credstore.AccessTokenKey))
	assert.Empty(t, f.stored(t, credstore.RefreshTokenKey))
	require.Len(t, published, 1)
	assert.False(t, published[0].IsAuthenticated)

	// Logging out twice is harmless.
	svc.Logout(ctx)
}
