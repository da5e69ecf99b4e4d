package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"famsched/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, cfg mock.BackendConfig) (*Backend, *mock.Backend) {
	t.Helper()
	mb := mock.NewBackend(t, cfg)
	return NewBackend(mb.URL(), WithHTTPClient(mb.Client())), mb
}

func TestBackend_Login(t *testing.T) {
	clock := mock.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	b, _ := newTestBackend(t, mock.BackendConfig{Clock: clock, TokenLifetime: time.Hour})

	// The mock clock is in the past, so only the exp claim is checked here.
	result, err := b.Login(context.Background(), mock.DefaultEmail, mock.DefaultPassword)
	require.NoError(t, err)
	require.NotNil(t, result.User)

	assert.Equal(t, int64(1), result.User.ID)
	assert.Equal(t, mock.DefaultEmail, result.User.Email)
	assert.Equal(t, "Pat", result.User.FirstName)
	assert.NotEmpty(t, result.Token.AccessToken)
	assert.NotEmpty(t, result.Token.RefreshToken)
	assert.True(t, result.Token.Expiry.Equal(clock.Now().Add(time.Hour)))
}

func TestBackend_LoginRejected(t *testing.T) {
	b, _ := newTestBackend(t, mock.BackendConfig{})

	_, err := b.Login(context.Background(), mock.DefaultEmail, "wrong")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "non_field_errors: Unable to log in with provided credentials.", apiErr.Message)
}

func TestBackend_Register(t *testing.T) {
	b, _ := newTestBackend(t, mock.BackendConfig{})
	ctx := context.Background()

	result, err := b.Register(ctx, "kid@example.com", "pw-1234", "pw-1234")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "kid@example.com", result.User.Email)

	_, err = b.Register(ctx, "kid@example.com", "pw-1234", "pw-1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email: user with this email already exists.")

	_, err = b.Register(ctx, "other@example.com", "pw-1234", "pw-9999")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestBackend_RegisterWithoutLogin(t *testing.T) {
	b, _ := newTestBackend(t, mock.BackendConfig{RegisterWithoutLogin: true})

	result, err := b.Register(context.Background(), "kid@example.com", "pw-1234", "pw-1234")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestBackend_RefreshAndMe(t *testing.T) {
	b, mb := newTestBackend(t, mock.BackendConfig{})
	ctx := context.Background()
	_, refresh := mb.IssueTokens()

	token, err := b.Refresh(ctx, refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.Empty(t, token.RefreshToken, "refresh token is only returned on rotation")

	user, err := b.Me(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultEmail, user.Email)

	_, err = b.Me(ctx, "garbage")
	assert.True(t, IsUnauthorized(err))

	_, err = b.Refresh(ctx, "garbage")
	assert.True(t, IsUnauthorized(err))

	_, err = b.Refresh(ctx, "")
	assert.Error(t, err)
}

func TestBackend_RefreshWithoutAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"refresh": "r2"})
	}))
	defer server.Close()

	b := NewBackend(server.URL+"/api", WithHTTPClient(server.Client()))
	_, err := b.Refresh(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrInvalidTokenResponse)
}

func TestBackend_PasswordReset(t *testing.T) {
	b, mb := newTestBackend(t, mock.BackendConfig{})
	ctx := context.Background()

	require.NoError(t, b.RequestPasswordReset(ctx, mock.DefaultEmail))
	uid, token, ok := mb.ResetToken(mock.DefaultEmail)
	require.True(t, ok)

	err := b.ConfirmPasswordReset(ctx, uid, "wrong-token", "new-secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token: Invalid value")

	require.NoError(t, b.ConfirmPasswordReset(ctx, uid, token, "new-secret"))
	assert.Equal(t, "new-secret", mb.Password(mock.DefaultEmail))

	_, err = b.Login(ctx, mock.DefaultEmail, "new-secret")
	assert.NoError(t, err)
}

func TestBackend_DoSetsHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	b := NewBackend(server.URL+"/api/", WithHTTPClient(server.Client()), WithUserAgent("famsched-test"))
	assert.Equal(t, server.URL+"/api", b.BaseURL())

	resp, err := b.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/events/",
		Body:   json.RawMessage(`{"a":1}`),
		Header: http.Header{RequestIDHeader: []string{"req-1"}},
	}, "tok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "req-1", got.Get(RequestIDHeader))
	assert.Equal(t, "famsched-test", got.Get("User-Agent"))
}

func TestBackend_DoRejectsRelativePath(t *testing.T) {
	b := NewBackend("http://localhost:8000/api")
	_, err := b.Do(context.Background(), &Request{Path: "events/"}, "")
	assert.Error(t, err)
}

func TestBackend_LoginWithGoogle(t *testing.T) {
	b, mb := newTestBackend(t, mock.BackendConfig{
		GoogleAccounts: map[string]string{
			"id-token-pat": mock.DefaultEmail,
			"id-token-new": "kid@example.com",
		},
	})
	ctx := context.Background()

	result, err := b.LoginWithGoogle(ctx, "id-token-pat")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.User.ID)
	assert.NotEmpty(t, result.Token.AccessToken)
	assert.NotEmpty(t, result.Token.RefreshToken)

	requests := mb.Requests(GooglePath)
	require.Len(t, requests, 1)
	assert.JSONEq(t, `{"access_token":"id-token-pat"}`, string(requests[0].Body))

	result, err = b.LoginWithGoogle(ctx, "id-token-new")
	require.NoError(t, err)
	assert.Equal(t, "kid@example.com", result.User.Email)

	_, err = b.LoginWithGoogle(ctx, "forged")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}
