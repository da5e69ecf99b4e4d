package mock

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, b *Backend, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.URL()+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := b.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, b *Backend, path, body string) *http.Response {
	t.Helper()
	resp, err := b.Client().Post(b.URL()+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())
}

func TestMockClock_ZeroTime(t *testing.T) {
	before := time.Now()
	clock := NewMockClock(time.Time{})

	assert.False(t, clock.Now().Before(before))
}

func TestBackend_AccessTokenExpiresWithClock(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	b := NewBackend(t, BackendConfig{Clock: clock, TokenLifetime: time.Minute})

	access, _ := b.IssueTokens()
	assert.Equal(t, http.StatusOK, get(t, b, "/users/me/", access).StatusCode)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, http.StatusUnauthorized, get(t, b, "/users/me/", access).StatusCode)
}

func TestBackend_RefreshRotation(t *testing.T) {
	b := NewBackend(t, BackendConfig{RotateRefreshTokens: true})
	_, refresh := b.IssueTokens()

	resp := postJSON(t, b, "/auth/refresh/", `{"refresh":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["access"])
	assert.NotEmpty(t, body["refresh"])
	assert.NotEqual(t, refresh, body["refresh"])

	// The presented refresh token was revoked by the rotation.
	resp = postJSON(t, b, "/auth/refresh/", `{"refresh":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 2, b.RefreshCalls())
}

func TestBackend_SetStatusAndRecording(t *testing.T) {
	b := NewBackend(t, BackendConfig{})
	access, _ := b.IssueTokens()

	b.SetStatus("/events/", http.StatusServiceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, b, "/events/", access).StatusCode)

	resp := get(t, b, "/children/", access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "/children/", body["path"])

	requests := b.Requests("/children/")
	require.Len(t, requests, 1)
	assert.Equal(t, access, requests[0].Token)
	assert.Equal(t, 1, b.Calls("/events/"))
}

func TestBackend_PasswordResetTokenSingleUse(t *testing.T) {
	b := NewBackend(t, BackendConfig{})

	resp := postJSON(t, b, "/auth/password/reset/", `{"email":"`+DefaultEmail+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	uid, token, ok := b.ResetToken(DefaultEmail)
	require.True(t, ok)

	confirm := `{"uid":"` + uid + `","token":"` + token + `","new_password1":"n3w","new_password2":"n3w"}`
	resp = postJSON(t, b, "/auth/password/reset/confirm/", confirm)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "n3w", b.Password(DefaultEmail))

	resp = postJSON(t, b, "/auth/password/reset/confirm/", confirm)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
