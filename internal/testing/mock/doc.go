// Package mock provides an in-process fake of the family scheduling REST
// backend for tests.
//
// Backend serves the auth endpoints (login, register, refresh, password
// reset), /users/me/ and any other path under /api/ as a protected resource.
// Tokens are HS256 JWTs whose validity is tracked server side, so a test can
// expire every access token at once, revoke refresh tokens, make the refresh
// endpoint fail, or hold a refresh in flight while concurrent requests pile
// up behind it:
//
//	backend := mock.NewBackend(t, mock.BackendConfig{RotateRefreshTokens: true})
//	access, refresh := backend.IssueTokens()
//	backend.ExpireAccessTokens()
//
//	release := backend.HoldRefresh()
//	// ... fire concurrent requests ...
//	release()
//
//	assert.Equal(t, 1, backend.RefreshCalls())
package mock
