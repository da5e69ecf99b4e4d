// Package auth manages the famsched login lifecycle on top of the request
// client.
//
// Bootstrapper decides once, at startup, whether a persisted credential still
// yields a logged in session. It validates the stored access token against
// /users/me/, refreshes it at most once on 401 and otherwise logs out:
//
//	NoCredential  -> Unauthenticated
//	Validating    -> Authenticated
//	Validating    -> Refreshing -> Authenticated | Unauthenticated
//
// Service implements the interactive operations: login, registration,
// password reset and logout. Both publish their outcome through the same
// api.SessionState the request client reads.
package auth
