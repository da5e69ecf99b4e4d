package auth

import (
	"errors"
)

var (
	// ErrNotLoggedIn is returned by operations that need a session when none exists.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrPasswordMismatch is returned before contacting the backend when the
	// password and its confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
)
