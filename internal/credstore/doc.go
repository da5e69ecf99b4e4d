// Package credstore persists the session credentials of the famsched client.
//
// Two named credentials are kept: the access token under AccessTokenKey and
// the refresh token under RefreshTokenKey. Each is saved together with an
// account name (the user id, or email when no id is known).
//
// # Backends
//
//   - FileStore: XDG-compliant JSON files under ~/.config/famsched/credentials,
//     or memory only when FileMode is false
//   - KeyringStore: the operating system keychain
//
// Load never reports "not found" as an error; it returns (nil, nil). Only
// genuine storage failures produce a *StoreError, so callers can tell a
// broken keychain apart from a logged out user.
//
// # Security
//
// Secret values are never logged. Save and Clear are recorded as
// SECURITY_AUDIT events carrying only the service key and account name.
package credstore
