package credstore

import (
	"context"
	"fmt"
	"time"
)

// Service keys under which the two session credentials are stored.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// Credential is a stored secret and the account it belongs to.
type Credential struct {
	// ServiceKey identifies the credential (AccessTokenKey or RefreshTokenKey).
	ServiceKey string `json:"service_key"`

	// AccountName is the subject identifier the secret was saved for.
	AccountName string `json:"account_name"`

	// Secret is the opaque token value.
	Secret string `json:"secret"`

	// UpdatedAt is when the credential was last saved.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists named credentials.
type Store interface {
	// Save durably stores secret under serviceKey, replacing any prior value.
	Save(ctx context.Context, serviceKey, accountName, secret string) error

	// Load returns the credential stored under serviceKey, or nil when none exists.
	Load(ctx context.Context, serviceKey string) (*Credential, error)

	// Clear removes the credential stored under serviceKey. Clearing an absent key is not an error.
	Clear(ctx context.Context, serviceKey string) error
}

// StoreError indicates a credential storage failure.
type StoreError struct {
	Operation  string // "save", "load", "clear"
	ServiceKey string
	Cause      error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " credential"
	if e.ServiceKey != "" {
		msg += " " + e.ServiceKey
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

func storeError(op, key string, cause error) error {
	return &StoreError{Operation: op, ServiceKey: key, Cause: cause}
}

// ClearAll removes both session credentials. Both deletions are attempted even
// when the first one fails; the first error is returned.
func ClearAll(ctx context.Context, s Store) error {
	var firstErr error
	for _, key := range []string{AccessTokenKey, RefreshTokenKey} {
		if err := s.Clear(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Backend names accepted by New.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
	BackendMemory  = "memory"
)

// Config selects and configures a Store implementation.
type Config struct {
	// Backend is one of BackendFile, BackendKeyring or BackendMemory. Defaults to BackendFile.
	Backend string

	// StorageDir is the directory used by the file backend.
	StorageDir string

	// KeyringService prefixes keychain entries. Defaults to DefaultKeyringService.
	KeyringService string
}

// New creates the Store selected by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(FileStoreConfig{StorageDir: cfg.StorageDir, FileMode: true})
	case BackendMemory:
		return NewFileStore(FileStoreConfig{StorageDir: cfg.StorageDir, FileMode: false})
	case BackendKeyring:
		return NewKeyringStore(cfg.KeyringService), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Backend)
	}
}
