package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"famsched/pkg/logging"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService prefixes every keychain entry written by famsched.
const DefaultKeyringService = "famsched"

// keyringUser is the fixed keychain user. The real account name travels in
// the payload because Load only knows the service key.
const keyringUser = "session"

// KeyringStore keeps credentials in the operating system keychain.
type KeyringStore struct {
	service string
	now     func() time.Time
}

// NewKeyringStore creates a keychain backed store. An empty service uses DefaultKeyringService.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service, now: time.Now}
}

func (s *KeyringStore) entry(serviceKey string) string {
	return s.service + ":" + serviceKey
}

// Save stores the credential in the keychain.
func (s *KeyringStore) Save(ctx context.Context, serviceKey, accountName, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(&Credential{
		ServiceKey:  serviceKey,
		AccountName: accountName,
		Secret:      secret,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		return storeError("save", serviceKey, fmt.Errorf("failed to marshal credential: %w", err))
	}

	if err := keyring.Set(s.entry(serviceKey), keyringUser, string(payload)); err != nil {
		logging.Audit("credential_save_failed", "Keychain credential storage failed",
			"service_key", serviceKey,
			"account", accountName,
			"error", err.Error(),
		)
		return storeError("save", serviceKey, err)
	}

	logging.Audit("credential_saved", "Keychain credential stored",
		"service_key", serviceKey,
		"account", accountName,
	)
	return nil
}

// Load reads the credential from the keychain.
func (s *KeyringStore) Load(ctx context.Context, serviceKey string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := keyring.Get(s.entry(serviceKey), keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("load", serviceKey, err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(payload), &cred); err != nil {
		return nil, storeError("load", serviceKey, fmt.Errorf("failed to unmarshal credential: %w", err))
	}
	return &cred, nil
}

// Clear deletes the credential from the keychain.
func (s *KeyringStore) Clear(ctx context.Context, serviceKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(s.entry(serviceKey), keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return storeError("clear", serviceKey, err)
	}

	logging.Audit("credential_cleared", "Keychain credential deleted", "service_key", serviceKey)
	return nil
}

var _ Store = (*KeyringStore)(nil)
