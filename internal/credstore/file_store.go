package credstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"famsched/pkg/logging"
)

// DefaultStorageDir is the default directory, relative to the home directory,
// for credential files.
const DefaultStorageDir = ".config/famsched/credentials"

// FileStore stores credentials as JSON files, or in memory when file mode is off.
//
// SECURITY: This store handles bearer credentials.
//   - Files are created with 0600 permissions (owner read/write only)
//   - The storage directory is created with 0700 permissions
//   - Secret values are NEVER logged
//   - Writes go to a temporary file that is renamed into place, so a crash
//     never leaves a truncated credential behind
type FileStore struct {
	mu         sync.RWMutex
	storageDir string
	fileMode   bool
	memory     map[string]*Credential
	now        func() time.Time
}

// FileStoreConfig configures the file store.
type FileStoreConfig struct {
	// StorageDir is the directory for credential files.
	// Defaults to ~/.config/famsched/credentials
	StorageDir string

	// FileMode enables file persistence. If false, credentials live in memory only.
	FileMode bool
}

// NewFileStore creates a credential store with the specified configuration.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	storageDir := cfg.StorageDir
	if storageDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		storageDir = filepath.Join(homeDir, DefaultStorageDir)
	}

	store := &FileStore{
		storageDir: storageDir,
		fileMode:   cfg.FileMode,
		memory:     make(map[string]*Credential),
		now:        time.Now,
	}

	if cfg.FileMode {
		if err := os.MkdirAll(storageDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
		}
	}

	return store, nil
}

// StorageDir returns the directory credential files are written to.
func (s *FileStore) StorageDir() string {
	return s.storageDir
}

// Save stores a credential, replacing any previous value for serviceKey.
func (s *FileStore) Save(ctx context.Context, serviceKey, accountName, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cred := &Credential{
		ServiceKey:  serviceKey,
		AccountName: accountName,
		Secret:      secret,
		UpdatedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fileMode {
		s.memory[serviceKey] = cred
		return nil
	}

	if err := s.writeCredentialFile(serviceKey, cred); err != nil {
		logging.Audit("credential_save_failed", "Credential storage failed",
			"service_key", serviceKey,
			"account", accountName,
			"error", err.Error(),
		)
		return storeError("save", serviceKey, err)
	}

	logging.Audit("credential_saved", "Credential stored",
		"service_key", serviceKey,
		"account", accountName,
	)
	return nil
}

// Load returns the credential stored under serviceKey, or nil if there is none.
func (s *FileStore) Load(ctx context.Context, serviceKey string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.fileMode {
		cred, ok := s.memory[serviceKey]
		if !ok {
			return nil, nil
		}
		c := *cred
		return &c, nil
	}

	cred, err := s.readCredentialFile(serviceKey)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("load", serviceKey, err)
	}
	return cred, nil
}

// Clear removes the credential stored under serviceKey.
func (s *FileStore) Clear(ctx context.Context, serviceKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fileMode {
		delete(s.memory, serviceKey)
		return nil
	}

	err := os.Remove(s.credentialPath(serviceKey))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Audit("credential_clear_failed", "Credential deletion failed",
			"service_key", serviceKey,
			"error", err.Error(),
		)
		return storeError("clear", serviceKey, err)
	}

	logging.Audit("credential_cleared", "Credential deleted", "service_key", serviceKey)
	return nil
}

// fileName generates a filesystem-safe file name for a service key.
func fileName(serviceKey string) string {
	hash := sha256.Sum256([]byte(serviceKey))
	return hex.EncodeToString(hash[:16]) + ".json"
}

func (s *FileStore) credentialPath(serviceKey string) string {
	return filepath.Join(s.storageDir, fileName(serviceKey))
}

// writeCredentialFile persists a credential atomically.
func (s *FileStore) writeCredentialFile(serviceKey string, cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	tmp, err := os.CreateTemp(s.storageDir, ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpName, s.credentialPath(serviceKey)); err != nil {
		return fmt.Errorf("failed to move credential file into place: %w", err)
	}
	return nil
}

// readCredentialFile reads a credential from its JSON file.
func (s *FileStore) readCredentialFile(serviceKey string) (*Credential, error) {
	// #nosec G304 -- path is derived from a hashed service key, not user input
	data, err := os.ReadFile(s.credentialPath(serviceKey))
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

var _ Store = (*FileStore)(nil)
