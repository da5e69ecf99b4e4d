package credstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"famsched/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc is called with the service key of a credential that another
// writer created, replaced or removed.
type ChangeFunc func(serviceKey string)

// Watch reports credential changes made on disk, for example by a second
// famsched process logging in or out. It blocks until ctx is done.
// Watching a memory-only store is an error.
func (s *FileStore) Watch(ctx context.Context, fn ChangeFunc) error {
	if !s.fileMode {
		return errors.New("credential store is not file backed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create credential watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.storageDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.storageDir, err)
	}

	keys := map[string]string{
		fileName(AccessTokenKey):  AccessTokenKey,
		fileName(RefreshTokenKey): RefreshTokenKey,
	}

	logging.Debug("CredStore", "Watching %s for credential changes", s.storageDir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			key, known := keys[filepath.Base(event.Name)]
			if !known {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug("CredStore", "Credential %s changed on disk (%s)", key, event.Op)
			fn(key)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("CredStore", err, "fsnotify error")
		}
	}
}
