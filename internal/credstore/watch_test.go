package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_WatchReportsExternalChanges(t *testing.T) {
	dir := t.TempDir()
	watched, err := NewFileStore(FileStoreConfig{StorageDir: dir, FileMode: true})
	require.NoError(t, err)
	other, err := NewFileStore(FileStoreConfig{StorageDir: dir, FileMode: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- watched.Watch(ctx, func(key string) { changes <- key })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, other.Save(context.Background(), AccessTokenKey, "42", "from-another-process"))

	select {
	case key := <-changes:
		assert.Equal(t, AccessTokenKey, key)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestFileStore_WatchRequiresFileMode(t *testing.T) {
	store := newTestFileStore(t, false)
	err := store.Watch(context.Background(), func(string) {})
	assert.Error(t, err)
}
