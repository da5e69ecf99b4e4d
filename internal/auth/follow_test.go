package auth

import (
	"context"
	"testing"

	"famsched/internal/credstore"
	"famsched/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualWatcher hands the change callback to the test.
type manualWatcher struct {
	fn credstore.ChangeFunc
}

func (w *manualWatcher) Watch(ctx context.Context, fn credstore.ChangeFunc) error {
	w.fn = fn
	return nil
}

func newFollowedService(t *testing.T) (*Service, credstore.Store, *session.Holder, *manualWatcher) {
	t.Helper()
	store, err := credstore.NewFileStore(credstore.FileStoreConfig{StorageDir: t.TempDir(), FileMode: true})
	require.NoError(t, err)
	holder := session.NewHolder()
	svc := NewService(nil, store, holder)

	w := &manualWatcher{}
	require.NoError(t, svc.FollowStore(context.Background(), w))
	require.NotNil(t, w.fn)
	return svc, store, holder, w
}

func TestFollowStore_RemovedCredentialLogsOut(t *testing.T) {
	_, store, holder, w := newFollowedService(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, credstore.AccessTokenKey, "1", "a1"))
	holder.PublishSession(session.New(&session.User{ID: 1}, "a1", "r1"))

	require.NoError(t, store.Clear(ctx, credstore.AccessTokenKey))
	w.fn(credstore.AccessTokenKey)

	assert.False(t, holder.CurrentSession().IsAuthenticated)
}

func TestFollowStore_RewrittenCredentialUpdatesSession(t *testing.T) {
	_, store, holder, w := newFollowedService(t)
	ctx := context.Background()

	holder.PublishSession(session.New(&session.User{ID: 1, Email: "parent@example.com"}, "a1", "r1"))
	require.NoError(t, store.Save(ctx, credstore.AccessTokenKey, "1", "a2"))
	require.NoError(t, store.Save(ctx, credstore.RefreshTokenKey, "1", "r2"))
	w.fn(credstore.AccessTokenKey)

	current := holder.CurrentSession()
	assert.Equal(t, "a2", current.AccessToken)
	assert.Equal(t, "r2", current.RefreshToken)
	require.NotNil(t, current.User)
	assert.Equal(t, "parent@example.com", current.User.Email)

	// A different account drops the cached profile.
	require.NoError(t, store.Save(ctx, credstore.AccessTokenKey, "7", "a3"))
	w.fn(credstore.AccessTokenKey)
	assert.Equal(t, "a3", holder.AccessToken())
	assert.Nil(t, holder.CurrentSession().User)
}

func TestFollowStore_IgnoresRefreshOnlyChanges(t *testing.T) {
	_, store, holder, w := newFollowedService(t)
	ctx := context.Background()

	holder.PublishSession(session.New(nil, "a1", "r1"))
	require.NoError(t, store.Save(ctx, credstore.RefreshTokenKey, "1", "r2"))
	w.fn(credstore.RefreshTokenKey)

	assert.Equal(t, "r1", holder.CurrentSession().RefreshToken)
}
