package auth

import (
	"context"

	"famsched/internal/credstore"
	"famsched/internal/session"
	"famsched/pkg/logging"
)

// Watcher reports credential changes made outside this process.
// *credstore.FileStore implements it.
type Watcher interface {
	Watch(ctx context.Context, fn credstore.ChangeFunc) error
}

// FollowStore keeps the session in line with credentials written by other
// processes: a removed access credential logs out, a rewritten one replaces
// the session's tokens. It blocks until ctx is done.
func (s *Service) FollowStore(ctx context.Context, watcher Watcher) error {
	return watcher.Watch(ctx, func(serviceKey string) {
		if serviceKey == credstore.AccessTokenKey {
			s.syncFromStore(ctx)
		}
	})
}

func (s *Service) syncFromStore(ctx context.Context) {
	current := s.state.CurrentSession()

	access, err := s.store.Load(ctx, credstore.AccessTokenKey)
	if err != nil {
		logging.Warn("Auth", "Could not read changed credential: %v", err)
		return
	}

	if access == nil || access.Secret == "" {
		if current.IsAuthenticated {
			logging.Info("Auth", "Stored credential removed by another process, logging out")
			s.state.PublishSession(nil)
		}
		return
	}

	if access.Secret == current.AccessToken {
		return
	}

	refresh := current.RefreshToken
	if cred, err := s.store.Load(ctx, credstore.RefreshTokenKey); err == nil && cred != nil {
		refresh = cred.Secret
	}

	user := current.User
	if user != nil && user.Subject() != access.AccountName {
		// Another account logged in; the profile is unknown until revalidated.
		user = nil
	}

	logging.Info("Auth", "Stored credential updated by another process")
	s.state.PublishSession(session.New(user, access.Secret, refresh))
}
