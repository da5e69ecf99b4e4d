// Package api implements the authenticated request client for the family
// scheduling backend.
//
// # Architecture
//
//	┌──────────┐  Send   ┌────────┐  do(token)  ┌─────────┐
//	│  caller  │ ──────▶ │ Client │ ──────────▶ │ Backend │ ──▶ REST API
//	└──────────┘         └────────┘             └─────────┘
//	                       │    ▲
//	     CurrentSession /  │    │ begin / finish
//	     PublishSession    ▼    │
//	             ┌──────────────┐ ┌────────────────────┐
//	             │ SessionState │ │ RefreshCoordinator │
//	             └──────────────┘ └────────────────────┘
//
// Backend speaks HTTP and knows the auth endpoints. It never refreshes
// anything, which makes it safe to call from the refresh path itself and
// from the startup bootstrapper.
//
// Client wraps Backend. Every request carries the bearer token of the
// current session. When a request fails with 401 the client refreshes the
// access token exactly once, no matter how many requests failed together:
// the first one becomes the refresh leader, the rest wait in FIFO order on
// the coordinator and are replayed with the leader's new token. A replayed
// request that fails again is returned to the caller as is.
//
// When no refresh token exists, or the refresh itself fails, both stored
// credentials are cleared, a nil session is published (logout) and every
// waiting caller receives an error matching ErrSessionExpired.
//
// # Usage
//
//	backend := api.NewBackend(cfg.API.EffectiveBaseURL())
//	client := api.NewClient(backend, store, holder)
//
//	var events []Event
//	resp, err := client.Get(ctx, "/events/", url.Values{"ordering": {"start_time"}})
//	if err != nil {
//	    return err
//	}
//	err = resp.Decode(&events)
package api
