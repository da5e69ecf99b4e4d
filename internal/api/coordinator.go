package api

import (
	"context"
	"sync"
)

// refreshOutcome is the single result of a refresh, shared by every waiter.
type refreshOutcome struct {
	token string
	err   error
}

// RefreshCoordinator guarantees that at most one token refresh is in flight.
// Requests that hit a 401 while a refresh is running are queued and released,
// in arrival order, with that refresh's outcome.
//
// Each Client owns one coordinator; share one explicitly with
// WithCoordinator when several clients use the same credentials.
type RefreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshOutcome
}

// NewRefreshCoordinator creates an idle coordinator.
func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{}
}

// begin either makes the caller the refresh leader (leader == true) or
// enqueues it and returns the channel its outcome will arrive on.
func (rc *RefreshCoordinator) begin() (wait <-chan refreshOutcome, leader bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.refreshing {
		ch := make(chan refreshOutcome, 1) // buffered: finish never blocks
		rc.waiters = append(rc.waiters, ch)
		return ch, false
	}

	rc.refreshing = true
	return nil, true
}

// finish ends the refresh started by the leader and releases the queue.
// The leader must call it exactly once, on every path.
func (rc *RefreshCoordinator) finish(token string, err error) {
	rc.mu.Lock()
	waiters := rc.waiters
	rc.waiters = nil
	rc.refreshing = false
	rc.mu.Unlock()

	outcome := refreshOutcome{token: token, err: err}
	for _, ch := range waiters {
		ch <- outcome
	}
}

// await blocks until the outcome arrives or ctx is done.
func (rc *RefreshCoordinator) await(ctx context.Context, wait <-chan refreshOutcome) (string, error) {
	select {
	case outcome := <-wait:
		return outcome.token, outcome.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Refreshing reports whether a refresh is in flight.
func (rc *RefreshCoordinator) Refreshing() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.refreshing
}

// Pending returns the number of queued requests.
func (rc *RefreshCoordinator) Pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.waiters)
}
