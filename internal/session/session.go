// Package session holds the in-memory authentication state of the famsched
// client: who is logged in and with which tokens.
package session

import (
	"strconv"
	"sync"
)

// User is the authenticated person.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Subject returns the identifier credentials are stored under: the user id,
// or the email when the id is unknown.
func (u *User) Subject() string {
	if u == nil {
		return ""
	}
	if u.ID != 0 {
		return strconv.FormatInt(u.ID, 10)
	}
	return u.Email
}

// DisplayName returns "First Last", falling back to the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// UserProfile is the snake_case user representation returned by the backend.
type UserProfile struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ToUser maps the wire profile to a User.
func (p UserProfile) ToUser() *User {
	return &User{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

// Session is a snapshot of the authentication state.
type Session struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
}

// New returns an authenticated session.
func New(user *User, accessToken, refreshToken string) *Session {
	return &Session{
		User:            user,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		IsAuthenticated: accessToken != "",
	}
}

// Holder owns the current session and notifies subscribers when it changes.
// The zero value is a logged out holder ready to use.
type Holder struct {
	mu        sync.RWMutex
	current   Session
	nextID    int
	listeners map[int]func(Session)
}

// NewHolder creates a logged out holder.
func NewHolder() *Holder {
	return &Holder{}
}

// CurrentSession returns a copy of the current session. A logged out holder
// returns the zero Session.
func (h *Holder) CurrentSession() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.current
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// AccessToken returns the current access token, or "" when logged out.
func (h *Holder) AccessToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.AccessToken
}

// PublishSession replaces the current session. A nil session logs out.
func (h *Holder) PublishSession(s *Session) {
	h.mu.Lock()
	if s == nil {
		h.current = Session{}
	} else {
		h.current = *s
		h.current.IsAuthenticated = s.AccessToken != ""
	}
	snapshot := h.current
	listeners := make([]func(Session), 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Subscribe registers fn to be called after every PublishSession. The returned
// function removes the subscription.
func (h *Holder) Subscribe(fn func(Session)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listeners == nil {
		h.listeners = make(map[int]func(Session))
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}
