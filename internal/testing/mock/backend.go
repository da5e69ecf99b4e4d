package mock

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultEmail and DefaultPassword identify the user every Backend starts with.
const (
	DefaultEmail    = "parent@example.com"
	DefaultPassword = "correct-horse"
)

// User is an account known to the fake backend.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"-"`
}

// BackendConfig configures the fake backend behavior.
type BackendConfig struct {
	// Users seeds the account table. Defaults to a single user with
	// DefaultEmail and DefaultPassword.
	Users []User

	// TokenLifetime is the exp claim distance of access tokens (default 15m).
	TokenLifetime time.Duration

	// RotateRefreshTokens makes /auth/refresh/ return a new refresh token and
	// revoke the one presented.
	RotateRefreshTokens bool

	// RegisterWithoutLogin makes /auth/register/ answer without tokens.
	RegisterWithoutLogin bool

	// GoogleAccounts maps the Google ID tokens /auth/google/ accepts to the
	// email they identify. An unknown email signs up a new user.
	GoogleAccounts map[string]string

	// Clock is the clock used for token timestamps (defaults to RealClock).
	Clock Clock
}

// RecordedRequest is a request the backend received.
type RecordedRequest struct {
	Method    string
	Path      string
	Token     string
	RequestID string
	Body      []byte
}

// Backend is an httptest based fake of the REST API.
type Backend struct {
	config BackendConfig
	server *httptest.Server
	secret []byte

	mu          sync.Mutex
	users       map[string]*User
	nextID      int64
	access      map[string]int64
	refresh     map[string]int64
	resets      map[string]string
	statuses    map[string]int
	refreshFail int
	gate        *gate
	holds       map[string]*gate
	requests    []RecordedRequest
}

// NewBackend starts a fake backend that is shut down when the test ends.
func NewBackend(t testing.TB, cfg BackendConfig) *Backend {
	t.Helper()

	if cfg.TokenLifetime == 0 {
		cfg.TokenLifetime = 15 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if len(cfg.Users) == 0 {
		cfg.Users = []User{{ID: 1, Email: DefaultEmail, FirstName: "Pat", LastName: "Parent", Password: DefaultPassword}}
	}

	b := &Backend{
		config:   cfg,
		secret:   make([]byte, 32),
		users:    make(map[string]*User),
		access:   make(map[string]int64),
		refresh:  make(map[string]int64),
		resets:   make(map[string]string),
		statuses: make(map[string]int),
		holds:    make(map[string]*gate),
	}
	if _, err := rand.Read(b.secret); err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}
	for i := range cfg.Users {
		u := cfg.Users[i]
		b.users[u.Email] = &u
		if u.ID >= b.nextID {
			b.nextID = u.ID + 1
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", b.handleLogin)
	mux.HandleFunc("POST /api/auth/register/", b.handleRegister)
	mux.HandleFunc("POST /api/auth/refresh/", b.handleRefresh)
	mux.HandleFunc("POST /api/auth/google/", b.handleGoogle)
	mux.HandleFunc("POST /api/auth/password/reset/", b.handlePasswordReset)
	mux.HandleFunc("POST /api/auth/password/reset/confirm/", b.handlePasswordResetConfirm)
	mux.HandleFunc("GET /api/users/me/", b.handleMe)
	mux.HandleFunc("/api/", b.handleProtected)

	b.server = httptest.NewServer(b.record(mux))
	t.Cleanup(func() {
		// Unblock handlers still waiting on a held refresh or path before closing.
		b.releaseGate()
		b.server.Close()
	})
	return b
}

// URL returns the API base URL, ending in /api.
func (b *Backend) URL() string {
	return b.server.URL + "/api"
}

// Client returns an HTTP client for the backend.
func (b *Backend) Client() *http.Client {
	return b.server.Client()
}

// IssueTokens logs in the default user and returns its token pair.
func (b *Backend) IssueTokens() (access, refresh string) {
	return b.IssueTokensFor(b.config.Users[0].Email)
}

// IssueTokensFor returns a fresh token pair for the user with the given email.
func (b *Backend) IssueTokensFor(email string) (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[email]
	if !ok {
		panic(fmt.Sprintf("mock: unknown user %q", email))
	}
	return b.issueAccess(u.ID), b.issueRefresh(u.ID)
}

// ExpireAccessTokens invalidates every access token issued so far.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]int64)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = make(map[string]int64)
}

// SetRefreshFailure makes /auth/refresh/ answer with status. Zero restores
// normal behavior.
func (b *Backend) SetRefreshFailure(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFail = status
}

// SetStatus forces the given status for a protected path (relative to the
// base URL, e.g. "/users/me/"), before any token check. Zero clears it.
func (b *Backend) SetStatus(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.statuses, path)
		return
	}
	b.statuses[path] = status
}

// HoldRefresh makes refresh requests block until the returned function is
// called. The function is safe to call more than once.
func (b *Backend) HoldRefresh() (release func()) {
	g := &gate{ch: make(chan struct{})}

	b.mu.Lock()
	b.gate = g
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if b.gate == g {
			b.gate = nil
		}
		b.mu.Unlock()
		g.open()
	}
}

// HoldPath makes requests to a protected path block, before their token is
// checked, until the returned function is called.
func (b *Backend) HoldPath(path string) (release func()) {
	g := &gate{ch: make(chan struct{})}

	b.mu.Lock()
	b.holds[path] = g
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if b.holds[path] == g {
			delete(b.holds, path)
		}
		b.mu.Unlock()
		g.open()
	}
}

func (b *Backend) releaseGate() {
	b.mu.Lock()
	gates := []*gate{b.gate}
	for path, g := range b.holds {
		gates = append(gates, g)
		delete(b.holds, path)
	}
	b.gate = nil
	b.mu.Unlock()
	for _, g := range gates {
		if g != nil {
			g.open()
		}
	}
}

// wait blocks on the hold for path, if any.
func (b *Backend) wait(r *http.Request, path string) bool {
	b.mu.Lock()
	g := b.holds[path]
	b.mu.Unlock()
	if g == nil {
		return true
	}
	select {
	case <-g.ch:
		return true
	case <-r.Context().Done():
		return false
	}
}

type gate struct {
	ch   chan struct{}
	once sync.Once
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

// ResetToken returns the uid and token mailed by the last password reset
// request for email.
func (b *Backend) ResetToken(email string) (uid, token string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, exists := b.users[email]
	if !exists {
		return "", "", false
	}
	token, ok = b.resets[email]
	return strconv.FormatInt(u.ID, 10), token, ok
}

// Password returns the current password of a user.
func (b *Backend) Password(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[email]; ok {
		return u.Password
	}
	return ""
}

// Requests returns the recorded requests for path (relative to the base
// URL). An empty path returns all of them.
func (b *Backend) Requests(path string) []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []RecordedRequest
	for _, r := range b.requests {
		if path == "" || r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Calls returns how many requests hit path.
func (b *Backend) Calls(path string) int {
	return len(b.Requests(path))
}

// RefreshCalls returns how many refresh requests were received.
func (b *Backend) RefreshCalls() int {
	return b.Calls("/auth/refresh/")
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method:    r.Method,
			Path:      strings.TrimPrefix(r.URL.Path, "/api"),
			Token:     strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
			RequestID: r.Header.Get("X-Request-ID"),
			Body:      body,
		})
		b.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[req.Username]
	if !ok || u.Password != req.Password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"non_field_errors": {"Unable to log in with provided credentials."},
		})
		return
	}
	writeJSON(w, http.StatusOK, b.loginBody(u))
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Password2 string `json:"password2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.users[req.Email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"email": {"user with this email already exists."},
		})
		return
	}
	if req.Password != req.Password2 {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"password": {"Password fields didn't match."},
		})
		return
	}

	u := &User{ID: b.nextID, Email: req.Email, Password: req.Password}
	b.nextID++
	b.users[u.Email] = u

	if b.config.RegisterWithoutLogin {
		writeJSON(w, http.StatusCreated, map[string]string{"email": u.Email})
		return
	}
	writeJSON(w, http.StatusCreated, b.loginBody(u))
}

func (b *Backend) handleGoogle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"access_token": {"This field is required."}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email, ok := b.config.GoogleAccounts[req.AccessToken]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"non_field_errors": {"Incorrect value"},
		})
		return
	}
	u, exists := b.users[email]
	if !exists {
		u = &User{ID: b.nextID, Email: email}
		b.nextID++
		b.users[email] = u
	}
	writeJSON(w, http.StatusOK, b.loginBody(u))
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	g := b.gate
	b.mu.Unlock()
	if g != nil {
		select {
		case <-g.ch:
		case <-r.Context().Done():
			return
		}
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refreshFail != 0 {
		writeJSON(w, b.refreshFail, map[string]string{"detail": http.StatusText(b.refreshFail)})
		return
	}

	userID, ok := b.refresh[req.Refresh]
	if !ok || !b.valid(req.Refresh) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	resp := map[string]string{"access": b.issueAccess(userID)}
	if b.config.RotateRefreshTokens {
		delete(b.refresh, req.Refresh)
		resp["refresh"] = b.issueRefresh(userID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"This field is required."}})
		return
	}

	b.mu.Lock()
	if _, ok := b.users[req.Email]; ok {
		b.resets[req.Email] = uuid.NewString()
	}
	b.mu.Unlock()

	// Unknown addresses get the same answer.
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password reset e-mail has been sent."})
}

func (b *Backend) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID          string `json:"uid"`
		Token        string `json:"token"`
		NewPassword1 string `json:"new_password1"`
		NewPassword2 string `json:"new_password2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var target *User
	for _, u := range b.users {
		if strconv.FormatInt(u.ID, 10) == req.UID {
			target = u
			break
		}
	}
	if target == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"uid": {"Invalid value"}})
		return
	}
	if tok, ok := b.resets[target.Email]; !ok || tok != req.Token {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"token": {"Invalid value"}})
		return
	}
	if req.NewPassword1 != req.NewPassword2 {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"new_password2": {"The two password fields didn't match."},
		})
		return
	}

	target.Password = req.NewPassword1
	delete(b.resets, target.Email)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password has been reset with the new password."})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := b.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) handleProtected(w http.ResponseWriter, r *http.Request) {
	if !b.wait(r, strings.TrimPrefix(r.URL.Path, "/api")) {
		return
	}
	u, ok := b.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"method": r.Method,
		"path":   strings.TrimPrefix(r.URL.Path, "/api"),
		"user":   u.ID,
	})
}

// authorize applies forced statuses and checks the bearer token. It writes
// the error response itself and reports whether the handler should continue.
func (b *Backend) authorize(w http.ResponseWriter, r *http.Request) (User, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api")

	b.mu.Lock()
	defer b.mu.Unlock()

	if status, ok := b.statuses[path]; ok {
		writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
		return User{}, false
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	userID, ok := b.access[token]
	if token == "" || !ok || !b.valid(token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Given token not valid for any token type",
			"code":   "token_not_valid",
		})
		return User{}, false
	}

	for _, u := range b.users {
		if u.ID == userID {
			return *u, true
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User not found"})
	return User{}, false
}

// loginBody must be called with b.mu held.
func (b *Backend) loginBody(u *User) map[string]any {
	return map[string]any{
		"access":  b.issueAccess(u.ID),
		"refresh": b.issueRefresh(u.ID),
		"user":    u,
	}
}

// issueAccess must be called with b.mu held.
func (b *Backend) issueAccess(userID int64) string {
	token := b.sign(userID, "access", b.config.TokenLifetime)
	b.access[token] = userID
	return token
}

// issueRefresh must be called with b.mu held.
func (b *Backend) issueRefresh(userID int64) string {
	token := b.sign(userID, "refresh", 24*time.Hour)
	b.refresh[token] = userID
	return token
}

func (b *Backend) sign(userID int64, tokenType string, lifetime time.Duration) string {
	now := b.config.Clock.Now()
	claims := jwt.MapClaims{
		"sub":        strconv.FormatInt(userID, 10),
		"token_type": tokenType,
		"iat":        now.Unix(),
		"exp":        now.Add(lifetime).Unix(),
		"jti":        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		panic(fmt.Sprintf("mock: failed to sign token: %v", err))
	}
	return signed
}

// valid checks signature and expiry against the backend clock.
func (b *Backend) valid(token string) bool {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.config.Clock.Now),
	)
	_, err := parser.Parse(token, func(*jwt.Token) (any, error) {
		return b.secret, nil
	})
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
