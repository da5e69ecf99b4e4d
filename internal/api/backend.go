package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"famsched/internal/session"

	"golang.org/x/oauth2"
)

// DefaultHTTPTimeout is the default timeout for backend requests.
const DefaultHTTPTimeout = 30 * time.Second

// Auth endpoint paths relative to the API base URL.
const (
	LoginPath                = "/auth/login/"
	RegisterPath             = "/auth/register/"
	RefreshPath              = "/auth/refresh/"
	GooglePath               = "/auth/google/"
	PasswordResetPath        = "/auth/password/reset/"
	PasswordResetConfirmPath = "/auth/password/reset/confirm/"
	MePath                   = "/users/me/"
)

// Backend performs HTTP calls against the REST API. It attaches whatever
// token it is given and never refreshes; Client adds that on top.
type Backend struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) BackendOption {
	return func(b *Backend) {
		b.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) BackendOption {
	return func(b *Backend) {
		b.userAgent = userAgent
	}
}

// NewBackend creates a backend for the given, already normalized, base URL.
func NewBackend(baseURL string, opts ...BackendOption) *Backend {
	b := &Backend{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		userAgent:  "famsched",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BaseURL returns the API base URL.
func (b *Backend) BaseURL() string {
	return b.baseURL
}

// Do sends req with token as bearer credential (none when empty).
// Non-2xx responses are returned as *APIError.
func (b *Backend) Do(ctx context.Context, req *Request, token string) (*Response, error) {
	p, err := prepare(req)
	if err != nil {
		return nil, err
	}
	return b.do(ctx, p, token)
}

func (b *Backend) do(ctx context.Context, p *preparedRequest, token string) (*Response, error) {
	target := b.baseURL + p.path
	if len(p.query) > 0 {
		target += "?" + p.query.Encode()
	}

	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, p.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, values := range p.header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if p.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(RequestIDHeader, p.requestID)
	if b.userAgent != "" {
		httpReq.Header.Set("User-Agent", b.userAgent)
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token}).SetAuthHeader(httpReq)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.method, p.path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", p.method, p.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(p.method, p.path, resp.StatusCode, respBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// tokenResponse is the body of login, register and refresh responses.
type tokenResponse struct {
	Access  string               `json:"access"`
	Refresh string               `json:"refresh,omitempty"`
	User    *session.UserProfile `json:"user,omitempty"`
}

func (t *tokenResponse) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.Access,
		RefreshToken: t.Refresh,
		TokenType:    "Bearer",
	}
	if exp, ok := session.TokenExpiry(t.Access); ok {
		tok.Expiry = exp
	}
	return tok
}

// LoginResult is a successful login or registration.
type LoginResult struct {
	Token *oauth2.Token
	User  *session.User
}

// Login exchanges username and password for tokens.
func (b *Backend) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	resp, err := b.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   LoginPath,
		Body:   map[string]string{"username": username, "password": password},
	}, "")
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := resp.Decode(&tr); err != nil {
		return nil, err
	}
	if tr.Access == "" || tr.User == nil {
		return nil, fmt.Errorf("%w: login response lacks access token or user", ErrInvalidTokenResponse)
	}
	return &LoginResult{Token: tr.token(), User: tr.User.ToUser()}, nil
}

// LoginWithGoogle exchanges a Google ID token for the backend's own tokens.
func (b *Backend) LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error) {
	resp, err := b.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   GooglePath,
		Body:   map[string]string{"access_token": idToken},
	}, "")
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := resp.Decode(&tr); err != nil {
		return nil, err
	}
	if tr.Access == "" || tr.User == nil {
		return nil, fmt.Errorf("%w: Google sign-in response lacks access token or user", ErrInvalidTokenResponse)
	}
	return &LoginResult{Token: tr.token(), User: tr.User.ToUser()}, nil
}

// Register creates an account. The result is nil when the backend does not
// log the new user in directly.
func (b *Backend) Register(ctx context.Context, email, password, confirm string) (*LoginResult, error) {
	resp, err := b.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   RegisterPath,
		Body:   map[string]string{"email": email, "password": password, "password2": confirm},
	}, "")
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if len(resp.Body) > 0 {
		if err := resp.Decode(&tr); err != nil {
			return nil, err
		}
	}
	if tr.Access == "" || tr.User == nil {
		return nil, nil
	}
	return &LoginResult{Token: tr.token(), User: tr.User.ToUser()}, nil
}

// Refresh exchanges a refresh token for a new access token. The returned
// token's RefreshToken is empty unless the backend rotated it.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	resp, err := b.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Body:   map[string]string{"refresh": refreshToken},
	}, "")
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := resp.Decode(&tr); err != nil {
		return nil, err
	}
	if tr.Access == "" {
		return nil, ErrInvalidTokenResponse
	}
	return tr.token(), nil
}

// Me returns the user the token belongs to.
func (b *Backend) Me(ctx context.Context, token string) (*session.User, error) {
	resp, err := b.Do(ctx, &Request{Method: http.MethodGet, Path: MePath}, token)
	if err != nil {
		return nil, err
	}

	var profile session.UserProfile
	if err := resp.Decode(&profile); err != nil {
		return nil, err
	}
	return profile.ToUser(), nil
}

// RequestPasswordReset asks the backend to mail a reset link.
func (b *Backend) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := b.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   PasswordResetPath,
		Body:   map[string]string{"email": email},
	}, "")
	return err
}

// ConfirmPasswordReset sets a new password using the uid and token from the reset mail.
func (b *Backend) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	_, err := b.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   PasswordResetConfirmPath,
		Body: map[string]string{
			"uid":           uid,
			"token":         token,
			"new_password1": newPassword,
			"new_password2": newPassword,
		},
	}, "")
	return err
}
