package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"famsched/internal/api"
	"famsched/internal/credstore"
	"famsched/internal/session"
	"famsched/pkg/logging"
)

// Service performs the interactive authentication operations.
type Service struct {
	backend *api.Backend
	store   credstore.Store
	state   api.SessionState
}

// NewService creates an auth service.
func NewService(backend *api.Backend, store credstore.Store, state api.SessionState) *Service {
	return &Service{
		backend: backend,
		store:   store,
		state:   state,
	}
}

// Login exchanges username and password for tokens, persists them and
// publishes the new session.
func (s *Service) Login(ctx context.Context, username, password string) (*session.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	result, err := s.backend.Login(ctx, username, password)
	if err != nil {
		if status := api.StatusCode(err); status == http.StatusBadRequest || status == http.StatusUnauthorized {
			logging.Audit("login_failed", "Login rejected", "username", username, "status", status)
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if err := s.establish(ctx, result, username); err != nil {
		return nil, err
	}
	logging.Audit("login_success", "User logged in", "subject", result.User.Subject())
	return result.User, nil
}

// LoginWithGoogle exchanges a Google ID token for backend tokens and
// establishes the session exactly like Login.
func (s *Service) LoginWithGoogle(ctx context.Context, idToken string) (*session.User, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, errors.New("an ID token from Google sign-in is required")
	}

	result, err := s.backend.LoginWithGoogle(ctx, idToken)
	if err != nil {
		if status := api.StatusCode(err); status == http.StatusBadRequest || status == http.StatusUnauthorized {
			logging.Audit("login_failed", "Google sign-in rejected", "status", status)
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("sign-in with Google failed: %w", err)
	}

	if err := s.establish(ctx, result, result.User.Email); err != nil {
		return nil, err
	}
	logging.Audit("login_success", "User logged in with Google", "subject", result.User.Subject())
	return result.User, nil
}

// Register creates an account. When the backend logs the new user in
// directly the session is established and the user returned; a nil user
// means a separate Login is required.
func (s *Service) Register(ctx context.Context, email, password, confirm string) (*session.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}

	result, err := s.backend.Register(ctx, email, password, confirm)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	if result == nil {
		logging.Info("Auth", "Registered %s, login required", email)
		return nil, nil
	}

	if err := s.establish(ctx, result, email); err != nil {
		return nil, err
	}
	logging.Audit("register_success", "User registered and logged in", "subject", result.User.Subject())
	return result.User, nil
}

// establish stores the login result and publishes the session. The account
// name is the user's subject, or fallback when the backend sent none.
func (s *Service) establish(ctx context.Context, result *api.LoginResult, fallback string) error {
	account := result.User.Subject()
	if account == "" {
		account = fallback
	}

	if err := s.store.Save(ctx, credstore.AccessTokenKey, account, result.Token.AccessToken); err != nil {
		return err
	}
	if result.Token.RefreshToken != "" {
		if err := s.store.Save(ctx, credstore.RefreshTokenKey, account, result.Token.RefreshToken); err != nil {
			return err
		}
	} else if err := s.store.Clear(ctx, credstore.RefreshTokenKey); err != nil {
		// A refresh token of a previous session must not outlive it.
		return err
	}

	s.state.PublishSession(session.New(result.User, result.Token.AccessToken, result.Token.RefreshToken))
	return nil
}

// RequestPasswordReset asks the backend to mail a reset link to email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	if err := s.backend.RequestPasswordReset(ctx, email); err != nil {
		return fmt.Errorf("password reset request failed: %w", err)
	}
	logging.Audit("password_reset_requested", "Password reset requested", "email", email)
	return nil
}

// ConfirmPasswordReset sets a new password with the uid and token from the
// reset mail.
func (s *Service) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	if uid == "" || token == "" {
		return errors.New("uid and token are required")
	}
	if newPassword == "" {
		return errors.New("new password is required")
	}
	if err := s.backend.ConfirmPasswordReset(ctx, uid, token, newPassword); err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	logging.Audit("password_reset_confirmed", "Password reset confirmed", "uid", uid)
	return nil
}

// Logout clears both stored credentials and publishes a logged out session.
// Storage errors are logged; the session is cleared regardless.
func (s *Service) Logout(ctx context.Context) {
	subject := s.state.CurrentSession().User.Subject()
	if err := credstore.ClearAll(ctx, s.store); err != nil {
		logging.Error("Auth", err, "Failed to clear stored credentials during logout")
	}
	s.state.PublishSession(nil)
	logging.Audit("logout", "User logged out", "subject", subject)
}
