package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrSessionExpired marks terminal authentication failures. When it is
	// returned the session has been cleared and the user must log in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken is returned when a 401 could not be recovered because
	// no refresh token is stored or held in memory.
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token available", ErrSessionExpired)

	// ErrInvalidTokenResponse is returned when a login or refresh response
	// carries no access token.
	ErrInvalidTokenResponse = errors.New("invalid token response from server")

	// ErrNoSubject is returned when refreshed credentials cannot be stored
	// because the logged in subject is unknown.
	ErrNoSubject = errors.New("no user to store credentials for")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int

	// Message is the most useful human readable message found in the body.
	Message string

	// Body is the raw response body.
	Body []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is, or wraps, a 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an HTTP failure.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// RefreshError is returned when the token refresh itself failed. The session
// has been cleared; it matches ErrSessionExpired.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return "token refresh failed: " + e.Err.Error()
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSessionExpired) true for refresh failures.
func (e *RefreshError) Is(target error) bool {
	return target == ErrSessionExpired
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    errorMessage(status, body),
		Body:       body,
	}
}

// errorMessage extracts a message from a Django REST style error body:
// the "detail" field, else the first field error as "field: message",
// else the HTTP status text.
func errorMessage(status int, body []byte) string {
	fallback := http.StatusText(status)
	if fallback == "" {
		fallback = "request failed"
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fallback
	}

	var first string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fallback
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fallback
		}

		if key == "detail" {
			if msg := fieldMessage(raw); msg != "" {
				return msg
			}
		}
		if first == "" {
			if msg := fieldMessage(raw); msg != "" {
				first = key + ": " + msg
			}
		}
	}

	if first != "" {
		return first
	}
	return fallback
}

// fieldMessage renders a field value: a string as is, the first element of a
// list, anything else as compact JSON.
func fieldMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return fieldMessage(list[0])
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
