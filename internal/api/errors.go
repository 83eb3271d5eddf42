package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated is returned when an operation needs credentials and
// none are held.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError is a terminal authentication failure: a login, register or
// refresh call the server rejected. After a refresh AuthError the credential
// store has already been cleared; the caller must re-authenticate.
type AuthError struct {
	Op  string // "login", "register", "refresh"
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError is any non-2xx response that survived the single
// refresh-and-retry. Status is kept so callers can branch on it.
type RequestError struct {
	Status     int
	StatusText string
	Code       string // server error code, when present
	Message    string // server error message, when present
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api request failed: %d %s: %s", e.Status, e.StatusText, e.Message)
	}
	return fmt.Sprintf("api request failed: %d %s", e.Status, e.StatusText)
}

// Unauthorized reports whether the failure was a 401.
func (e *RequestError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// NotFound reports whether the failure was a 404.
func (e *RequestError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsRequestError returns the typed request error inside err, if any.
func IsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
