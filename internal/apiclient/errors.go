package apiclient

import (
	"errors"
	"fmt"
)

// NetworkError means no response was received, including when the call timed out.
type NetworkError struct {
	Service Service
	Method  string
	Path    string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("apiclient: %s %s %s: %v", e.Service, e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is an unauthorized response that a credential refresh could not recover.
// Redirected is true when the login redirect was signalled.
type AuthError struct {
	Status     int
	Message    string
	Redirected bool
	// RefreshErr is the refresh failure, nil when the replay itself was rejected.
	RefreshErr error
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unauthorized"
	}
	if e.RefreshErr != nil {
		return fmt.Sprintf("apiclient: %d %s (refresh failed: %v)", e.Status, msg, e.RefreshErr)
	}
	return fmt.Sprintf("apiclient: %d %s", e.Status, msg)
}

func (e *AuthError) Unwrap() error { return e.RefreshErr }

// APIError is a well-formed failure from the server: a non-2xx status or an envelope with success false.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("apiclient: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("apiclient: %d: %s", e.Status, e.Message)
}

// User-facing fallback messages.
const (
	msgNetwork = "Unable to reach the server. Please check your connection and try again."
	msgAuth    = "Your session has expired. Please sign in again."
	msgGeneric = "Sorry, something went wrong. Please try again."
)

// FriendlyMessage returns text safe to show in place of a failed result. Server validation
// messages are passed through; everything else maps to a generic message.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return msgNetwork
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return msgAuth
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgGeneric
}
