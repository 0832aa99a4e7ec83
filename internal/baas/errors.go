package baas

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured is returned when the client has no URL or anon key.
	ErrNotConfigured = errors.New("baas: not configured")
	// ErrNoSession is returned by auth calls that need a signed-in session.
	ErrNoSession = errors.New("baas: no session")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("baas: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("baas: %d: %s", e.Status, e.Message)
}

// IsClientError reports whether err is a 4xx rejection (bad input, bad code, bad token).
func IsClientError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status >= 400 && e.Status < 500
}

// IsUnauthorized reports whether err is a 401 or 403 from the backend.
func IsUnauthorized(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// decodeError maps the error bodies of the auth, table and storage services onto *Error.
func decodeError(status int, body []byte) *Error {
	e := &Error{Status: status}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}
	e.Message = firstString(m, "msg", "message", "error_description", "error")
	e.Code = firstString(m, "error_code", "code", "error")
	if e.Code == e.Message {
		e.Code = ""
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
