package domain

import (
	"strings"
	"time"
)

// Identity is the signed-in user as known to the client.
type Identity struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential is the bearer material attached to outbound requests.
// RefreshToken is empty for demo credentials.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the credential is expired at now, treating it as expired skew early.
// A zero ExpiresAt never expires.
func (c *Credential) Expired(now time.Time, skew time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// Challenge is a pending OTP challenge for a phone number.
type Challenge struct {
	Phone     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the challenge has not yet timed out.
func (c *Challenge) Valid(now time.Time) bool {
	if c == nil {
		return false
	}
	return now.Before(c.ExpiresAt)
}

// ProfilePatch holds the profile fields to change. Nil fields are left untouched.
type ProfilePatch struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Company *string `json:"company,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Company == nil
}

// Apply returns a copy of id with the patch merged in. id is not modified.
func (p ProfilePatch) Apply(id Identity) Identity {
	if p.Name != nil {
		id.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		id.Email = strings.TrimSpace(*p.Email)
	}
	if p.Company != nil {
		id.Company = strings.TrimSpace(*p.Company)
	}
	return id
}

// State is the lifecycle state of a session store.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
)

// AuthSession is what the auth provider returns after verification or refresh.
type AuthSession struct {
	Credential Credential `json:"credential"`
	Identity   Identity   `json:"identity"`
}
