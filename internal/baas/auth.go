package baas

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"resultmarketing-crm/client/internal/session/domain"
)

// authUser is the auth service's user object.
type authUser struct {
	ID           string                 `json:"id"`
	Phone        string                 `json:"phone"`
	Email        string                 `json:"email"`
	CreatedAt    time.Time              `json:"created_at"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

// tokenResponse is returned by verify and refresh.
type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         *authUser `json:"user"`
}

func (u *authUser) identity() *domain.Identity {
	if u == nil {
		return nil
	}
	id := &domain.Identity{
		ID:        u.ID,
		Phone:     u.Phone,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
	if s, ok := u.UserMetadata["name"].(string); ok {
		id.Name = s
	}
	if s, ok := u.UserMetadata["company"].(string); ok {
		id.Company = s
	}
	if id.Email == "" {
		if s, ok := u.UserMetadata["email"].(string); ok {
			id.Email = s
		}
	}
	return id
}

func (t *tokenResponse) session(now time.Time) *domain.AuthSession {
	s := &domain.AuthSession{
		Credential: domain.Credential{
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
			TokenType:    t.TokenType,
			ExpiresAt:    tokenExpiry(t, now),
		},
	}
	if id := t.User.identity(); id != nil {
		s.Identity = *id
	}
	return s
}

// tokenExpiry prefers expires_at, then the JWT exp claim, then expires_in.
func tokenExpiry(t *tokenResponse, now time.Time) time.Time {
	if t.ExpiresAt > 0 {
		return time.Unix(t.ExpiresAt, 0).UTC()
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time.UTC()
	}
	if t.ExpiresIn > 0 {
		return now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return time.Time{}
}

// SendOTP asks the auth service to text a one-time code to phone.
func (c *Client) SendOTP(ctx context.Context, phone string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/otp",
		body:   map[string]interface{}{"phone": phone, "channel": "sms", "create_user": true},
		bearer: c.AnonKey,
	}, nil)
	return err
}

// VerifyOTP exchanges a texted code for a session.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*domain.AuthSession, error) {
	var out tokenResponse
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body:   map[string]string{"type": "sms", "phone": phone, "token": code},
		bearer: c.AnonKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, ErrNoSession
	}
	return out.session(time.Now().UTC()), nil
}

// Refresh exchanges a refresh token for a new session. Refresh tokens are single-use.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrNoSession
	}
	var out tokenResponse
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
		bearer: c.AnonKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, ErrNoSession
	}
	return out.session(time.Now().UTC()), nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrNoSession
	}
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, nil)
	return err
}

// GetUser returns the identity behind accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	var out authUser
	if _, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		bearer: accessToken,
	}, &out); err != nil {
		return nil, err
	}
	return out.identity(), nil
}

// UpdateUser merges patch into the user's metadata and returns the updated identity.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, patch domain.ProfilePatch) (*domain.Identity, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	data := map[string]string{}
	if patch.Name != nil {
		data["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		data["email"] = strings.TrimSpace(*patch.Email)
	}
	if patch.Company != nil {
		data["company"] = strings.TrimSpace(*patch.Company)
	}
	var out authUser
	if _, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		body:   map[string]interface{}{"data": data},
		bearer: accessToken,
	}, &out); err != nil {
		return nil, err
	}
	return out.identity(), nil
}
