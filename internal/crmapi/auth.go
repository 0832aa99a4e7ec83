package crmapi

import (
	"context"
	"net/http"
	"time"
)

// Auth is the primary service's phone sign-in and profile API.
type Auth struct {
	c Doer
}

// OTPResult acknowledges a code request.
type OTPResult struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

// Profile is the signed-in user as the primary service sees them.
type Profile struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ProfileUpdate holds the profile fields to change. Empty fields are left untouched.
type ProfileUpdate struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

// VerifyResult is the session issued for a verified code.
type VerifyResult struct {
	User         Profile `json:"user"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    int     `json:"expires_in"`
}

func (a *Auth) SendOTP(ctx context.Context, phone string) (*OTPResult, error) {
	return post[OTPResult](ctx, a.c, "/auth/otp/send", map[string]string{"phone": phone})
}

func (a *Auth) VerifyOTP(ctx context.Context, phone, code string) (*VerifyResult, error) {
	return post[VerifyResult](ctx, a.c, "/auth/otp/verify", map[string]string{"phone": phone, "code": code})
}

func (a *Auth) Profile(ctx context.Context) (*Profile, error) {
	return get[Profile](ctx, a.c, "/auth/profile", nil)
}

func (a *Auth) UpdateProfile(ctx context.Context, u ProfileUpdate) (*Profile, error) {
	return put[Profile](ctx, a.c, "/auth/profile", u)
}

func (a *Auth) Logout(ctx context.Context) error {
	return jsonExec(ctx, a.c, http.MethodPost, "/auth/logout", nil)
}
