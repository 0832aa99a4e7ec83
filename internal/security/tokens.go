// Package security mints and validates the locally signed credentials used when no backend is configured.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrShortKey is returned when the signing key is too short for HS256.
	ErrShortKey = errors.New("signing key must be at least 32 bytes")
)

const (
	// DemoIssuer is the iss claim of demo credentials.
	DemoIssuer = "resultmarketing-demo"
	// DemoAudience is the aud claim of demo credentials.
	DemoAudience = "authenticated"
)

// DemoClaims holds JWT claims for a demo access token.
type DemoClaims struct {
	jwt.RegisteredClaims
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// TokenProvider issues and validates HS256 demo access tokens.
type TokenProvider struct {
	key       []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with key. A nil key generates a random one,
// so tokens only validate within the process that minted them.
func NewTokenProvider(key []byte, accessTTL time.Duration) (*TokenProvider, error) {
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	if len(key) < 32 {
		return nil, ErrShortKey
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &TokenProvider{key: key, accessTTL: accessTTL, now: time.Now}, nil
}

// IssueAccess issues an access JWT for the demo user. Returns the token and its expiration time.
func (p *TokenProvider) IssueAccess(userID, phone string) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := DemoClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    DemoIssuer,
			Audience:  jwt.ClaimStrings{DemoAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Phone: phone,
		Role:  DemoAudience,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	return token, expiresAt, err
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
// Returns userID and phone, or error.
func (p *TokenProvider) ValidateAccess(tokenString string) (userID, phone string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &DemoClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return p.key, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithIssuer(DemoIssuer), jwt.WithAudience(DemoAudience), jwt.WithTimeFunc(p.now))
	if err != nil {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*DemoClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.Phone, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
