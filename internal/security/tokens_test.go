package security

import (
	"strings"
	"testing"
	"time"
)

var testKey = []byte(strings.Repeat("k", 32))

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTokenProvider(testKey, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	access, exp, err := p.IssueAccess("demo-user-1", "+60123456789")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" {
		t.Fatal("access token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}
	uid, phone, err := p.ValidateAccess(access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if uid != "demo-user-1" || phone != "+60123456789" {
		t.Errorf("ValidateAccess: got userID=%q phone=%q", uid, phone)
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p, err := NewTokenProvider(testKey, time.Minute)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	if _, _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateAccess invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateAccessWrongKey(t *testing.T) {
	p1, _ := NewTokenProvider(testKey, time.Minute)
	p2, _ := NewTokenProvider([]byte(strings.Repeat("x", 32)), time.Minute)
	access, _, err := p1.IssueAccess("u1", "+6011")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := p2.ValidateAccess(access); err != ErrInvalidToken {
		t.Errorf("ValidateAccess with other key: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, _ := NewTokenProvider(testKey, time.Minute)
	issued := time.Now()
	p.now = func() time.Time { return issued }
	access, _, err := p.IssueAccess("u1", "+6011")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	p.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, _, err := p.ValidateAccess(access); err != ErrInvalidToken {
		t.Errorf("ValidateAccess expired: want ErrInvalidToken, got %v", err)
	}
}

func TestNewTokenProvider_Keys(t *testing.T) {
	if _, err := NewTokenProvider([]byte("short"), time.Minute); err != ErrShortKey {
		t.Errorf("short key: want ErrShortKey, got %v", err)
	}
	p, err := NewTokenProvider(nil, 0)
	if err != nil {
		t.Fatalf("random key: %v", err)
	}
	if len(p.key) != 32 {
		t.Errorf("random key length = %d, want 32", len(p.key))
	}
	if p.accessTTL != time.Hour {
		t.Errorf("accessTTL = %v, want 1h", p.accessTTL)
	}
}
