package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, jti, exp, err := p.IssueAccess(42, "alice")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" || jti == "" {
		t.Fatal("token or jti empty")
	}
	if !exp.After(time.Now()) {
		t.Fatal("expires at in the past")
	}

	id, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.UserID != 42 || id.Username != "alice" || id.TokenID != jti {
		t.Errorf("ValidateAccess = %+v", id)
	}
	if !id.ExpiresAt.Equal(exp.Truncate(time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", id.ExpiresAt, exp.Truncate(time.Second))
	}
}

func TestTokenProvider_UniqueJTI(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	_, a, _, _ := p.IssueAccess(1, "a")
	_, b, _, _ := p.IssueAccess(1, "a")
	if a == b {
		t.Error("two tokens share a jti")
	}
}

func TestTokenProvider_ValidateGarbage(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	issued := time.Now().UTC().Add(-time.Hour)
	p.now = func() time.Time { return issued }
	token, _, _, err := p.IssueAccess(1, "a")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	p.now = func() time.Time { return time.Now().UTC() }
	if _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_WrongAudience(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, _, err := p.IssueAccess(1, "a")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	other := NewTokenProvider(p.privateKey, p.publicKey, "test-issuer", "other-audience", time.Minute)
	if _, err := other.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}
	other = NewTokenProvider(p.privateKey, p.publicKey, "other-issuer", "test-audience", time.Minute)
	if _, err := other.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}
}
