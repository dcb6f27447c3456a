package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "secret123" {
		t.Fatalf("Hash returned %q", hash)
	}
	if err := h.Compare(hash, "secret123"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, "wrong"); err == nil {
		t.Fatal("Compare with wrong password should fail")
	}
}

func TestHasher_EmptyPassword(t *testing.T) {
	if _, err := NewHasher(bcrypt.MinCost).Hash(""); err != ErrEmptyPassword {
		t.Errorf("want ErrEmptyPassword, got %v", err)
	}
}

func TestNewHasher_Clamps(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, bcrypt.DefaultCost},
		{-3, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{12, 12},
		{99, bcrypt.MaxCost},
	}
	for _, tt := range tests {
		if got := NewHasher(tt.in).Cost; got != tt.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}
