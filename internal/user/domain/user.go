package domain

import (
	"errors"
	"strings"
	"time"
)

// User is an account that can own projects, hold memberships and be assigned tasks.
// Only the credential fields change after registration.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Summary is the public view of a user embedded in task and member responses.
type Summary struct {
	ID       int64
	Username string
	Email    string
}

// Summary returns the public view of u.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Email: u.Email}
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email has the minimal shape of an address: an @ followed by a dotted domain.
func ValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return errors.New("username is required")
	}
	if !ValidEmail(u.Email) {
		return errors.New("email is not valid")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}
