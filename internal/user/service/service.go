package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/security"
	"pmt/backend/internal/user/domain"
)

// Sentinel errors for the user service; the gRPC layer maps both to Unauthenticated.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// UserRepo is the minimal user repository needed by the service.
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// LoginResult is returned by Login.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        domain.Summary
}

// Service implements registration, password login, logout and token authentication.
type Service struct {
	users   UserRepo
	hasher  *security.Hasher
	tokens  *security.TokenProvider
	revoked security.RevocationStore
	log     logrus.FieldLogger
}

// New returns a user Service. tokens may be nil when authentication is disabled; Login and Authenticate then fail.
func New(users UserRepo, hasher *security.Hasher, tokens *security.TokenProvider, revoked security.RevocationStore, log logrus.FieldLogger) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens, revoked: revoked, log: log}
}

// Register creates a user. The email must look like an address and must not be registered yet.
func (s *Service) Register(ctx context.Context, email, username, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	username = strings.TrimSpace(username)
	if !domain.ValidEmail(email) {
		return nil, apperr.Validation("email is not valid")
	}
	if username == "" {
		return nil, apperr.Validation("username is required")
	}
	if password == "" {
		return nil, apperr.Validation("password is required")
	}
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperr.Validation("email " + email + " is already registered")
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.Internal("register", err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal("register", err)
	}
	u := &domain.User{Username: username, Email: email, PasswordHash: hash}
	if err := u.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperr.Internal("register", err)
	}
	s.log.WithField("user_id", u.ID).Info("user registered")
	return u, nil
}

// Login verifies the password and issues an access token.
// Unknown email and wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if s.tokens == nil {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Internal("login", err)
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		s.log.WithField("user_id", u.ID).Warn("login rejected")
		return nil, ErrInvalidCredentials
	}
	token, _, exp, err := s.tokens.IssueAccess(u.ID, u.Username)
	if err != nil {
		return nil, apperr.Internal("login", err)
	}
	return &LoginResult{AccessToken: token, ExpiresAt: exp, User: u.Summary()}, nil
}

// Authenticate validates an access token and rejects tokens revoked by Logout.
func (s *Service) Authenticate(ctx context.Context, token string) (*security.Identity, error) {
	if s.tokens == nil {
		return nil, ErrInvalidCredentials
	}
	id, err := s.tokens.ValidateAccess(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.revoked != nil && s.revoked.IsRevoked(ctx, id.TokenID) {
		return nil, ErrTokenRevoked
	}
	return id, nil
}

// Logout revokes the token until it expires. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.tokens == nil {
		return ErrInvalidCredentials
	}
	id, err := s.tokens.ValidateAccess(token)
	if err != nil {
		return ErrInvalidCredentials
	}
	if s.revoked != nil {
		s.revoked.Revoke(ctx, id.TokenID, id.ExpiresAt)
	}
	s.log.WithField("user_id", id.UserID).Info("user logged out")
	return nil
}

// ChangePassword replaces the user's password after checking the current one.
// Tokens issued before the change stay valid until they expire or are logged out.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return apperr.Validation("new password is required")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.Internal("change password", err)
	}
	if err := s.hasher.Compare(u.PasswordHash, oldPassword); err != nil {
		s.log.WithField("user_id", userID).Warn("password change rejected")
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("change password", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return apperr.Internal("change password", err)
	}
	s.log.WithField("user_id", userID).Info("password changed")
	return nil
}

// GetUser returns the user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("get user", err)
	}
	return u, nil
}
