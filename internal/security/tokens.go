package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token. Subject is the decimal user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Identity is the authenticated caller extracted from a valid access token.
type Identity struct {
	UserID    int64
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

// TokenProvider issues and validates JWT access tokens using RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey and verifies with publicKey.
// issuer and audience are set on issued claims and required on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccess issues an access JWT for the user. Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(userID int64, username string) (token, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	now := p.now()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	}
	token, err = p.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	return jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud) and returns the caller.
func (p *TokenProvider) ValidateAccess(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer || !slices.Contains(claims.Audience, p.audience) {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:    userID,
		Username:  claims.Username,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
