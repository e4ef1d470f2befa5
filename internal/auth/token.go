// Package auth issues and validates the portal's session tokens and carries
// the authenticated principal through request contexts. Role gating lives
// here too; the HTTP layer only ever asks "may this principal do X".
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "egov-portal"

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims embedded in a session token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenSource signs and validates HS256 session tokens. Construct one at
// startup from the configured secret and inject it where needed.
type TokenSource struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSource builds a TokenSource. The secret must be non-empty.
func NewTokenSource(secret string, ttl time.Duration) (*TokenSource, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth secret is not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSource{secret: []byte(secret), ttl: ttl}, nil
}

// Generate signs a token for the given user and role.
func (t *TokenSource) Generate(userID, role string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	if !ValidRole(role) {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate verifies the token signature and required claims.
func (t *TokenSource) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !ValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Principal is the authenticated identity plus role the portal core trusts.
type Principal struct {
	UserID string
	Role   string
}

// PrincipalFromClaims builds the principal a validated token represents.
func PrincipalFromClaims(c *Claims) Principal {
	return Principal{UserID: c.Subject, Role: c.Role}
}
