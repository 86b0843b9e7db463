// Package token encodes and decodes the signed, self-expiring session
// credential. Validity is determined purely by signature and expiry; the
// server keeps no session table.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/docuport/portal-api/internal/models"
)

var (
	// ErrInvalidToken covers every structural or signature failure.
	// Parse never reports which check failed.
	ErrInvalidToken = errors.New("token: invalid token")

	// ErrExpired indicates the embedded expiry has passed
	ErrExpired = errors.New("token: expired")
)

// Claims is the identity payload embedded in a session token
type Claims struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with a server-held HMAC secret
type Codec struct {
	secret []byte
	issuer string
}

func NewCodec(secret, issuer string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	return &Codec{secret: []byte(secret), issuer: issuer}, nil
}

// Issue mints a signed token carrying the identity and an absolute expiry.
// Serialization faults are unexpected and surface as errors.
func (c *Codec) Issue(identity models.Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token: ttl must be greater than zero")
	}

	now := time.Now().UTC()
	claims := Claims{
		Email:    identity.Email,
		Role:     string(identity.Role),
		FullName: identity.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the embedded identity.
// HMAC comparison is constant-time inside the library. Every failure maps to
// ErrInvalidToken or ErrExpired with no further detail.
func (c *Codec) Parse(tokenString string) (*models.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := c.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}

	// A token minted while the account was ACTIVE stays valid until its
	// expiry; status changes take effect on the next login.
	return &models.Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Role:     models.Role(claims.Role),
		FullName: claims.FullName,
		Status:   models.StatusActive,
	}, nil
}

func (c *Codec) validateClaims(claims *Claims) error {
	if c.issuer != "" && claims.Issuer != c.issuer {
		return ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrInvalidToken
	}
	if !models.Role(claims.Role).Valid() {
		return ErrInvalidToken
	}
	return nil
}
