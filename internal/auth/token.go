// Package auth issues and verifies the bearer tokens carried by API requests.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/types"
)

// DefaultTTL is the token lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

var (
	errInvalidSigningMethod = errors.New("invalid signing method")
	errMissingClaims        = errors.New("missing identity claims")
)

// Claims is the identity carried by a token.
type Claims struct {
	ID    int        `json:"id"`
	Email string     `json:"email"`
	Role  types.Role `json:"role"`
}

type tokenClaims struct {
	Email string     `json:"email"`
	Role  types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens. There is no revocation list:
// expiry is the only way a token stops being valid.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for claims.
func (i *Issuer) Issue(claims Claims) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: claims.Email,
		Role:  claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(claims.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// claims. Every failure is an apperr.KindInvalidToken error.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	parsed := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidSigningMethod
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, apperr.InvalidToken(err)
	}
	if !token.Valid {
		return Claims{}, apperr.InvalidToken(errors.New("invalid token"))
	}

	id, err := strconv.Atoi(strings.TrimSpace(parsed.Subject))
	if err != nil || id < 1 || !parsed.Role.Valid() {
		return Claims{}, apperr.InvalidToken(errMissingClaims)
	}
	return Claims{ID: id, Email: parsed.Email, Role: parsed.Role}, nil
}

// ParseTTL reads a token lifetime such as "24h", "90m" or "7d".
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultTTL, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid token ttl %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid token ttl %q", raw)
	}
	return d, nil
}
