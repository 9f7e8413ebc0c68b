// Package jwttoken issues and verifies the signed tokens returned after a
// successful authentication on the management API.
package jwttoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "idrealm/pkg/domain-errors"
)

// Claims is the token payload: the authenticated subject plus its resolved
// roles at issuance time.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and parses tokens with a shared HMAC key.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// New builds an issuer. TTL defaults to one hour.
func New(signingKey, issuer string, ttl time.Duration) (*Issuer, error) {
	if signingKey == "" {
		return nil, dErrors.New(dErrors.CodeConfiguration, "jwt signing key is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{key: []byte(signingKey), issuer: issuer, ttl: ttl}, nil
}

// Issue mints a token for an authenticated subject.
func (i *Issuer) Issue(subject string, roles []string, now time.Time) (string, error) {
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "token signing failed")
	}
	return signed, nil
}

// Parse verifies a token's signature and time bounds and returns its claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeAuthentication, "unexpected signing method %s", t.Method.Alg())
		}
		return i.key, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthentication, "token rejected")
	}
	if !token.Valid {
		return nil, dErrors.New(dErrors.CodeAuthentication, "token rejected")
	}
	return claims, nil
}
