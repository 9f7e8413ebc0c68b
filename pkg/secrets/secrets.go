// Package secrets wraps credentials in a wipeable buffer and provides the
// hashing primitives concrete stores use to persist them.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "idrealm/pkg/domain-errors"
)

// Secret holds a credential in a buffer the caller must zero when done.
// Every code path that creates one is responsible for calling Clear on all
// exits, including error paths.
type Secret struct {
	buf     []byte
	cleared bool
}

// NewSecret copies the credential bytes into a fresh buffer.
func NewSecret(credential []byte) *Secret {
	buf := make([]byte, len(credential))
	copy(buf, credential)
	return &Secret{buf: buf}
}

// FromString wraps a string credential.
func FromString(credential string) *Secret {
	return NewSecret([]byte(credential))
}

// Bytes exposes the underlying buffer. It panics after Clear, which turns a
// use-after-wipe bug into a loud failure instead of authenticating against
// zeroed bytes.
func (s *Secret) Bytes() []byte {
	if s.cleared {
		panic("secrets: use of cleared secret")
	}
	return s.buf
}

// IsEmpty reports whether the secret holds no bytes.
func (s *Secret) IsEmpty() bool {
	return s == nil || len(s.buf) == 0
}

// Equal compares in constant time.
func (s *Secret) Equal(other *Secret) bool {
	if s == nil || other == nil || s.cleared || other.cleared {
		return false
	}
	return subtle.ConstantTimeCompare(s.buf, other.buf) == 1
}

// Clear zeroes the buffer. Safe to call more than once.
func (s *Secret) Clear() {
	if s == nil || s.cleared {
		return
	}
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.cleared = true
}

// Generate creates a cryptographically secure random secret string,
// base64-encoded, suitable for seeding bootstrap credentials.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of the provided secret for storage.
func Hash(secret *Secret) (string, error) {
	if secret.IsEmpty() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword(secret.Bytes(), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "credential is too long")
		}
		return "", fmt.Errorf("could not hash credential: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext secret against a bcrypt hash.
func Verify(secret *Secret, hash string) error {
	if secret.IsEmpty() {
		return dErrors.New(dErrors.CodeInvalidInput, "credential cannot be empty")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), secret.Bytes()); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeAuthentication, "invalid credential")
		}
		return fmt.Errorf("could not verify credential: %w", err)
	}
	return nil
}
