// Package password wraps bcrypt hashing for credential verification.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is deliberately above bcrypt.DefaultCost; hashing is meant
// to be slow.
const DefaultCost = 12

// Hasher hashes and verifies secrets with a fixed cost
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted one-way digest of the secret
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("password: empty secret")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify recomputes and compares in constant time. It reports only
// match or mismatch, nothing about where the comparison diverged.
func (h *Hasher) Verify(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
