package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used unless overridden.
const DefaultCost = bcrypt.DefaultCost

// Hasher hashes and verifies account passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Check(hash, password string) error
}

// BCryptHasher is the bcrypt implementation of Hasher.
type BCryptHasher struct {
	cost int
}

// NewBCryptHasher creates a hasher. An out-of-range cost falls back to
// DefaultCost.
func NewBCryptHasher(cost int) *BCryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BCryptHasher{cost: cost}
}

// Hash hashes a password.
func (h *BCryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hashedBytes), nil
}

// Check verifies a password against its stored hash.
func (h *BCryptHasher) Check(hash, password string) error {
	if hash == "" || password == "" {
		return fmt.Errorf("hash and password cannot be empty")
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("password does not match")
		}
		return fmt.Errorf("failed to check password: %w", err)
	}

	return nil
}
