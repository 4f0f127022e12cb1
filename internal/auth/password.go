package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the one-way hashing capability used to protect
// credentials at rest.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt. The zero value uses
// bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost < bcrypt.MinCost || h.Cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash derives a bcrypt hash from the plaintext password.
func (h BcryptHasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares the plaintext password with a stored hash in constant time.
func (h BcryptHasher) Verify(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
