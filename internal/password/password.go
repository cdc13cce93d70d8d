// Package password wraps bcrypt hashing for employee credentials.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const minLength = 8

// ErrTooShort rejects passwords below the minimum length.
var ErrTooShort = errors.New("password must be at least 8 characters")

// Hash hashes a plaintext password with bcrypt.
func Hash(plain string) (string, error) {
	if len(plain) < minLength {
		return "", ErrTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares a plaintext password with its stored hash.
func Verify(hash, plain string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
