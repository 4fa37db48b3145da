package pkg

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	PasswordHashCost  = 12
	MinPasswordLength = 6
	// MaxPasswordLength is the bcrypt input limit, longer passwords cannot be hashed.
	MaxPasswordLength = 72
)

var ErrPasswordTooLong = errors.New("password too long")

func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	return BytesToString(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	if len(password) > MaxPasswordLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
