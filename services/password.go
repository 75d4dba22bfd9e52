package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	generatedPasswordLen = 10
	passwordSymbols      = "!@#$%&*"
	passwordUpper        = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordLower        = "abcdefghijkmnopqrstuvwxyz"
	passwordDigits       = "23456789"
)

// GenerateSecurePassword returns a random password holding at least one
// character of each class. Do not log the result.
func GenerateSecurePassword() (string, error) {
	classes := []string{passwordUpper, passwordLower, passwordDigits, passwordSymbols}
	all := passwordUpper + passwordLower + passwordDigits + passwordSymbols

	out := make([]byte, generatedPasswordLen)
	for i := range out {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := randomIndex(len(set))
		if err != nil {
			return "", err
		}
		out[i] = set[c]
	}
	// Fisher-Yates so the guaranteed classes are not always up front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", fmt.Errorf("shuffle: %w", err)
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func HashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", invalid("password", "must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
