package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the computational cost for password hashing
	// Cost 12 provides strong security while remaining performant
	BcryptCost = 12
)

// HashPassword hashes a plaintext password using bcrypt with cost 12
// Returns the bcrypt hash string or an error if hashing fails
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash
// Returns nil if the password matches, an error otherwise
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// CheckAdminPassword compares password with the configured HT_ADMIN_PASSWORD_HASH.
// A bcrypt value is verified as such; anything else matches either the raw password or its
// base64 encoding. This is a soft gate for a family photo tree, not a security boundary.
func CheckAdminPassword(configured, password string) bool {
	if configured == "" || password == "" {
		return false
	}
	if isBcryptHash(configured) {
		return VerifyPassword(configured, password) == nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(password))
	return constantTimeEqual(configured, password) || constantTimeEqual(configured, encoded)
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
