package utils

import "golang.org/x/crypto/bcrypt"

// HashSecret returns the bcrypt hash of plain using the given cost.  It
// is used for admin passwords and for one-time login codes, which are
// stored hashed so a database leak does not expose pending codes.
func HashSecret(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifySecret safely compares a bcrypt hash and a plain value.
func VerifySecret(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
