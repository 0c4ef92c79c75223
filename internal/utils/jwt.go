package utils // package utils provides helper functions for token creation and hashing

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role names carried in the "role" claim of issued tokens.  Customers
// obtain a token by verifying an email OTP; admins by password login.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// SessionToken is a signed HS256 JWT together with its expiry.  The
// token is sent in the Authorization header on protected endpoints.
type SessionToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewSessionToken builds and signs an HS256 JWT identifying a subject
// email with the given role.  The JWT carries standard claims: subject
// (sub), role, expiration (exp) and issued at (iat).  Both customer OTP
// sessions and admin sessions use this shape; only the role differs.
func NewSessionToken(secret, email, role string, ttl time.Duration) (SessionToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  email,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}
