package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewReservationCode returns a short, uppercase, human-typeable code used
// to identify a reservation.  It is the first segment of a random UUID
// (8 hex characters) uppercased, e.g. "3F2A9C01".  Uniqueness is
// enforced by the unique index on reservations.code; callers retry on a
// duplicate-key error.
func NewReservationCode() string {
	return strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
}

// NewOtpDigits returns a cryptographically random six-digit login code,
// zero-padded.
func NewOtpDigits() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
