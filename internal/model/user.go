package model

import "time"

// AdminUser is a staff account as stored in the `admin_users` table.
// Admins authenticate with email and password; customers never have an
// account and instead hold an OTP session (see OtpCode).
type AdminUser struct {
	ID           uint64    // admin_users.id
	Email        string    // admin_users.email
	PasswordHash string    // admin_users.password_hash (bcrypt)
	IsActive     bool      // admin_users.is_active
	CreatedAt    time.Time // admin_users.created_at
	UpdatedAt    time.Time // admin_users.updated_at
}

// OtpCode is a pending one-time login code for a customer email.  Only
// the bcrypt hash of the six-digit code is stored.  At most one active
// code exists per email; requesting a new code replaces the old one.
type OtpCode struct {
	ID        uint64    // otp_codes.id
	Email     string    // otp_codes.email
	CodeHash  string    // otp_codes.code_hash (bcrypt)
	Attempts  int       // otp_codes.attempts (failed verifications)
	ExpiresAt time.Time // otp_codes.expires_at
	CreatedAt time.Time // otp_codes.created_at
}
