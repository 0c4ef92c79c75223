package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/angelshop/reservation-api/internal/model"
)

// OtpRepo stores pending one-time login codes.  At most one active code
// exists per email: requesting a new code replaces the previous one.
type OtpRepo struct {
	db *sql.DB
}

// NewOtpRepo returns a new OtpRepo bound to the given database.
func NewOtpRepo(db *sql.DB) *OtpRepo { return &OtpRepo{db: db} }

// Replace deletes any existing code for the email and stores a fresh
// hash with its expiry, inside one transaction.
func (r *OtpRepo) Replace(ctx context.Context, email, codeHash string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM otp_codes WHERE email = ?`, email); err != nil {
		return err
	}
	const q = `INSERT INTO otp_codes (email, code_hash, attempts, expires_at) VALUES (?, ?, 0, ?)`
	if _, err := tx.ExecContext(ctx, q, email, codeHash, expiresAt.UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Find returns the pending code for an email or sql.ErrNoRows.
func (r *OtpRepo) Find(ctx context.Context, email string) (*model.OtpCode, error) {
	const q = `SELECT id, email, code_hash, attempts, expires_at, created_at FROM otp_codes WHERE email = ?`
	var o model.OtpCode
	err := r.db.QueryRowContext(ctx, q, email).Scan(
		&o.ID, &o.Email, &o.CodeHash, &o.Attempts, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// RecordFailure bumps the attempt counter after a wrong code.
func (r *OtpRepo) RecordFailure(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE otp_codes SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

// Consume removes all codes for an email, called after a successful
// verification or to invalidate stale codes.
func (r *OtpRepo) Consume(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE email = ?`, email)
	return err
}

// IsNoRows reports whether err is the driver's empty-result sentinel.
// Small convenience so handlers don't import database/sql for one check.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
