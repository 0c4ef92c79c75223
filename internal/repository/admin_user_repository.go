package repository

import (
	"context"
	"database/sql"

	"github.com/angelshop/reservation-api/internal/model"
)

// AdminUserRepo provides read access to staff accounts.  Admin accounts
// are provisioned out of band (seed script or manual insert); the API
// only ever authenticates against them.
type AdminUserRepo struct {
	db *sql.DB
}

// NewAdminUserRepo returns a new AdminUserRepo bound to the given database.
func NewAdminUserRepo(db *sql.DB) *AdminUserRepo { return &AdminUserRepo{db: db} }

// FindByEmail returns the active admin with the given email or
// sql.ErrNoRows when none exists.
func (r *AdminUserRepo) FindByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	const q = `SELECT id, email, password_hash, is_active, created_at, updated_at
	           FROM admin_users WHERE email = ? AND is_active = TRUE`
	var u model.AdminUser
	err := r.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
