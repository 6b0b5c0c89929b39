package postgres

import (
	"context"
	"errors"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, username, email, mfa_method, totp_secret, is_active, created_at`

// Create inserts a new user row and fills the generated ID.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (username, email, mfa_method, totp_secret, is_active)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		u.Username, u.Email, u.MFAMethod, u.TOTPSecret, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE username=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, email))
}

// DeviceOwner selects the owning user of a device.
func (r *UserRepo) DeviceOwner(ctx context.Context, deviceID int64) (*model.User, error) {
	const q = `
SELECT u.id, u.username, u.email, u.mfa_method, u.totp_secret, u.is_active, u.created_at
FROM users u
JOIN device d ON d.user_id = u.id
WHERE d.id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, deviceID))
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.MFAMethod, &u.TOTPSecret, &u.IsActive, &u.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
