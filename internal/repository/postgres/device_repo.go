package postgres

import (
	"context"
	"errors"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/jackc/pgx/v5"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

// Create inserts a new device row and fills the generated ID.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
	const q = `
INSERT INTO device (name, wireguard_pubkey, user_id, kind, description, configured)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		d.Name, d.PublicKey, d.UserID, d.Kind, d.Description, d.Configured,
	).Scan(&d.ID, &d.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return errs.ErrConflict
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	}
	return err
}

// GetByID selects a device by ID.
func (r *DeviceRepo) GetByID(ctx context.Context, id int64) (*model.Device, error) {
	const q = `
SELECT id, name, wireguard_pubkey, user_id, kind, description, configured, created_at
FROM device WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByPublicKey selects a device by its WireGuard public key.
func (r *DeviceRepo) GetByPublicKey(ctx context.Context, pubkey string) (*model.Device, error) {
	const q = `
SELECT id, name, wireguard_pubkey, user_id, kind, description, configured, created_at
FROM device WHERE wireguard_pubkey=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, pubkey))
}

// ListByUser selects all devices owned by a user, oldest first.
func (r *DeviceRepo) ListByUser(ctx context.Context, userID int64) ([]model.Device, error) {
	const q = `
SELECT id, name, wireguard_pubkey, user_id, kind, description, configured, created_at
FROM device WHERE user_id=$1 ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(
			&d.ID, &d.Name, &d.PublicKey, &d.UserID, &d.Kind,
			&d.Description, &d.Configured, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update rewrites mutable device fields.
func (r *DeviceRepo) Update(ctx context.Context, d *model.Device) error {
	const q = `
UPDATE device SET name=$2, wireguard_pubkey=$3, description=$4, configured=$5
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, d.ID, d.Name, d.PublicKey, d.Description, d.Configured)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a device row; memberships and stats follow via cascade.
func (r *DeviceRepo) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM device WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) scanOne(row pgx.Row) (*model.Device, error) {
	var d model.Device
	if err := row.Scan(
		&d.ID, &d.Name, &d.PublicKey, &d.UserID, &d.Kind,
		&d.Description, &d.Configured, &d.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
