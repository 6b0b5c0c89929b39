// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/dwongdev/defguard/internal/model"
)

// DeviceRepository provides access to WireGuard device records.
type DeviceRepository interface {
	// Create inserts a new device. A duplicate public key yields ErrConflict.
	Create(ctx context.Context, d *model.Device) error
	// GetByID loads a device by ID.
	GetByID(ctx context.Context, id int64) (*model.Device, error)
	// GetByPublicKey loads a device by its WireGuard public key.
	GetByPublicKey(ctx context.Context, pubkey string) (*model.Device, error)
	// ListByUser returns all devices owned by a user.
	ListByUser(ctx context.Context, userID int64) ([]model.Device, error)
	// Update rewrites mutable device fields (name, pubkey, description, configured).
	Update(ctx context.Context, d *model.Device) error
	// Delete removes a device and, via cascade, its memberships and stats.
	Delete(ctx context.Context, id int64) error
}
