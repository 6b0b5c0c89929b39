package repository

import (
	"context"

	"github.com/dwongdev/defguard/internal/model"
)

// UserRepository provides access to the minimal local account records.
type UserRepository interface {
	// Create inserts a new user. Duplicate username/email yields ErrConflict.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetByEmail loads a user by the email the identity provider reports.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// DeviceOwner loads the owning user of a device, or ErrNotFound for
	// network-kind devices without an owner.
	DeviceOwner(ctx context.Context, deviceID int64) (*model.User, error)
}
