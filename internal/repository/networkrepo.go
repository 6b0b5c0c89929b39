package repository

import (
	"context"

	"github.com/dwongdev/defguard/internal/model"
)

// NetworkRepository provides access to WireGuard network records.
type NetworkRepository interface {
	// Create inserts a new network and assigns its ID.
	Create(ctx context.Context, n *model.Network) error
	// GetByID loads a network by ID.
	GetByID(ctx context.Context, id int64) (*model.Network, error)
	// List returns all networks.
	List(ctx context.Context) ([]model.Network, error)
	// Update rewrites mutable network fields.
	Update(ctx context.Context, n *model.Network) error
	// Delete removes a network together with its network-kind devices.
	Delete(ctx context.Context, id int64) error
}
