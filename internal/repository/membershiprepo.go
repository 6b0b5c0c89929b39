package repository

import (
	"context"
	"net/netip"
	"time"

	"github.com/dwongdev/defguard/internal/model"
)

// MembershipRepository provides access to device-network memberships.
// Authorize and Revoke serialize per row: concurrent mutations of the same
// membership are applied one at a time, last writer wins.
type MembershipRepository interface {
	// Enroll inserts a new membership. A duplicate (device, network) pair
	// yields ErrConflict.
	Enroll(ctx context.Context, m *model.Membership) error
	// GetByID loads a membership by ID.
	GetByID(ctx context.Context, id int64) (*model.Membership, error)
	// GetByDeviceNetwork loads the membership of a device in a network.
	GetByDeviceNetwork(ctx context.Context, deviceID, networkID int64) (*model.Membership, error)
	// ListByNetwork returns all memberships of a network.
	ListByNetwork(ctx context.Context, networkID int64) ([]model.Membership, error)
	// ListAuthorizedByNetwork returns the currently authorized memberships.
	ListAuthorizedByNetwork(ctx context.Context, networkID int64) ([]model.Membership, error)
	// ListByDevice returns all memberships of a device.
	ListByDevice(ctx context.Context, deviceID int64) ([]model.Membership, error)
	// TakenAddresses returns every assigned IP in a network.
	TakenAddresses(ctx context.Context, networkID int64) ([]netip.Addr, error)
	// Authorize marks the membership authorized at the given instant.
	// Reports false without error when it already was authorized.
	Authorize(ctx context.Context, id int64, at time.Time) (bool, error)
	// Revoke clears the authorization. Reports false without error when the
	// membership already was revoked.
	Revoke(ctx context.Context, id int64) (bool, error)
	// ListPeers returns gateway peer entries for a network: authorized
	// memberships of configured devices with their routing data.
	ListPeers(ctx context.Context, networkID int64) ([]model.GatewayPeer, error)
	// Delete removes a membership.
	Delete(ctx context.Context, id int64) error
}
