package service

import (
	"context"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/repository"
	"github.com/dwongdev/defguard/internal/wireguard"
)

// MembershipService defines enrollment and the authorization lifecycle of
// devices inside networks.
type MembershipService interface {
	// Enroll adds a device to a network, assigning one free address per
	// network range and a fresh preshared key. The membership starts
	// unauthorized. Network-kind devices can hold at most one membership.
	Enroll(ctx context.Context, networkID, deviceID int64) (*model.Membership, error)
	// Get loads one membership.
	Get(ctx context.Context, id int64) (*model.Membership, error)
	// GetByDeviceNetwork loads the membership of a device in a network.
	GetByDeviceNetwork(ctx context.Context, deviceID, networkID int64) (*model.Membership, error)
	// ListByNetwork returns all memberships of a network.
	ListByNetwork(ctx context.Context, networkID int64) ([]model.Membership, error)
	// Authorize grants access and announces the peer to gateways. Granting
	// an already authorized membership changes nothing and succeeds.
	Authorize(ctx context.Context, id int64) error
	// Revoke withdraws access. Revoking an already revoked membership
	// succeeds without effect.
	Revoke(ctx context.Context, id int64) error
	// Remove deletes the membership entirely.
	Remove(ctx context.Context, id int64) error
	// ClientConfig renders the tunnel configuration for one membership.
	ClientConfig(ctx context.Context, id int64) (string, error)
}

type MembershipServiceImpl struct {
	memberships repository.MembershipRepository
	devices     repository.DeviceRepository
	networks    repository.NetworkRepository
	notifier    GatewayNotifier
	log         *zap.Logger
}

// NewMembershipService constructs MembershipService with required dependencies.
func NewMembershipService(memberships repository.MembershipRepository, devices repository.DeviceRepository, networks repository.NetworkRepository, notifier GatewayNotifier, log *zap.Logger) *MembershipServiceImpl {
	return &MembershipServiceImpl{memberships: memberships, devices: devices, networks: networks, notifier: notifier, log: log}
}

// Enroll assigns addresses from the network ranges and inserts the
// membership. Enrolling the same device twice yields ErrConflict.
func (s *MembershipServiceImpl) Enroll(ctx context.Context, networkID, deviceID int64) (*model.Membership, error) {
	n, err := s.networks.GetByID(ctx, networkID)
	if err != nil {
		return nil, err
	}
	d, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.Kind == model.DeviceKindNetwork {
		// Infrastructure devices belong to exactly one network.
		existing, err := s.memberships.ListByDevice(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, errs.ErrConflict
		}
	}
	taken, err := s.memberships.TakenAddresses(ctx, networkID)
	if err != nil {
		return nil, err
	}

	addrs := make([]netip.Addr, 0, len(n.Address))
	for _, prefix := range n.Address {
		a, err := wireguard.NextFreeAddress(prefix, taken)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	psk, err := wireguard.GeneratePresharedKey()
	if err != nil {
		return nil, err
	}

	m := &model.Membership{
		NetworkID:    networkID,
		DeviceID:     deviceID,
		Addresses:    addrs,
		PresharedKey: psk,
	}
	if err := s.memberships.Enroll(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get fetches a single membership by id.
func (s *MembershipServiceImpl) Get(ctx context.Context, id int64) (*model.Membership, error) {
	return s.memberships.GetByID(ctx, id)
}

// GetByDeviceNetwork fetches the membership of a device in a network.
func (s *MembershipServiceImpl) GetByDeviceNetwork(ctx context.Context, deviceID, networkID int64) (*model.Membership, error) {
	return s.memberships.GetByDeviceNetwork(ctx, deviceID, networkID)
}

// ListByNetwork returns all memberships of a network.
func (s *MembershipServiceImpl) ListByNetwork(ctx context.Context, networkID int64) ([]model.Membership, error) {
	return s.memberships.ListByNetwork(ctx, networkID)
}

// Authorize flips the membership to authorized and pushes the peer. The
// store serializes concurrent grants per membership; only the transition
// triggers a push.
func (s *MembershipServiceImpl) Authorize(ctx context.Context, id int64) error {
	m, err := s.memberships.GetByID(ctx, id)
	if err != nil {
		return err
	}
	changed, err := s.memberships.Authorize(ctx, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.pushPeer(ctx, m)
	return nil
}

// Revoke clears the authorization and withdraws the peer. Idempotent.
func (s *MembershipServiceImpl) Revoke(ctx context.Context, id int64) error {
	m, err := s.memberships.GetByID(ctx, id)
	if err != nil {
		return err
	}
	changed, err := s.memberships.Revoke(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.withdrawPeer(ctx, m)
	return nil
}

// Remove deletes the membership. An authorized one is withdrawn from
// gateways first.
func (s *MembershipServiceImpl) Remove(ctx context.Context, id int64) error {
	m, err := s.memberships.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.memberships.Delete(ctx, id); err != nil {
		return err
	}
	if m.IsAuthorized {
		s.withdrawPeer(ctx, m)
	}
	return nil
}

// ClientConfig renders the WireGuard tunnel file for the device side of
// one membership.
func (s *MembershipServiceImpl) ClientConfig(ctx context.Context, id int64) (string, error) {
	m, err := s.memberships.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	n, err := s.networks.GetByID(ctx, m.NetworkID)
	if err != nil {
		return "", err
	}
	return wireguard.RenderClientConfig(n, m), nil
}

// pushPeer announces the membership's device to its network. Best-effort.
func (s *MembershipServiceImpl) pushPeer(ctx context.Context, m *model.Membership) {
	d, err := s.devices.GetByID(ctx, m.DeviceID)
	if err != nil {
		s.log.Warn("peer push skipped", zap.Int64("membership_id", m.ID), zap.Error(err))
		return
	}
	if !d.Configured {
		return
	}
	n, err := s.networks.GetByID(ctx, m.NetworkID)
	if err != nil {
		s.log.Warn("peer push skipped", zap.Int64("membership_id", m.ID), zap.Error(err))
		return
	}
	s.notifier.PeerUpserted(m.NetworkID, gatewayPeer(d, m, n.KeepaliveInterval))
}

// withdrawPeer removes the membership's device from its network. Best-effort.
func (s *MembershipServiceImpl) withdrawPeer(ctx context.Context, m *model.Membership) {
	d, err := s.devices.GetByID(ctx, m.DeviceID)
	if err != nil {
		s.log.Warn("peer withdrawal skipped", zap.Int64("membership_id", m.ID), zap.Error(err))
		return
	}
	s.notifier.PeerRemoved(m.NetworkID, model.GatewayPeer{DeviceID: d.ID, PublicKey: d.PublicKey})
}
