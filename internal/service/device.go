// Package service contains application services over the store: devices,
// networks, memberships and telemetry.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/repository"
	"github.com/dwongdev/defguard/internal/wireguard"
)

// DeviceService defines operations over WireGuard devices.
type DeviceService interface {
	// Create registers a device after validating its public key.
	Create(ctx context.Context, d *model.Device) error
	// Get loads one device.
	Get(ctx context.Context, id int64) (*model.Device, error)
	// GetByPublicKey loads a device by its WireGuard public key.
	GetByPublicKey(ctx context.Context, pubkey string) (*model.Device, error)
	// ListForUser returns the devices a user owns.
	ListForUser(ctx context.Context, userID int64) ([]model.Device, error)
	// Update rewrites device fields and re-announces the peer where authorized.
	Update(ctx context.Context, d *model.Device) error
	// Delete removes a device and withdraws it from every gateway.
	Delete(ctx context.Context, id int64) error
}

type DeviceServiceImpl struct {
	devices     repository.DeviceRepository
	memberships repository.MembershipRepository
	networks    repository.NetworkRepository
	notifier    GatewayNotifier
	log         *zap.Logger
}

// NewDeviceService constructs DeviceService with required dependencies.
func NewDeviceService(devices repository.DeviceRepository, memberships repository.MembershipRepository, networks repository.NetworkRepository, notifier GatewayNotifier, log *zap.Logger) *DeviceServiceImpl {
	return &DeviceServiceImpl{devices: devices, memberships: memberships, networks: networks, notifier: notifier, log: log}
}

// Create registers a device. Kind defaults to user; user devices must
// carry an owner.
func (s *DeviceServiceImpl) Create(ctx context.Context, d *model.Device) error {
	if d != nil && d.Kind == "" {
		d.Kind = model.DeviceKindUser
	}
	if err := validateDevice(d); err != nil {
		return err
	}
	return s.devices.Create(ctx, d)
}

// Get fetches a single device by id.
func (s *DeviceServiceImpl) Get(ctx context.Context, id int64) (*model.Device, error) {
	return s.devices.GetByID(ctx, id)
}

// GetByPublicKey fetches a single device by its WireGuard public key.
func (s *DeviceServiceImpl) GetByPublicKey(ctx context.Context, pubkey string) (*model.Device, error) {
	if err := wireguard.ValidateKey(pubkey); err != nil {
		return nil, err
	}
	return s.devices.GetByPublicKey(ctx, pubkey)
}

// ListForUser returns all devices owned by a user.
func (s *DeviceServiceImpl) ListForUser(ctx context.Context, userID int64) ([]model.Device, error) {
	return s.devices.ListByUser(ctx, userID)
}

// Update rewrites device fields. Where the device is authorized and
// configured, the refreshed peer is re-pushed to gateways.
func (s *DeviceServiceImpl) Update(ctx context.Context, d *model.Device) error {
	if err := validateDevice(d); err != nil {
		return err
	}
	if err := s.devices.Update(ctx, d); err != nil {
		return err
	}
	s.refreshPeers(ctx, d)
	return nil
}

// Delete removes the device and withdraws its peer entries. The store
// cascade also drops memberships and samples.
func (s *DeviceServiceImpl) Delete(ctx context.Context, id int64) error {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ms, err := s.memberships.ListByDevice(ctx, id)
	if err != nil {
		return err
	}
	if err := s.devices.Delete(ctx, id); err != nil {
		return err
	}
	for i := range ms {
		if ms[i].IsAuthorized {
			s.notifier.PeerRemoved(ms[i].NetworkID, model.GatewayPeer{DeviceID: d.ID, PublicKey: d.PublicKey})
		}
	}
	return nil
}

// refreshPeers re-announces the device to every network where it is
// authorized. Best-effort: gateways converge on reconnect anyway.
func (s *DeviceServiceImpl) refreshPeers(ctx context.Context, d *model.Device) {
	if !d.Configured {
		return
	}
	ms, err := s.memberships.ListByDevice(ctx, d.ID)
	if err != nil {
		s.log.Warn("peer refresh skipped", zap.Int64("device_id", d.ID), zap.Error(err))
		return
	}
	for i := range ms {
		m := &ms[i]
		if !m.IsAuthorized {
			continue
		}
		n, err := s.networks.GetByID(ctx, m.NetworkID)
		if err != nil {
			s.log.Warn("peer refresh skipped", zap.Int64("network_id", m.NetworkID), zap.Error(err))
			continue
		}
		s.notifier.PeerUpserted(m.NetworkID, gatewayPeer(d, m, n.KeepaliveInterval))
	}
}

func validateDevice(d *model.Device) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("%w: empty device name", errs.ErrValidation)
	}
	if err := wireguard.ValidateKey(d.PublicKey); err != nil {
		return err
	}
	if d.Kind == model.DeviceKindUser && d.UserID == nil {
		return fmt.Errorf("%w: user device without owner", errs.ErrValidation)
	}
	return nil
}
