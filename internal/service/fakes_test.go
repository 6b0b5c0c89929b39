package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/netip"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/repository"
)

// testKey returns a syntactically valid WireGuard key filled with b.
func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func ptrInt64(v int64) *int64 { return &v }

type fakeDeviceRepo struct {
	byID  map[int64]*model.Device
	byKey map[string]*model.Device

	listOut []model.Device
	listErr error

	createErr error
	updateErr error
	deleteErr error

	created  []*model.Device
	updatedN int
	deletedN int
}

var _ repository.DeviceRepository = (*fakeDeviceRepo)(nil)

func (f *fakeDeviceRepo) Create(_ context.Context, d *model.Device) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDeviceRepo) GetByID(_ context.Context, id int64) (*model.Device, error) {
	if d, ok := f.byID[id]; ok {
		return d, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeDeviceRepo) GetByPublicKey(_ context.Context, pubkey string) (*model.Device, error) {
	if d, ok := f.byKey[pubkey]; ok {
		return d, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeDeviceRepo) ListByUser(_ context.Context, _ int64) ([]model.Device, error) {
	return append([]model.Device(nil), f.listOut...), f.listErr
}

func (f *fakeDeviceRepo) Update(_ context.Context, _ *model.Device) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedN++
	return nil
}

func (f *fakeDeviceRepo) Delete(_ context.Context, _ int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedN++
	return nil
}

type fakeNetworkRepo struct {
	byID map[int64]*model.Network

	listOut []model.Network
	listErr error

	createErr error
	updateErr error
	deleteErr error

	created  []*model.Network
	updatedN int
	deletedN int
}

var _ repository.NetworkRepository = (*fakeNetworkRepo)(nil)

func (f *fakeNetworkRepo) Create(_ context.Context, n *model.Network) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNetworkRepo) GetByID(_ context.Context, id int64) (*model.Network, error) {
	if n, ok := f.byID[id]; ok {
		return n, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeNetworkRepo) List(_ context.Context) ([]model.Network, error) {
	return append([]model.Network(nil), f.listOut...), f.listErr
}

func (f *fakeNetworkRepo) Update(_ context.Context, _ *model.Network) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedN++
	return nil
}

func (f *fakeNetworkRepo) Delete(_ context.Context, _ int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedN++
	return nil
}

type fakeMembershipRepo struct {
	byID      map[int64]*model.Membership
	byDevice  map[int64][]model.Membership
	byNetwork map[int64][]model.Membership

	taken    []netip.Addr
	takenErr error

	enrollErr error
	enrolled  []*model.Membership

	authChanged bool
	authErr     error
	authInID    int64
	authInAt    time.Time

	revChanged bool
	revErr     error
	revInID    int64

	peersOut []model.GatewayPeer
	peersErr error

	deleteErr error
	deletedN  int
}

var _ repository.MembershipRepository = (*fakeMembershipRepo)(nil)

func (f *fakeMembershipRepo) Enroll(_ context.Context, m *model.Membership) error {
	if f.enrollErr != nil {
		return f.enrollErr
	}
	f.enrolled = append(f.enrolled, m)
	return nil
}

func (f *fakeMembershipRepo) GetByID(_ context.Context, id int64) (*model.Membership, error) {
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeMembershipRepo) GetByDeviceNetwork(_ context.Context, deviceID, networkID int64) (*model.Membership, error) {
	for _, m := range f.byDevice[deviceID] {
		if m.NetworkID == networkID {
			out := m
			return &out, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeMembershipRepo) ListByNetwork(_ context.Context, networkID int64) ([]model.Membership, error) {
	return append([]model.Membership(nil), f.byNetwork[networkID]...), nil
}

func (f *fakeMembershipRepo) ListAuthorizedByNetwork(_ context.Context, networkID int64) ([]model.Membership, error) {
	var out []model.Membership
	for _, m := range f.byNetwork[networkID] {
		if m.IsAuthorized {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMembershipRepo) ListByDevice(_ context.Context, deviceID int64) ([]model.Membership, error) {
	return append([]model.Membership(nil), f.byDevice[deviceID]...), nil
}

func (f *fakeMembershipRepo) TakenAddresses(_ context.Context, _ int64) ([]netip.Addr, error) {
	return append([]netip.Addr(nil), f.taken...), f.takenErr
}

func (f *fakeMembershipRepo) Authorize(_ context.Context, id int64, at time.Time) (bool, error) {
	f.authInID, f.authInAt = id, at
	return f.authChanged, f.authErr
}

func (f *fakeMembershipRepo) Revoke(_ context.Context, id int64) (bool, error) {
	f.revInID = id
	return f.revChanged, f.revErr
}

func (f *fakeMembershipRepo) ListPeers(_ context.Context, _ int64) ([]model.GatewayPeer, error) {
	return append([]model.GatewayPeer(nil), f.peersOut...), f.peersErr
}

func (f *fakeMembershipRepo) Delete(_ context.Context, _ int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedN++
	return nil
}

type fakeStatsRepo struct {
	insertErrs []error // consumed one per call, nil entry = success
	inserted   []model.PeerStatSample

	latestOut *model.PeerStatSample
	latestErr error

	listOut []model.PeerStatSample
	listErr error

	oldestOut []model.PeerStatSample
	newestOut []model.PeerStatSample
	edgesErr  error

	activeDevices int
	activeUsers   int
	activeInSince time.Time
	activeErr     error
}

var _ repository.StatsRepository = (*fakeStatsRepo)(nil)

func (f *fakeStatsRepo) Insert(_ context.Context, s *model.PeerStatSample) error {
	var err error
	if len(f.insertErrs) > 0 {
		err, f.insertErrs = f.insertErrs[0], f.insertErrs[1:]
	}
	if err != nil {
		return err
	}
	f.inserted = append(f.inserted, *s)
	return nil
}

func (f *fakeStatsRepo) LatestForDevice(_ context.Context, _, _ int64) (*model.PeerStatSample, error) {
	return f.latestOut, f.latestErr
}

func (f *fakeStatsRepo) ListLatestByNetwork(_ context.Context, _ int64) ([]model.PeerStatSample, error) {
	return append([]model.PeerStatSample(nil), f.listOut...), f.listErr
}

func (f *fakeStatsRepo) EdgeSamplesByDevice(_ context.Context, _ int64, _, _ time.Time) ([]model.PeerStatSample, []model.PeerStatSample, error) {
	return f.oldestOut, f.newestOut, f.edgesErr
}

func (f *fakeStatsRepo) EdgeSamplesByNetwork(_ context.Context, _ int64, _, _ time.Time) ([]model.PeerStatSample, []model.PeerStatSample, error) {
	return f.oldestOut, f.newestOut, f.edgesErr
}

func (f *fakeStatsRepo) ActiveCounts(_ context.Context, _ int64, since time.Time) (int, int, error) {
	f.activeInSince = since
	return f.activeDevices, f.activeUsers, f.activeErr
}

type pushedPeer struct {
	networkID int64
	peer      model.GatewayPeer
}

type fakeNotifier struct {
	upserts   []pushedPeer
	removals  []pushedPeer
	fullCfgs  []int64
	teardowns []int64
}

var _ GatewayNotifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) PeerUpserted(networkID int64, p model.GatewayPeer) {
	f.upserts = append(f.upserts, pushedPeer{networkID, p})
}

func (f *fakeNotifier) PeerRemoved(networkID int64, p model.GatewayPeer) {
	f.removals = append(f.removals, pushedPeer{networkID, p})
}

func (f *fakeNotifier) NetworkChanged(n *model.Network, _ []model.GatewayPeer) {
	f.fullCfgs = append(f.fullCfgs, n.ID)
}

func (f *fakeNotifier) NetworkRemoved(networkID int64, _ string) {
	f.teardowns = append(f.teardowns, networkID)
}
