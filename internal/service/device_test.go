package service

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

func newDeviceService(ds *fakeDeviceRepo, ms *fakeMembershipRepo, ns *fakeNetworkRepo, nt *fakeNotifier) *DeviceServiceImpl {
	return NewDeviceService(ds, ms, ns, nt, zap.NewNop())
}

func TestDeviceService_Create_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := &fakeDeviceRepo{}
	s := newDeviceService(repo, &fakeMembershipRepo{}, &fakeNetworkRepo{}, &fakeNotifier{})

	if err := s.Create(ctx, nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("nil device: want ErrValidation, got %v", err)
	}
	if err := s.Create(ctx, &model.Device{PublicKey: testKey(1), UserID: ptrInt64(1)}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("empty name: want ErrValidation, got %v", err)
	}
	if err := s.Create(ctx, &model.Device{Name: "x", PublicKey: "not-a-key", UserID: ptrInt64(1)}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("bad key: want ErrValidation, got %v", err)
	}
	if err := s.Create(ctx, &model.Device{Name: "x", PublicKey: testKey(1)}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("user device without owner: want ErrValidation, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("repo must not be called on invalid input")
	}
}

func TestDeviceService_Create_DefaultsKindToUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := &fakeDeviceRepo{}
	s := newDeviceService(repo, &fakeMembershipRepo{}, &fakeNetworkRepo{}, &fakeNotifier{})

	d := &model.Device{Name: "laptop", PublicKey: testKey(1), UserID: ptrInt64(7)}
	if err := s.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Kind != model.DeviceKindUser {
		t.Fatalf("kind must default to user, got %q", d.Kind)
	}
	if len(repo.created) != 1 {
		t.Fatalf("repo create not called")
	}
}

func TestDeviceService_Create_NetworkKindNeedsNoOwner(t *testing.T) {
	t.Parallel()

	repo := &fakeDeviceRepo{}
	s := newDeviceService(repo, &fakeMembershipRepo{}, &fakeNetworkRepo{}, &fakeNotifier{})

	d := &model.Device{Name: "gw", PublicKey: testKey(2), Kind: model.DeviceKindNetwork}
	if err := s.Create(context.Background(), d); err != nil {
		t.Fatalf("network-kind device without owner must be valid, got %v", err)
	}
}

func TestDeviceService_Update_RefreshesAuthorizedPeers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	at := time.Now()
	repo := &fakeDeviceRepo{byID: map[int64]*model.Device{5: {ID: 5}}}
	ms := &fakeMembershipRepo{byDevice: map[int64][]model.Membership{
		5: {
			{ID: 10, NetworkID: 1, DeviceID: 5, IsAuthorized: true, AuthorizedAt: &at,
				Addresses: []netip.Addr{netip.MustParseAddr("10.6.0.2")}},
			{ID: 11, NetworkID: 2, DeviceID: 5}, // not authorized
		},
	}}
	nets := &fakeNetworkRepo{byID: map[int64]*model.Network{1: testNetwork(1), 2: testNetwork(2)}}
	nt := &fakeNotifier{}

	s := newDeviceService(repo, ms, nets, nt)
	d := &model.Device{ID: 5, Name: "laptop", PublicKey: testKey(3), UserID: ptrInt64(7), Kind: model.DeviceKindUser, Configured: true}
	if err := s.Update(ctx, d); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if repo.updatedN != 1 {
		t.Fatalf("repo update not called")
	}
	if len(nt.upserts) != 1 || nt.upserts[0].networkID != 1 {
		t.Fatalf("only the authorized membership is refreshed: %+v", nt.upserts)
	}
	if nt.upserts[0].peer.PublicKey != testKey(3) {
		t.Fatalf("refreshed peer must carry the new key")
	}
}

func TestDeviceService_Update_UnconfiguredNotPushed(t *testing.T) {
	t.Parallel()

	repo := &fakeDeviceRepo{}
	nt := &fakeNotifier{}
	s := newDeviceService(repo, &fakeMembershipRepo{}, &fakeNetworkRepo{}, nt)

	d := &model.Device{ID: 5, Name: "laptop", PublicKey: testKey(1), UserID: ptrInt64(7), Kind: model.DeviceKindUser}
	if err := s.Update(context.Background(), d); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(nt.upserts) != 0 {
		t.Fatalf("unconfigured device must not be pushed")
	}
}

func TestDeviceService_Delete_WithdrawsAuthorizedPeers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	at := time.Now()
	repo := &fakeDeviceRepo{byID: map[int64]*model.Device{5: {ID: 5, PublicKey: testKey(1)}}}
	ms := &fakeMembershipRepo{byDevice: map[int64][]model.Membership{
		5: {
			{ID: 10, NetworkID: 1, DeviceID: 5, IsAuthorized: true, AuthorizedAt: &at},
			{ID: 11, NetworkID: 2, DeviceID: 5},
		},
	}}
	nt := &fakeNotifier{}

	s := newDeviceService(repo, ms, &fakeNetworkRepo{}, nt)
	if err := s.Delete(ctx, 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if repo.deletedN != 1 {
		t.Fatalf("repo delete not called")
	}
	if len(nt.removals) != 1 || nt.removals[0].networkID != 1 {
		t.Fatalf("only authorized memberships are withdrawn: %+v", nt.removals)
	}
}

func TestDeviceService_Delete_NotFound(t *testing.T) {
	t.Parallel()

	s := newDeviceService(&fakeDeviceRepo{}, &fakeMembershipRepo{}, &fakeNetworkRepo{}, &fakeNotifier{})
	if err := s.Delete(context.Background(), 404); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeviceService_GetByPublicKey_ValidatesKey(t *testing.T) {
	t.Parallel()

	s := newDeviceService(&fakeDeviceRepo{}, &fakeMembershipRepo{}, &fakeNetworkRepo{}, &fakeNotifier{})
	if _, err := s.GetByPublicKey(context.Background(), "###"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}
