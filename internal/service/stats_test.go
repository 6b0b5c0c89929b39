package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

func newStatsService(st *fakeStatsRepo, ds *fakeDeviceRepo) *StatsServiceImpl {
	return NewStatsService(st, ds, zap.NewNop())
}

func TestStatsService_Ingest_StoresSample(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &fakeStatsRepo{}
	s := newStatsService(st, &fakeDeviceRepo{})

	now := time.Now().UTC().Truncate(time.Second)
	err := s.Ingest(ctx, model.PeerStatSample{
		DeviceID: 5, NetworkID: 1, CollectedAt: now, Upload: 100, Download: 200,
	}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(st.inserted) != 1 || st.inserted[0].DeviceID != 5 {
		t.Fatalf("sample not stored: %+v", st.inserted)
	}
	if !st.inserted[0].CollectedAt.Equal(now) {
		t.Fatalf("collected_at must be preserved")
	}
}

func TestStatsService_Ingest_KeepsOutOfOrderAndDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &fakeStatsRepo{}
	s := newStatsService(st, &fakeDeviceRepo{})

	now := time.Now().UTC().Truncate(time.Second)
	for _, at := range []time.Time{now, now.Add(-time.Minute), now.Add(-time.Minute)} {
		err := s.Ingest(ctx, model.PeerStatSample{DeviceID: 5, NetworkID: 1, CollectedAt: at}, "")
		if err != nil {
			t.Fatalf("Ingest at %v: %v", at, err)
		}
	}
	if len(st.inserted) != 3 {
		t.Fatalf("all samples must be kept, got %d", len(st.inserted))
	}
	// Arrival order and timestamps are preserved as-is.
	if !st.inserted[0].CollectedAt.Equal(now) || !st.inserted[1].CollectedAt.Equal(now.Add(-time.Minute)) {
		t.Fatalf("out-of-order samples must not be reordered: %+v", st.inserted)
	}
	if !st.inserted[2].CollectedAt.Equal(st.inserted[1].CollectedAt) {
		t.Fatalf("duplicate timestamps must be kept: %+v", st.inserted)
	}
}

func TestStatsService_Ingest_ResolvesDeviceByPublicKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &fakeStatsRepo{}
	ds := &fakeDeviceRepo{byKey: map[string]*model.Device{testKey(1): {ID: 42, PublicKey: testKey(1)}}}
	s := newStatsService(st, ds)

	if err := s.Ingest(ctx, model.PeerStatSample{NetworkID: 1}, testKey(1)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(st.inserted) != 1 || st.inserted[0].DeviceID != 42 {
		t.Fatalf("device must be resolved by public key: %+v", st.inserted)
	}
}

func TestStatsService_Ingest_DropsUnknownWithoutError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := &fakeStatsRepo{}
	s := newStatsService(st, &fakeDeviceRepo{})

	// Unknown public key: dropped, session stays alive.
	if err := s.Ingest(ctx, model.PeerStatSample{NetworkID: 1}, testKey(9)); err != nil {
		t.Fatalf("unknown key must not error: %v", err)
	}
	// No identity at all.
	if err := s.Ingest(ctx, model.PeerStatSample{NetworkID: 1}, ""); err != nil {
		t.Fatalf("no identity must not error: %v", err)
	}
	if len(st.inserted) != 0 {
		t.Fatalf("dropped samples must not be stored")
	}
}

func TestStatsService_Ingest_DefaultsCollectedAt(t *testing.T) {
	t.Parallel()

	st := &fakeStatsRepo{}
	s := newStatsService(st, &fakeDeviceRepo{})

	before := time.Now().UTC()
	if err := s.Ingest(context.Background(), model.PeerStatSample{DeviceID: 5, NetworkID: 1}, ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	got := st.inserted[0].CollectedAt
	if got.Before(before) || got.After(time.Now().UTC()) {
		t.Fatalf("collected_at must default to receive time, got %v", got)
	}
}

func TestStatsService_Ingest_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	st := &fakeStatsRepo{insertErrs: []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
		nil,
	}}
	s := newStatsService(st, &fakeDeviceRepo{})

	if err := s.Ingest(context.Background(), model.PeerStatSample{DeviceID: 5, NetworkID: 1}, ""); err != nil {
		t.Fatalf("Ingest must succeed after retries: %v", err)
	}
	if len(st.inserted) != 1 {
		t.Fatalf("sample must land after transient failures")
	}
}

func TestStatsService_Ingest_VanishedDeviceDropped(t *testing.T) {
	t.Parallel()

	st := &fakeStatsRepo{insertErrs: []error{errs.ErrNotFound}}
	s := newStatsService(st, &fakeDeviceRepo{})

	if err := s.Ingest(context.Background(), model.PeerStatSample{DeviceID: 5, NetworkID: 1}, ""); err != nil {
		t.Fatalf("vanished device must not error the session: %v", err)
	}
	if len(st.insertErrs) != 0 {
		t.Fatalf("ErrNotFound must not be retried")
	}
	if len(st.inserted) != 0 {
		t.Fatalf("dropped sample must not be stored")
	}
}

func TestStatsService_SummarizeDevice_ClampsCounterResets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	from := time.Now().Add(-time.Hour)
	to := time.Now()
	st := &fakeStatsRepo{
		oldestOut: []model.PeerStatSample{
			{NetworkID: 1, Upload: 1000, Download: 5000},
			{NetworkID: 2, Upload: 1000, Download: 100},
		},
		newestOut: []model.PeerStatSample{
			{NetworkID: 1, Upload: 1500, Download: 9000},
			{NetworkID: 2, Upload: 500, Download: 120}, // upload counter reset
		},
	}
	s := newStatsService(st, &fakeDeviceRepo{})

	sum, err := s.SummarizeDevice(ctx, 5, from, to)
	if err != nil {
		t.Fatalf("SummarizeDevice: %v", err)
	}
	// net 1: +500/+4000; net 2: reset upload clamps to 0, +20 download.
	if sum.Upload != 500 {
		t.Fatalf("upload: want 500 got %d", sum.Upload)
	}
	if sum.Download != 4020 {
		t.Fatalf("download: want 4020 got %d", sum.Download)
	}
}

func TestStatsService_SummarizeDevice_EmptyWindowRejected(t *testing.T) {
	t.Parallel()

	s := newStatsService(&fakeStatsRepo{}, &fakeDeviceRepo{})
	now := time.Now()
	if _, err := s.SummarizeDevice(context.Background(), 5, now, now); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestStatsService_SummarizeUser_CountsMovingDevices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	from := time.Now().Add(-time.Hour)
	to := time.Now()
	st := &fakeStatsRepo{
		oldestOut: []model.PeerStatSample{{NetworkID: 1, Upload: 100, Download: 100}},
		newestOut: []model.PeerStatSample{{NetworkID: 1, Upload: 300, Download: 150}},
	}
	ds := &fakeDeviceRepo{listOut: []model.Device{{ID: 5}, {ID: 6}}}
	s := newStatsService(st, ds)

	sum, err := s.SummarizeUser(ctx, 7, from, to)
	if err != nil {
		t.Fatalf("SummarizeUser: %v", err)
	}
	// The fake returns the same edges for both devices: each moved bytes.
	if sum.Devices != 2 {
		t.Fatalf("devices: want 2 got %d", sum.Devices)
	}
	if sum.Upload != 400 || sum.Download != 100 {
		t.Fatalf("totals mismatch: %+v", sum)
	}
}

func TestStatsService_SummarizeNetworkUsers_GroupsByOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	from := time.Now().Add(-time.Hour)
	to := time.Now()
	st := &fakeStatsRepo{
		oldestOut: []model.PeerStatSample{
			{DeviceID: 5, NetworkID: 1, Upload: 100, Download: 100},
			{DeviceID: 6, NetworkID: 1, Upload: 50, Download: 50},
			{DeviceID: 7, NetworkID: 1, Upload: 10, Download: 10},
			{DeviceID: 8, NetworkID: 1, Upload: 0, Download: 0},
		},
		newestOut: []model.PeerStatSample{
			{DeviceID: 5, NetworkID: 1, Upload: 300, Download: 150},
			{DeviceID: 6, NetworkID: 1, Upload: 50, Download: 50}, // idle device
			{DeviceID: 7, NetworkID: 1, Upload: 15, Download: 12},
			{DeviceID: 8, NetworkID: 1, Upload: 99, Download: 99}, // infrastructure
		},
	}
	ds := &fakeDeviceRepo{byID: map[int64]*model.Device{
		5: {ID: 5, UserID: ptrInt64(3)},
		6: {ID: 6, UserID: ptrInt64(3)},
		7: {ID: 7, UserID: ptrInt64(4)},
		8: {ID: 8, Kind: model.DeviceKindNetwork},
	}}
	s := newStatsService(st, ds)

	sums, err := s.SummarizeNetworkUsers(ctx, 1, from, to)
	if err != nil {
		t.Fatalf("SummarizeNetworkUsers: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("want 2 users, got %d: %+v", len(sums), sums)
	}
	// Ordered by user id; the idle device counts toward totals but not Devices.
	if sums[0].UserID != 3 || sums[0].Devices != 1 || sums[0].Upload != 200 || sums[0].Download != 50 {
		t.Fatalf("user 3 summary mismatch: %+v", sums[0])
	}
	if sums[1].UserID != 4 || sums[1].Devices != 1 || sums[1].Upload != 5 || sums[1].Download != 2 {
		t.Fatalf("user 4 summary mismatch: %+v", sums[1])
	}
}

func TestStatsService_SummarizeNetworkUsers_SkipsVanishedDevices(t *testing.T) {
	t.Parallel()

	from := time.Now().Add(-time.Hour)
	to := time.Now()
	st := &fakeStatsRepo{
		oldestOut: []model.PeerStatSample{{DeviceID: 42, NetworkID: 1, Upload: 1, Download: 1}},
		newestOut: []model.PeerStatSample{{DeviceID: 42, NetworkID: 1, Upload: 9, Download: 9}},
	}
	s := newStatsService(st, &fakeDeviceRepo{})

	sums, err := s.SummarizeNetworkUsers(context.Background(), 1, from, to)
	if err != nil {
		t.Fatalf("SummarizeNetworkUsers: %v", err)
	}
	if len(sums) != 0 {
		t.Fatalf("vanished device must contribute nothing, got %+v", sums)
	}
}

func TestStatsService_NetworkActivity_DefaultWindow(t *testing.T) {
	t.Parallel()

	st := &fakeStatsRepo{activeDevices: 3, activeUsers: 2}
	s := newStatsService(st, &fakeDeviceRepo{})

	act, err := s.NetworkActivity(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("NetworkActivity: %v", err)
	}
	if act.ActiveDevices != 3 || act.ActiveUsers != 2 {
		t.Fatalf("counts mismatch: %+v", act)
	}
	since := time.Since(st.activeInSince)
	if since < 59*time.Minute || since > 61*time.Minute {
		t.Fatalf("default window must be about an hour, since=%v", since)
	}
}
