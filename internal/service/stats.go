package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/repository"
)

// DefaultActivityWindow bounds what counts as a recent handshake when no
// explicit window is given.
const DefaultActivityWindow = time.Hour

// StatsService defines telemetry ingestion and read-side aggregation.
type StatsService interface {
	// Ingest stores one raw sample, resolving the device by public key when
	// the id is unset. Unresolvable samples are dropped, never rejected.
	Ingest(ctx context.Context, sample model.PeerStatSample, publicKey string) error
	// LatestForDevice returns the freshest sample of a device in a network.
	LatestForDevice(ctx context.Context, deviceID, networkID int64) (*model.PeerStatSample, error)
	// LatestByNetwork returns the freshest sample per device of a network.
	LatestByNetwork(ctx context.Context, networkID int64) ([]model.PeerStatSample, error)
	// SummarizeDevice reports transfer usage of one device over a window.
	SummarizeDevice(ctx context.Context, deviceID int64, from, to time.Time) (model.DeviceSummary, error)
	// SummarizeUser sums usage across all devices of a user.
	SummarizeUser(ctx context.Context, userID int64, from, to time.Time) (model.UserSummary, error)
	// SummarizeNetworkUsers reports usage per owning user across the devices
	// of one network, ordered by user id.
	SummarizeNetworkUsers(ctx context.Context, networkID int64, from, to time.Time) ([]model.UserSummary, error)
	// NetworkActivity counts devices and users with a handshake inside the
	// window. Zero window means DefaultActivityWindow.
	NetworkActivity(ctx context.Context, networkID int64, window time.Duration) (model.NetworkActivity, error)
}

type StatsServiceImpl struct {
	stats   repository.StatsRepository
	devices repository.DeviceRepository
	log     *zap.Logger
}

// NewStatsService constructs StatsService with required dependencies.
func NewStatsService(stats repository.StatsRepository, devices repository.DeviceRepository, log *zap.Logger) *StatsServiceImpl {
	return &StatsServiceImpl{stats: stats, devices: devices, log: log}
}

// Ingest appends one sample. Malformed or unresolvable samples are logged
// and dropped so a bad reading never tears down a gateway session. Inserts
// are retried briefly on transient store errors.
func (s *StatsServiceImpl) Ingest(ctx context.Context, sample model.PeerStatSample, publicKey string) error {
	if sample.CollectedAt.IsZero() {
		sample.CollectedAt = time.Now().UTC()
	}
	if sample.DeviceID == 0 && publicKey != "" {
		d, err := s.devices.GetByPublicKey(ctx, publicKey)
		if err != nil {
			s.log.Warn("stats sample dropped: unknown public key",
				zap.String("public_key", publicKey), zap.Error(err))
			return nil
		}
		sample.DeviceID = d.ID
	}
	if sample.DeviceID == 0 || sample.NetworkID == 0 {
		s.log.Warn("stats sample dropped: no device identity",
			zap.Int64("network_id", sample.NetworkID))
		return nil
	}

	b := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.stats.Insert(ctx, &sample)
		if err == nil || errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
	if errors.Is(err, errs.ErrNotFound) {
		// Device or network row vanished between resolve and insert.
		s.log.Warn("stats sample dropped: device or network gone",
			zap.Int64("device_id", sample.DeviceID),
			zap.Int64("network_id", sample.NetworkID))
		return nil
	}
	return err
}

// LatestForDevice returns the freshest sample of a device in a network.
func (s *StatsServiceImpl) LatestForDevice(ctx context.Context, deviceID, networkID int64) (*model.PeerStatSample, error) {
	return s.stats.LatestForDevice(ctx, deviceID, networkID)
}

// LatestByNetwork returns the freshest sample per device of a network.
func (s *StatsServiceImpl) LatestByNetwork(ctx context.Context, networkID int64) ([]model.PeerStatSample, error) {
	return s.stats.ListLatestByNetwork(ctx, networkID)
}

// SummarizeDevice computes per-network counter deltas over the window and
// sums them. A counter that shrank (reset) contributes zero.
func (s *StatsServiceImpl) SummarizeDevice(ctx context.Context, deviceID int64, from, to time.Time) (model.DeviceSummary, error) {
	if !to.After(from) {
		return model.DeviceSummary{}, fmt.Errorf("%w: empty window", errs.ErrValidation)
	}
	oldest, newest, err := s.stats.EdgeSamplesByDevice(ctx, deviceID, from, to)
	if err != nil {
		return model.DeviceSummary{}, err
	}

	first := make(map[int64]model.PeerStatSample, len(oldest))
	for _, o := range oldest {
		first[o.NetworkID] = o
	}
	sum := model.DeviceSummary{DeviceID: deviceID, From: from, To: to}
	for _, nw := range newest {
		o, ok := first[nw.NetworkID]
		if !ok {
			continue
		}
		sum.Upload += clampDelta(o.Upload, nw.Upload)
		sum.Download += clampDelta(o.Download, nw.Download)
	}
	return sum, nil
}

// SummarizeUser sums device summaries; Devices counts those that moved bytes.
func (s *StatsServiceImpl) SummarizeUser(ctx context.Context, userID int64, from, to time.Time) (model.UserSummary, error) {
	if !to.After(from) {
		return model.UserSummary{}, fmt.Errorf("%w: empty window", errs.ErrValidation)
	}
	devs, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return model.UserSummary{}, err
	}

	sum := model.UserSummary{UserID: userID, From: from, To: to}
	for _, d := range devs {
		ds, err := s.SummarizeDevice(ctx, d.ID, from, to)
		if err != nil {
			return model.UserSummary{}, err
		}
		if ds.Upload > 0 || ds.Download > 0 {
			sum.Devices++
		}
		sum.Upload += ds.Upload
		sum.Download += ds.Download
	}
	return sum, nil
}

// SummarizeNetworkUsers groups the network's per-device deltas by owning
// user. Ownerless infrastructure devices are skipped; a device removed after
// its samples were written contributes nothing.
func (s *StatsServiceImpl) SummarizeNetworkUsers(ctx context.Context, networkID int64, from, to time.Time) ([]model.UserSummary, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty window", errs.ErrValidation)
	}
	oldest, newest, err := s.stats.EdgeSamplesByNetwork(ctx, networkID, from, to)
	if err != nil {
		return nil, err
	}

	first := make(map[int64]model.PeerStatSample, len(oldest))
	for _, o := range oldest {
		first[o.DeviceID] = o
	}
	byUser := make(map[int64]*model.UserSummary)
	for _, nw := range newest {
		o, ok := first[nw.DeviceID]
		if !ok {
			continue
		}
		d, err := s.devices.GetByID(ctx, nw.DeviceID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if d.UserID == nil {
			continue
		}
		u, ok := byUser[*d.UserID]
		if !ok {
			u = &model.UserSummary{UserID: *d.UserID, From: from, To: to}
			byUser[*d.UserID] = u
		}
		up, down := clampDelta(o.Upload, nw.Upload), clampDelta(o.Download, nw.Download)
		if up > 0 || down > 0 {
			u.Devices++
		}
		u.Upload += up
		u.Download += down
	}

	out := make([]model.UserSummary, 0, len(byUser))
	for _, u := range byUser {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// NetworkActivity counts devices and distinct users whose latest handshake
// falls inside the window.
func (s *StatsServiceImpl) NetworkActivity(ctx context.Context, networkID int64, window time.Duration) (model.NetworkActivity, error) {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	devices, users, err := s.stats.ActiveCounts(ctx, networkID, time.Now().UTC().Add(-window))
	if err != nil {
		return model.NetworkActivity{}, err
	}
	return model.NetworkActivity{NetworkID: networkID, ActiveDevices: devices, ActiveUsers: users}, nil
}

// clampDelta computes newest-oldest on a cumulative counter, treating a
// shrinking counter as zero usage.
func clampDelta(oldest, newest int64) int64 {
	if newest <= oldest {
		return 0
	}
	return newest - oldest
}
