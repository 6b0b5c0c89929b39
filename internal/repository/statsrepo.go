package repository

import (
	"context"
	"time"

	"github.com/dwongdev/defguard/internal/model"
)

// StatsRepository stores raw peer telemetry. Inserts are append-only and
// never depend on existing sample order.
type StatsRepository interface {
	// Insert appends one sample.
	Insert(ctx context.Context, s *model.PeerStatSample) error
	// LatestForDevice returns the most recent sample of a device in a network,
	// or ErrNotFound when none was ever observed.
	LatestForDevice(ctx context.Context, deviceID, networkID int64) (*model.PeerStatSample, error)
	// ListLatestByNetwork returns the most recent sample per device in a network.
	ListLatestByNetwork(ctx context.Context, networkID int64) ([]model.PeerStatSample, error)
	// EdgeSamplesByDevice returns, per network the device belongs to, the
	// earliest and latest sample inside [from, to].
	EdgeSamplesByDevice(ctx context.Context, deviceID int64, from, to time.Time) (oldest, newest []model.PeerStatSample, err error)
	// EdgeSamplesByNetwork returns, per device of the network, the earliest
	// and latest sample inside [from, to].
	EdgeSamplesByNetwork(ctx context.Context, networkID int64, from, to time.Time) (oldest, newest []model.PeerStatSample, err error)
	// ActiveCounts reports devices and distinct users of a network whose
	// latest handshake is at or after the given instant.
	ActiveCounts(ctx context.Context, networkID int64, since time.Time) (devices, users int, err error)
}
