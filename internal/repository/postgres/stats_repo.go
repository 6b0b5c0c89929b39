package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/jackc/pgx/v5"
)

// StatsRepo implements StatsRepository using PostgreSQL. Samples are
// append-only: inserts take no locks beyond the row being written.
type StatsRepo struct{ db *DB }

// NewStatsRepo constructs a stats repository.
func NewStatsRepo(db *DB) *StatsRepo { return &StatsRepo{db: db} }

const statCols = `id, device_id, network_id, collected_at, upload, download, latest_handshake, endpoint`

// Insert appends one sample.
func (r *StatsRepo) Insert(ctx context.Context, s *model.PeerStatSample) error {
	const q = `
INSERT INTO wireguard_peer_stats (device_id, network_id, collected_at, upload, download, latest_handshake, endpoint)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id`
	err := r.db.Pool.QueryRow(ctx, q,
		s.DeviceID, s.NetworkID, s.CollectedAt, s.Upload, s.Download, s.LatestHandshake, s.Endpoint,
	).Scan(&s.ID)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}

// LatestForDevice selects the most recent sample of a device in a network.
func (r *StatsRepo) LatestForDevice(ctx context.Context, deviceID, networkID int64) (*model.PeerStatSample, error) {
	const q = `
SELECT ` + statCols + `
FROM wireguard_peer_stats
WHERE device_id=$1 AND network_id=$2
ORDER BY collected_at DESC
LIMIT 1`
	s, err := scanStat(r.db.Pool.QueryRow(ctx, q, deviceID, networkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListLatestByNetwork selects the most recent sample per device of a network.
func (r *StatsRepo) ListLatestByNetwork(ctx context.Context, networkID int64) ([]model.PeerStatSample, error) {
	const q = `
SELECT DISTINCT ON (device_id) ` + statCols + `
FROM wireguard_peer_stats
WHERE network_id=$1
ORDER BY device_id, collected_at DESC`
	return r.list(ctx, q, networkID)
}

// EdgeSamplesByDevice selects, per network, the earliest and latest sample of
// a device inside the window.
func (r *StatsRepo) EdgeSamplesByDevice(ctx context.Context, deviceID int64, from, to time.Time) (oldest, newest []model.PeerStatSample, err error) {
	const first = `
SELECT DISTINCT ON (network_id) ` + statCols + `
FROM wireguard_peer_stats
WHERE device_id=$1 AND collected_at >= $2 AND collected_at <= $3
ORDER BY network_id, collected_at ASC`
	const last = `
SELECT DISTINCT ON (network_id) ` + statCols + `
FROM wireguard_peer_stats
WHERE device_id=$1 AND collected_at >= $2 AND collected_at <= $3
ORDER BY network_id, collected_at DESC`

	if oldest, err = r.list(ctx, first, deviceID, from, to); err != nil {
		return nil, nil, err
	}
	if newest, err = r.list(ctx, last, deviceID, from, to); err != nil {
		return nil, nil, err
	}
	return oldest, newest, nil
}

// EdgeSamplesByNetwork selects, per device, the earliest and latest sample
// inside the window across one network.
func (r *StatsRepo) EdgeSamplesByNetwork(ctx context.Context, networkID int64, from, to time.Time) (oldest, newest []model.PeerStatSample, err error) {
	const first = `
SELECT DISTINCT ON (device_id) ` + statCols + `
FROM wireguard_peer_stats
WHERE network_id=$1 AND collected_at >= $2 AND collected_at <= $3
ORDER BY device_id, collected_at ASC`
	const last = `
SELECT DISTINCT ON (device_id) ` + statCols + `
FROM wireguard_peer_stats
WHERE network_id=$1 AND collected_at >= $2 AND collected_at <= $3
ORDER BY device_id, collected_at DESC`

	if oldest, err = r.list(ctx, first, networkID, from, to); err != nil {
		return nil, nil, err
	}
	if newest, err = r.list(ctx, last, networkID, from, to); err != nil {
		return nil, nil, err
	}
	return oldest, newest, nil
}

// ActiveCounts reports devices and distinct users whose latest handshake in
// the network happened at or after the given instant.
func (r *StatsRepo) ActiveCounts(ctx context.Context, networkID int64, since time.Time) (devices, users int, err error) {
	const q = `
SELECT COUNT(*), COUNT(DISTINCT d.user_id)
FROM (
    SELECT DISTINCT ON (device_id) device_id, latest_handshake
    FROM wireguard_peer_stats
    WHERE network_id=$1
    ORDER BY device_id, collected_at DESC
) s
JOIN device d ON d.id = s.device_id
WHERE s.latest_handshake >= $2`
	if err := r.db.Pool.QueryRow(ctx, q, networkID, since).Scan(&devices, &users); err != nil {
		return 0, 0, err
	}
	return devices, users, nil
}

func (r *StatsRepo) list(ctx context.Context, q string, args ...any) ([]model.PeerStatSample, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PeerStatSample
	for rows.Next() {
		s, err := scanStat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanStat(row pgx.Row) (*model.PeerStatSample, error) {
	var s model.PeerStatSample
	if err := row.Scan(
		&s.ID, &s.DeviceID, &s.NetworkID, &s.CollectedAt,
		&s.Upload, &s.Download, &s.LatestHandshake, &s.Endpoint,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
