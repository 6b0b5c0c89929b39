package postgres

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/jackc/pgx/v5"
)

// MembershipRepo implements MembershipRepository using PostgreSQL.
// Authorize/Revoke take a row lock first, so concurrent mutations of one
// membership serialize and the last writer wins.
type MembershipRepo struct{ db *DB }

// NewMembershipRepo constructs a membership repository.
func NewMembershipRepo(db *DB) *MembershipRepo { return &MembershipRepo{db: db} }

const membershipCols = `id, device_id, wireguard_network_id, wireguard_ips, preshared_key, is_authorized, authorized_at`

// Enroll inserts a new membership row and fills the generated ID.
func (r *MembershipRepo) Enroll(ctx context.Context, m *model.Membership) error {
	const q = `
INSERT INTO wireguard_network_device (device_id, wireguard_network_id, wireguard_ips, preshared_key)
VALUES ($1,$2,$3,$4)
RETURNING id`
	err := r.db.Pool.QueryRow(ctx, q, m.DeviceID, m.NetworkID, m.Addresses, m.PresharedKey).Scan(&m.ID)
	switch {
	case isUniqueViolation(err):
		return errs.ErrConflict
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	}
	return err
}

// GetByID selects a membership by ID.
func (r *MembershipRepo) GetByID(ctx context.Context, id int64) (*model.Membership, error) {
	const q = `SELECT ` + membershipCols + ` FROM wireguard_network_device WHERE id=$1`
	return scanMembershipRow(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByDeviceNetwork selects the membership of a device in a network.
func (r *MembershipRepo) GetByDeviceNetwork(ctx context.Context, deviceID, networkID int64) (*model.Membership, error) {
	const q = `SELECT ` + membershipCols + `
FROM wireguard_network_device WHERE device_id=$1 AND wireguard_network_id=$2`
	return scanMembershipRow(r.db.Pool.QueryRow(ctx, q, deviceID, networkID))
}

// ListByNetwork selects all memberships of a network ordered by ID.
func (r *MembershipRepo) ListByNetwork(ctx context.Context, networkID int64) ([]model.Membership, error) {
	const q = `SELECT ` + membershipCols + `
FROM wireguard_network_device WHERE wireguard_network_id=$1 ORDER BY id`
	return r.list(ctx, q, networkID)
}

// ListAuthorizedByNetwork selects the authorized memberships of a network.
func (r *MembershipRepo) ListAuthorizedByNetwork(ctx context.Context, networkID int64) ([]model.Membership, error) {
	const q = `SELECT ` + membershipCols + `
FROM wireguard_network_device WHERE wireguard_network_id=$1 AND is_authorized ORDER BY id`
	return r.list(ctx, q, networkID)
}

// ListByDevice selects all memberships of a device ordered by network.
func (r *MembershipRepo) ListByDevice(ctx context.Context, deviceID int64) ([]model.Membership, error) {
	const q = `SELECT ` + membershipCols + `
FROM wireguard_network_device WHERE device_id=$1 ORDER BY wireguard_network_id`
	return r.list(ctx, q, deviceID)
}

// TakenAddresses returns every IP already assigned within a network.
func (r *MembershipRepo) TakenAddresses(ctx context.Context, networkID int64) ([]netip.Addr, error) {
	const q = `SELECT wireguard_ips FROM wireguard_network_device WHERE wireguard_network_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []netip.Addr
	for rows.Next() {
		var ips []netip.Addr
		if err := rows.Scan(&ips); err != nil {
			return nil, err
		}
		out = append(out, ips...)
	}
	return out, rows.Err()
}

// Authorize sets is_authorized under a row lock. Already-authorized rows are
// left untouched and reported as unchanged.
func (r *MembershipRepo) Authorize(ctx context.Context, id int64, at time.Time) (changed bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT is_authorized FROM wireguard_network_device WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE wireguard_network_device SET is_authorized=true, authorized_at=$2 WHERE id=$1`

	var authorized bool
	if err = tx.QueryRow(ctx, sel, id).Scan(&authorized); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, errs.ErrNotFound
		}
		return false, err
	}
	if authorized {
		return false, nil
	}
	if _, err = tx.Exec(ctx, upd, id, at); err != nil {
		return false, err
	}
	return true, nil
}

// Revoke clears authorization under a row lock. Already-revoked rows are
// left untouched and reported as unchanged.
func (r *MembershipRepo) Revoke(ctx context.Context, id int64) (changed bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT is_authorized FROM wireguard_network_device WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE wireguard_network_device SET is_authorized=false, authorized_at=NULL WHERE id=$1`

	var authorized bool
	if err = tx.QueryRow(ctx, sel, id).Scan(&authorized); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, errs.ErrNotFound
		}
		return false, err
	}
	if !authorized {
		return false, nil
	}
	if _, err = tx.Exec(ctx, upd, id); err != nil {
		return false, err
	}
	return true, nil
}

// ListPeers selects gateway peer entries: authorized memberships of
// configured devices, joined with their network's keepalive.
func (r *MembershipRepo) ListPeers(ctx context.Context, networkID int64) ([]model.GatewayPeer, error) {
	const q = `
SELECT d.id, d.wireguard_pubkey, m.wireguard_ips, m.preshared_key, n.keepalive_interval
FROM wireguard_network_device m
JOIN device d ON d.id = m.device_id
JOIN wireguard_network n ON n.id = m.wireguard_network_id
WHERE m.wireguard_network_id=$1 AND m.is_authorized AND d.configured
ORDER BY d.id`
	rows, err := r.db.Pool.Query(ctx, q, networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GatewayPeer
	for rows.Next() {
		var (
			p   model.GatewayPeer
			ips []netip.Addr
		)
		if err := rows.Scan(&p.DeviceID, &p.PublicKey, &ips, &p.PresharedKey, &p.KeepaliveInterval); err != nil {
			return nil, err
		}
		for _, a := range ips {
			p.AllowedIPs = append(p.AllowedIPs, netip.PrefixFrom(a, a.BitLen()).String())
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a membership row.
func (r *MembershipRepo) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM wireguard_network_device WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *MembershipRepo) list(ctx context.Context, q string, arg any) ([]model.Membership, error) {
	rows, err := r.db.Pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMembership(row pgx.Row) (*model.Membership, error) {
	var m model.Membership
	if err := row.Scan(
		&m.ID, &m.DeviceID, &m.NetworkID, &m.Addresses,
		&m.PresharedKey, &m.IsAuthorized, &m.AuthorizedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMembershipRow(row pgx.Row) (*model.Membership, error) {
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}
