package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/jackc/pgx/v5"
)

// NetworkRepo implements NetworkRepository using PostgreSQL.
type NetworkRepo struct{ db *DB }

// NewNetworkRepo constructs a network repository.
func NewNetworkRepo(db *DB) *NetworkRepo { return &NetworkRepo{db: db} }

// Create inserts a new network row and fills the generated ID.
func (r *NetworkRepo) Create(ctx context.Context, n *model.Network) error {
	const q = `
INSERT INTO wireguard_network
  (name, address, port, pubkey, prvkey, endpoint, dns, allowed_ips,
   keepalive_interval, authorization_timeout, handshake_timeout, mfa_enabled)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		n.Name, n.Address, n.Port, n.PublicKey, n.PrivateKey, n.Endpoint, n.DNS,
		n.AllowedIPs, n.KeepaliveInterval,
		int64(n.AuthorizationTimeout/time.Second), int64(n.HandshakeTimeout/time.Second),
		n.MFAEnabled,
	).Scan(&n.ID, &n.CreatedAt)
	return err
}

// GetByID selects a network by ID.
func (r *NetworkRepo) GetByID(ctx context.Context, id int64) (*model.Network, error) {
	const q = `
SELECT id, name, address, port, pubkey, prvkey, endpoint, dns, allowed_ips,
       keepalive_interval, authorization_timeout, handshake_timeout, mfa_enabled, created_at
FROM wireguard_network WHERE id=$1`
	n, err := scanNetwork(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// List selects all networks ordered by ID.
func (r *NetworkRepo) List(ctx context.Context) ([]model.Network, error) {
	const q = `
SELECT id, name, address, port, pubkey, prvkey, endpoint, dns, allowed_ips,
       keepalive_interval, authorization_timeout, handshake_timeout, mfa_enabled, created_at
FROM wireguard_network ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Update rewrites mutable network fields.
func (r *NetworkRepo) Update(ctx context.Context, n *model.Network) error {
	const q = `
UPDATE wireguard_network
SET name=$2, address=$3, port=$4, endpoint=$5, dns=$6, allowed_ips=$7,
    keepalive_interval=$8, authorization_timeout=$9, handshake_timeout=$10, mfa_enabled=$11
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		n.ID, n.Name, n.Address, n.Port, n.Endpoint, n.DNS, n.AllowedIPs,
		n.KeepaliveInterval,
		int64(n.AuthorizationTimeout/time.Second), int64(n.HandshakeTimeout/time.Second),
		n.MFAEnabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a network together with its network-kind devices.
// Memberships and stats follow via cascade.
func (r *NetworkRepo) Delete(ctx context.Context, id int64) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
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

	const delDevices = `
DELETE FROM device WHERE kind='network' AND id IN (
  SELECT device_id FROM wireguard_network_device WHERE wireguard_network_id=$1)`
	const delNetwork = `DELETE FROM wireguard_network WHERE id=$1`

	if _, err = tx.Exec(ctx, delDevices, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, delNetwork, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanNetwork(row pgx.Row) (*model.Network, error) {
	var (
		n                model.Network
		authSecs, hsSecs int64
	)
	if err := row.Scan(
		&n.ID, &n.Name, &n.Address, &n.Port, &n.PublicKey, &n.PrivateKey,
		&n.Endpoint, &n.DNS, &n.AllowedIPs, &n.KeepaliveInterval,
		&authSecs, &hsSecs, &n.MFAEnabled, &n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.AuthorizationTimeout = time.Duration(authSecs) * time.Second
	n.HandshakeTimeout = time.Duration(hsSecs) * time.Second
	return &n, nil
}
