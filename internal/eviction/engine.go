// Package eviction revokes authorizations that have both outlived their
// grant and gone idle on the wire.
package eviction

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = time.Minute

// NetworkLister enumerates the networks to sweep.
type NetworkLister interface {
	List(ctx context.Context) ([]model.Network, error)
}

// MembershipSource lists the authorized memberships of one network.
type MembershipSource interface {
	ListAuthorizedByNetwork(ctx context.Context, networkID int64) ([]model.Membership, error)
}

// SampleSource reports the freshest telemetry of a device in a network, or
// ErrNotFound when the device was never observed.
type SampleSource interface {
	LatestForDevice(ctx context.Context, deviceID, networkID int64) (*model.PeerStatSample, error)
}

// Revoker withdraws one authorization. Revoking an already revoked
// membership must succeed, so sweeps tolerate racing manual revocations.
type Revoker interface {
	Revoke(ctx context.Context, id int64) error
}

// Engine periodically scans all networks and revokes stale authorizations.
type Engine struct {
	networks    NetworkLister
	memberships MembershipSource
	samples     SampleSource
	revoker     Revoker
	interval    time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// New constructs the engine. interval <= 0 selects DefaultInterval.
func New(networks NetworkLister, memberships MembershipSource, samples SampleSource, revoker Revoker, interval time.Duration, log *zap.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		networks:    networks,
		memberships: memberships,
		samples:     samples,
		revoker:     revoker,
		interval:    interval,
		now:         time.Now,
		log:         log,
	}
}

// Run sweeps on a ticker until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every network. Failures are contained per
// membership so one broken row never stalls the rest.
func (e *Engine) Sweep(ctx context.Context) {
	nets, err := e.networks.List(ctx)
	if err != nil {
		e.log.Error("eviction sweep aborted", zap.Error(err))
		return
	}
	for i := range nets {
		e.sweepNetwork(ctx, &nets[i])
	}
}

func (e *Engine) sweepNetwork(ctx context.Context, n *model.Network) {
	ms, err := e.memberships.ListAuthorizedByNetwork(ctx, n.ID)
	if err != nil {
		e.log.Error("eviction listing failed", zap.Int64("network_id", n.ID), zap.Error(err))
		return
	}
	now := e.now().UTC()
	for i := range ms {
		m := &ms[i]
		evict, err := e.shouldEvict(ctx, n, m, now)
		if err != nil {
			e.log.Warn("eviction check failed", zap.Int64("membership_id", m.ID), zap.Error(err))
			continue
		}
		if !evict {
			continue
		}
		if err := e.revoker.Revoke(ctx, m.ID); err != nil {
			e.log.Warn("eviction revoke failed", zap.Int64("membership_id", m.ID), zap.Error(err))
			continue
		}
		e.log.Info("authorization evicted",
			zap.Int64("membership_id", m.ID),
			zap.Int64("network_id", n.ID),
			zap.Int64("device_id", m.DeviceID))
	}
}

// shouldEvict applies the two-clock rule: the grant must have aged past the
// authorization timeout AND the peer must have been idle past the handshake
// timeout. A peer with no handshake on record counts as idle since the grant.
func (e *Engine) shouldEvict(ctx context.Context, n *model.Network, m *model.Membership, now time.Time) (bool, error) {
	if m.AuthorizedAt == nil {
		return false, nil
	}
	age := now.Sub(*m.AuthorizedAt)
	if age <= n.AuthorizationTimeout {
		return false, nil
	}

	idle := age
	s, err := e.samples.LatestForDevice(ctx, m.DeviceID, n.ID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// never observed: idle since the grant
	case err != nil:
		return false, err
	case !s.LatestHandshake.IsZero():
		idle = now.Sub(s.LatestHandshake)
	}
	return idle > n.HandshakeTimeout, nil
}
