// Package gateway tracks live gateway sessions and fans control-plane
// updates out to them.
package gateway

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	pb "github.com/dwongdev/defguard/gen/go/gateway/v1"
	"github.com/dwongdev/defguard/internal/convert"
	"github.com/dwongdev/defguard/internal/model"
	u "github.com/gofrs/uuid/v5"
	"github.com/golang/protobuf/proto"
	"go.uber.org/zap"
)

// outboxSize bounds the per-session update queue. A gateway that cannot keep
// up loses incremental updates and recovers by reconnecting, which always
// starts with a full configuration.
const outboxSize = 64

// Conn is one live gateway session. Exactly one writer goroutine drains
// Outbox for the lifetime of the session.
type Conn struct {
	ID          u.UUID
	NetworkID   int64
	Hostname    string
	ConnectedAt time.Time

	outbox  chan *pb.Update
	dropped atomic.Int64
}

// Outbox returns the stream of pending updates for this session.
func (c *Conn) Outbox() <-chan *pb.Update { return c.outbox }

// Dropped returns how many updates were discarded because the outbox was full.
func (c *Conn) Dropped() int64 { return c.dropped.Load() }

// Status describes one connected gateway for operator visibility.
type Status struct {
	ID          u.UUID    `json:"id"`
	NetworkID   int64     `json:"network_id"`
	Hostname    string    `json:"hostname"`
	ConnectedAt time.Time `json:"connected_at"`
	Dropped     int64     `json:"dropped_updates"`
}

// Registry holds every live gateway session keyed by network.
type Registry struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[int64]map[u.UUID]*Conn
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: make(map[int64]map[u.UUID]*Conn),
	}
}

// Register adds a new session for the given network and returns it.
func (r *Registry) Register(networkID int64, hostname string) *Conn {
	c := &Conn{
		ID:          u.Must(u.NewV4()),
		NetworkID:   networkID,
		Hostname:    hostname,
		ConnectedAt: time.Now().UTC(),
		outbox:      make(chan *pb.Update, outboxSize),
	}

	r.mu.Lock()
	m := r.conns[networkID]
	if m == nil {
		m = make(map[u.UUID]*Conn)
		r.conns[networkID] = m
	}
	m[c.ID] = c
	r.mu.Unlock()

	r.log.Info("gateway connected",
		zap.Int64("network_id", networkID),
		zap.String("hostname", hostname),
		zap.String("conn_id", c.ID.String()))
	return c
}

// Unregister removes a session. Safe to call once per Conn.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	if m := r.conns[c.NetworkID]; m != nil {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(r.conns, c.NetworkID)
		}
	}
	r.mu.Unlock()

	r.log.Info("gateway disconnected",
		zap.Int64("network_id", c.NetworkID),
		zap.String("hostname", c.Hostname),
		zap.String("conn_id", c.ID.String()),
		zap.Int64("dropped_updates", c.Dropped()))
}

// Connected reports whether at least one gateway session exists for the network.
func (r *Registry) Connected(networkID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[networkID]) > 0
}

// Gateways lists the live sessions of one network, oldest first.
func (r *Registry) Gateways(networkID int64) []Status {
	r.mu.RLock()
	out := make([]Status, 0, len(r.conns[networkID]))
	for _, c := range r.conns[networkID] {
		out = append(out, Status{
			ID:          c.ID,
			NetworkID:   c.NetworkID,
			Hostname:    c.Hostname,
			ConnectedAt: c.ConnectedAt,
			Dropped:     c.Dropped(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// PeerUpserted pushes a peer add-or-update to every session of the network.
func (r *Registry) PeerUpserted(networkID int64, p model.GatewayPeer) {
	r.broadcast(networkID, &pb.Update{
		Kind: pb.UpdateKind_UPDATE_KIND_PEER_UPSERT,
		Peer: convert.ToProtoPeer(p),
	})
}

// PeerRemoved pushes a peer removal to every session of the network.
func (r *Registry) PeerRemoved(networkID int64, p model.GatewayPeer) {
	r.broadcast(networkID, &pb.Update{
		Kind: pb.UpdateKind_UPDATE_KIND_PEER_DELETE,
		Peer: convert.ToProtoPeer(p),
	})
}

// NetworkChanged pushes a full configuration after network settings change.
func (r *Registry) NetworkChanged(n *model.Network, peers []model.GatewayPeer) {
	if n == nil {
		return
	}
	r.broadcast(n.ID, &pb.Update{
		Kind:   pb.UpdateKind_UPDATE_KIND_FULL,
		Config: convert.ToProtoConfiguration(n, peers),
	})
}

// NetworkRemoved tells every session of the network to tear down.
func (r *Registry) NetworkRemoved(networkID int64, name string) {
	r.broadcast(networkID, &pb.Update{
		Kind:   pb.UpdateKind_UPDATE_KIND_NETWORK_DELETE,
		Config: &pb.Configuration{NetworkId: networkID, NetworkName: name},
	})
}

// broadcast delivers one update to every session of the network without
// blocking: a full outbox drops the update and counts the loss. Each session
// gets its own copy; a message must not be marshaled concurrently on several
// streams.
func (r *Registry) broadcast(networkID int64, up *pb.Update) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns[networkID] {
		select {
		case c.outbox <- proto.Clone(up).(*pb.Update):
		default:
			n := c.dropped.Add(1)
			r.log.Warn("gateway outbox full, dropping update",
				zap.Int64("network_id", networkID),
				zap.String("conn_id", c.ID.String()),
				zap.Int64("dropped_total", n))
		}
	}
}
