package agent

import (
	"sort"
	"sync"
	"time"

	pb "github.com/dwongdev/defguard/gen/go/gateway/v1"
)

// PeerState is one configured peer plus the transfer counters the data
// plane accumulates against it.
type PeerState struct {
	DeviceID          int64
	PublicKey         string
	AllowedIPs        []string
	PresharedKey      string
	KeepaliveInterval uint32

	Upload          uint64
	Download        uint64
	LatestHandshake time.Time
	Endpoint        string
}

// Table is the agent's view of the WireGuard interface: the peer set last
// pushed by the control plane, keyed by public key. The data plane itself is
// external; it feeds counters in through Observe.
type Table struct {
	mu          sync.RWMutex
	networkID   int64
	networkName string
	peers       map[string]*PeerState
}

func NewTable() *Table {
	return &Table{peers: map[string]*PeerState{}}
}

// Apply folds one control-plane update into the table. Counters of peers
// that survive a full replacement are carried over, matching how a real
// interface keeps per-peer counters across reconfiguration.
func (t *Table) Apply(up *pb.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch up.GetKind() {
	case pb.UpdateKind_UPDATE_KIND_FULL:
		cfg := up.GetConfig()
		t.networkID = cfg.GetNetworkId()
		t.networkName = cfg.GetNetworkName()
		next := make(map[string]*PeerState, len(cfg.GetPeers()))
		for _, p := range cfg.GetPeers() {
			st := peerState(p)
			if prev, ok := t.peers[st.PublicKey]; ok {
				st.Upload = prev.Upload
				st.Download = prev.Download
				st.LatestHandshake = prev.LatestHandshake
				st.Endpoint = prev.Endpoint
			}
			next[st.PublicKey] = st
		}
		t.peers = next

	case pb.UpdateKind_UPDATE_KIND_PEER_UPSERT:
		st := peerState(up.GetPeer())
		if st.PublicKey == "" {
			return
		}
		if prev, ok := t.peers[st.PublicKey]; ok {
			st.Upload = prev.Upload
			st.Download = prev.Download
			st.LatestHandshake = prev.LatestHandshake
			st.Endpoint = prev.Endpoint
		}
		t.peers[st.PublicKey] = st

	case pb.UpdateKind_UPDATE_KIND_PEER_DELETE:
		delete(t.peers, up.GetPeer().GetPublicKey())

	case pb.UpdateKind_UPDATE_KIND_NETWORK_DELETE:
		t.peers = map[string]*PeerState{}
	}
}

// Observe records data-plane counters for one peer. It reports false when
// the peer is not configured, so stale traffic is dropped instead of
// attributed.
func (t *Table) Observe(publicKey string, upload, download uint64, handshake time.Time, endpoint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[publicKey]
	if !ok {
		return false
	}
	p.Upload = upload
	p.Download = download
	p.LatestHandshake = handshake
	p.Endpoint = endpoint
	return true
}

// Snapshot returns the peers ordered by public key.
func (t *Table) Snapshot() []PeerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerState, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicKey < out[j].PublicKey })
	return out
}

// Network returns the id and name of the network last pushed in full.
func (t *Table) Network() (int64, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.networkID, t.networkName
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

func peerState(p *pb.Peer) *PeerState {
	return &PeerState{
		DeviceID:          p.GetDeviceId(),
		PublicKey:         p.GetPublicKey(),
		AllowedIPs:        append([]string(nil), p.GetAllowedIps()...),
		PresharedKey:      p.GetPresharedKey(),
		KeepaliveInterval: p.GetKeepaliveInterval(),
	}
}
