package convert

import (
	"fmt"
	"time"

	pb "github.com/dwongdev/defguard/gen/go/gateway/v1"
	model "github.com/dwongdev/defguard/internal/model"
)

// --- Peers (server -> gateway) ---

// ToProtoPeer converts a domain gateway peer to its wire form.
func ToProtoPeer(p model.GatewayPeer) *pb.Peer {
	return &pb.Peer{
		DeviceId:          p.DeviceID,
		PublicKey:         p.PublicKey,
		AllowedIps:        p.AllowedIPs,
		PresharedKey:      p.PresharedKey,
		KeepaliveInterval: uint32(p.KeepaliveInterval),
	}
}

// ToProtoPeers converts a slice of domain peers to wire peers.
func ToProtoPeers(ps []model.GatewayPeer) []*pb.Peer {
	out := make([]*pb.Peer, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToProtoPeer(p))
	}
	return out
}

// ToProtoConfiguration builds the full configuration message for one network.
func ToProtoConfiguration(n *model.Network, peers []model.GatewayPeer) *pb.Configuration {
	if n == nil {
		return nil
	}
	return &pb.Configuration{
		NetworkId:   n.ID,
		NetworkName: n.Name,
		Peers:       ToProtoPeers(peers),
	}
}

// --- Stats (gateway -> server) ---

// FromProtoStatsUpdate converts a wire telemetry sample to the domain form.
// A zero latest_handshake maps to the zero time ("never"); a zero collected_at
// maps to the zero time and is defaulted by the ingest path.
func FromProtoStatsUpdate(in *pb.StatsUpdate) (model.PeerStatSample, error) {
	if in == nil {
		return model.PeerStatSample{}, fmt.Errorf("nil StatsUpdate")
	}
	s := model.PeerStatSample{
		DeviceID:  in.GetDeviceId(),
		NetworkID: in.GetNetworkId(),
		Upload:    int64(in.GetUpload()),
		Download:  int64(in.GetDownload()),
		Endpoint:  in.GetEndpoint(),
	}
	if ca := in.GetCollectedAt(); ca > 0 {
		s.CollectedAt = time.Unix(ca, 0).UTC()
	}
	if hs := in.GetLatestHandshake(); hs > 0 {
		s.LatestHandshake = time.Unix(hs, 0).UTC()
	}
	return s, nil
}
