package convert

import (
	"testing"
	"time"

	pb "github.com/dwongdev/defguard/gen/go/gateway/v1"
	model "github.com/dwongdev/defguard/internal/model"
)

func TestToProtoPeer(t *testing.T) {
	t.Parallel()

	p := ToProtoPeer(model.GatewayPeer{
		DeviceID:          42,
		PublicKey:         "pubA",
		AllowedIPs:        []string{"10.6.0.2/32", "fd00::2/128"},
		PresharedKey:      "psk",
		KeepaliveInterval: 25,
	})
	if p.GetDeviceId() != 42 || p.GetPublicKey() != "pubA" {
		t.Fatalf("basic fields mismatch")
	}
	if len(p.GetAllowedIps()) != 2 || p.GetAllowedIps()[0] != "10.6.0.2/32" {
		t.Fatalf("allowed ips mismatch: %v", p.GetAllowedIps())
	}
	if p.GetPresharedKey() != "psk" || p.GetKeepaliveInterval() != 25 {
		t.Fatalf("psk/keepalive mismatch")
	}
}

func TestToProtoPeers_NilMapsToEmpty(t *testing.T) {
	t.Parallel()

	if len(ToProtoPeers(nil)) != 0 {
		t.Fatalf("nil slice must map to empty slice")
	}
	ps := ToProtoPeers([]model.GatewayPeer{{DeviceID: 1}, {DeviceID: 2}})
	if len(ps) != 2 || ps[0].GetDeviceId() != 1 || ps[1].GetDeviceId() != 2 {
		t.Fatalf("slice mapping mismatch")
	}
}

func TestToProtoConfiguration(t *testing.T) {
	t.Parallel()

	if ToProtoConfiguration(nil, nil) != nil {
		t.Fatalf("nil network must give nil configuration")
	}

	n := &model.Network{ID: 7, Name: "office"}
	cfg := ToProtoConfiguration(n, []model.GatewayPeer{{DeviceID: 1, PublicKey: "k"}})
	if cfg.GetNetworkId() != 7 || cfg.GetNetworkName() != "office" {
		t.Fatalf("network fields mismatch")
	}
	if len(cfg.GetPeers()) != 1 || cfg.GetPeers()[0].GetPublicKey() != "k" {
		t.Fatalf("peers mismatch")
	}
}

func TestFromProtoStatsUpdate(t *testing.T) {
	t.Parallel()

	if _, err := FromProtoStatsUpdate(nil); err == nil {
		t.Fatalf("nil StatsUpdate must error")
	}

	now := time.Now().UTC().Truncate(time.Second)
	s, err := FromProtoStatsUpdate(&pb.StatsUpdate{
		DeviceId:        3,
		NetworkId:       1,
		CollectedAt:     now.Unix(),
		Upload:          100,
		Download:        2000,
		LatestHandshake: now.Add(-30 * time.Second).Unix(),
		Endpoint:        "203.0.113.5:51820",
	})
	if err != nil {
		t.Fatalf("FromProtoStatsUpdate: %v", err)
	}
	if s.DeviceID != 3 || s.NetworkID != 1 || s.Upload != 100 || s.Download != 2000 {
		t.Fatalf("fields mismatch: %+v", s)
	}
	if !s.CollectedAt.Equal(now) {
		t.Fatalf("collected_at mismatch: %v", s.CollectedAt)
	}
	if !s.LatestHandshake.Equal(now.Add(-30 * time.Second)) {
		t.Fatalf("handshake mismatch: %v", s.LatestHandshake)
	}
	if s.Endpoint != "203.0.113.5:51820" {
		t.Fatalf("endpoint mismatch")
	}
}

func TestFromProtoStatsUpdate_ZeroTimes(t *testing.T) {
	t.Parallel()

	s, err := FromProtoStatsUpdate(&pb.StatsUpdate{DeviceId: 1, NetworkId: 1})
	if err != nil {
		t.Fatalf("FromProtoStatsUpdate: %v", err)
	}
	if !s.CollectedAt.IsZero() {
		t.Fatalf("zero collected_at must map to zero time")
	}
	if !s.LatestHandshake.IsZero() {
		t.Fatalf("zero handshake must map to zero time (never)")
	}
}
