package service

import (
	"net/netip"

	"github.com/dwongdev/defguard/internal/model"
)

// GatewayNotifier pushes peer and network changes to connected gateway
// sessions. Pushes are fire-and-forget: a gateway that misses one recovers
// on reconnect, which always starts with a full configuration.
type GatewayNotifier interface {
	PeerUpserted(networkID int64, p model.GatewayPeer)
	PeerRemoved(networkID int64, p model.GatewayPeer)
	NetworkChanged(n *model.Network, peers []model.GatewayPeer)
	NetworkRemoved(networkID int64, name string)
}

// gatewayPeer assembles the wire peer entry for one membership.
func gatewayPeer(d *model.Device, m *model.Membership, keepalive int32) model.GatewayPeer {
	ips := make([]string, 0, len(m.Addresses))
	for _, a := range m.Addresses {
		ips = append(ips, netip.PrefixFrom(a, a.BitLen()).String())
	}
	return model.GatewayPeer{
		DeviceID:          d.ID,
		PublicKey:         d.PublicKey,
		AllowedIPs:        ips,
		PresharedKey:      m.PresharedKey,
		KeepaliveInterval: keepalive,
	}
}
