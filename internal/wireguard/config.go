package wireguard

import (
	"fmt"
	"strings"

	"github.com/dwongdev/defguard/internal/model"
)

// RenderClientConfig produces the INI configuration a device owner imports
// into a WireGuard client. The device private key never reaches the control
// plane, so a placeholder is emitted in its place.
func RenderClientConfig(n *model.Network, m *model.Membership) string {
	addrs := make([]string, 0, len(m.Addresses))
	for _, a := range m.Addresses {
		addrs = append(addrs, a.String())
	}
	allowed := make([]string, 0, len(n.AllowedIPs))
	for _, p := range n.AllowedIPs {
		allowed = append(allowed, p.String())
	}

	var b strings.Builder
	b.WriteString("[Interface]\n")
	b.WriteString("PrivateKey = YOUR_PRIVATE_KEY\n")
	fmt.Fprintf(&b, "Address = %s\n", strings.Join(addrs, ","))
	if n.DNS != "" {
		fmt.Fprintf(&b, "DNS = %s\n", n.DNS)
	}
	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", n.PublicKey)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(allowed, ","))
	fmt.Fprintf(&b, "Endpoint = %s:%d\n", n.Endpoint, n.Port)
	b.WriteString("PersistentKeepalive = 300\n")
	return b.String()
}
