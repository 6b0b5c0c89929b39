package wireguard

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/dwongdev/defguard/internal/errs"
)

// NextFreeAddress picks the lowest usable address of prefix that is not in
// taken. The network address, the IPv4 broadcast address and the prefix's own
// host address (the gateway) are never assigned.
func NextFreeAddress(prefix netip.Prefix, taken []netip.Addr) (netip.Addr, error) {
	used := make(map[netip.Addr]struct{}, len(taken)+1)
	for _, a := range taken {
		used[a.Unmap()] = struct{}{}
	}
	used[prefix.Addr().Unmap()] = struct{}{}

	bcast := broadcastAddr(prefix)
	for a := prefix.Masked().Addr().Next(); a.IsValid() && prefix.Contains(a); a = a.Next() {
		if a == bcast {
			break
		}
		if _, ok := used[a.Unmap()]; ok {
			continue
		}
		return a, nil
	}
	return netip.Addr{}, fmt.Errorf("%w: no free address in %s", errs.ErrValidation, prefix)
}

// broadcastAddr returns the highest address of an IPv4 prefix, or the zero
// Addr for IPv6 where no broadcast exists.
func broadcastAddr(p netip.Prefix) netip.Addr {
	addr := p.Masked().Addr().Unmap()
	if !addr.Is4() {
		return netip.Addr{}
	}
	b := addr.As4()
	v := binary.BigEndian.Uint32(b[:])
	v |= (1 << (32 - p.Bits())) - 1
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
