package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var ErrNotIPv4 = errors.New("address is not an ipv4 address")

// ParseAddrPort parses an <ip>:<port> or <host>:<port> representation.
// Host names are resolved to their first IPv4 address.
func ParseAddrPort(addrPort string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(addrPort)
	if err == nil {
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
	}

	udpAddr, rerr := net.ResolveUDPAddr("udp4", addrPort)
	if rerr != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid address %q: %w", addrPort, errors.Join(err, rerr))
	}
	ap = udpAddr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// IPv4ToUint32 returns the big endian integer representation of an IPv4
// or IPv4 mapped IPv6 address.
func IPv4ToUint32(addr netip.Addr) (uint32, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, fmt.Errorf("%w: %s", ErrNotIPv4, addr)
	}
	a := addr.As4()
	return binary.BigEndian.Uint32(a[:]), nil
}

// IPv4FromUint32 is the inverse of IPv4ToUint32.
func IPv4FromUint32(v uint32) netip.Addr {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], v)
	return netip.AddrFrom4(a)
}
