package transport

import (
	"fmt"
	"net"
)

// LocatorKind identifies the address family a Locator carries.
type LocatorKind uint8

const (
	// LocatorKindUDPv4 addresses an IPv4 UDP endpoint.
	LocatorKindUDPv4 LocatorKind = iota
	// LocatorKindUDPv6 addresses an IPv6 UDP endpoint.
	LocatorKindUDPv6
)

// Locator is a transport address a writer or reader can be reached
// at, analogous to RTPS's Locator_t. It is comparable, so it can be
// used as a map key when deduplicating reader addresses.
type Locator struct {
	Kind LocatorKind
	Addr [16]byte
	Port uint32
}

// LocatorFromUDPAddr builds a Locator from a resolved UDP address.
func LocatorFromUDPAddr(addr *net.UDPAddr) Locator {
	loc := Locator{Port: uint32(addr.Port)}
	ip4 := addr.IP.To4()
	if ip4 != nil {
		loc.Kind = LocatorKindUDPv4
		copy(loc.Addr[12:], ip4)
	} else {
		loc.Kind = LocatorKindUDPv6
		copy(loc.Addr[:], addr.IP.To16())
	}
	return loc
}

// UDPAddr renders the locator back to a *net.UDPAddr for use with the
// standard library's networking calls.
func (l Locator) UDPAddr() *net.UDPAddr {
	if l.Kind == LocatorKindUDPv4 {
		return &net.UDPAddr{IP: net.IP(l.Addr[12:16]), Port: int(l.Port)}
	}
	ip := make(net.IP, 16)
	copy(ip, l.Addr[:])
	return &net.UDPAddr{IP: ip, Port: int(l.Port)}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s:%d", l.UDPAddr().IP.String(), l.Port)
}
