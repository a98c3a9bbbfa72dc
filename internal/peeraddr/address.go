// Package peeraddr implements the peer-address glue of spec §3: a
// socket-address paired with a connector type narrowed against the
// address's family, plus a canonicalized scheme string.
package peeraddr

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/packetio/packetio/connector"
)

// Address is a (socket-address, connector-type, scheme) triple.
type Address struct {
	// IP/Port are populated for network-family kinds (tcp*/udp*).
	IP   netip.Addr
	Port uint16

	// Path is populated for filesystem/namespace kinds (local, fifo,
	// pipe, fd). For POSIX abstract sockets it is the name including its
	// leading NUL byte (Abstract is set true).
	Path     string
	Abstract bool

	Type   connector.Type
	Scheme string
}

// CanonicalScheme maps a narrowed Type back to its registry scheme
// string. Kept here (rather than importing the registry, which would
// create an import cycle) since the mapping is fixed and small; the
// registry uses the identical table to register these schemes.
func CanonicalScheme(t connector.Type) string { return t.String() }

// NewNetwork builds a narrowed Address for a network-family connector
// type from a resolved net.IP/port pair, implementing spec invariant 4.
func NewNetwork(t connector.Type, ip net.IP, port uint16) Address {
	addr, _ := netip.AddrFromSlice(ip)
	addr = addr.Unmap()

	fam := connector.FamilyInet4
	if addr.Is6() {
		fam = connector.FamilyInet6
	}

	narrowed := t.Narrow(fam)

	return Address{IP: addr, Port: port, Type: narrowed, Scheme: CanonicalScheme(narrowed)}
}

// NewPath builds an Address for a filesystem/namespace connector type
// (local, fifo, pipe, fd, anon, tun, tap).
func NewPath(t connector.Type, path string, abstract bool) Address {
	return Address{Path: path, Abstract: abstract, Type: t, Scheme: CanonicalScheme(t)}
}

// String renders the address back into URL form. Round-tripping a
// parsed URL through Address.String is idempotent modulo scheme
// narrowing (spec §8 round-trip property).
func (a Address) String() string {
	switch a.Type {
	case connector.TCP4, connector.UDP4:
		return fmt.Sprintf("%s://%s", a.Scheme, net.JoinHostPort(a.IP.String(), portStr(a.Port)))
	case connector.TCP6, connector.UDP6:
		return fmt.Sprintf("%s://[%s]:%s", a.Scheme, a.IP.String(), portStr(a.Port))
	case connector.Local, connector.FIFO, connector.Pipe:
		if a.Abstract {
			return fmt.Sprintf("%s:///%%00%s", a.Scheme, strings.TrimPrefix(a.Path, "\x00"))
		}

		return fmt.Sprintf("%s://%s", a.Scheme, a.Path)
	default:
		return fmt.Sprintf("%s://%s", a.Scheme, a.Path)
	}
}

func portStr(p uint16) string { return fmt.Sprintf("%d", p) }
