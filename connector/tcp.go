//go:build !windows

package connector

import (
	"net/netip"
	"net/url"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var tcpPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var tcpDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewTCP constructs a TCP connector from a URL whose authority is
// already a literal IPv4/IPv6 address and optional port (DNS expansion
// is the Resolver's job, upstream of connector construction).
func NewTCP(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, tcpDefault, tcpPossible)
	if err != nil {
		return Zero, err
	}

	ip, port, err := parseHostPort(u)
	if err != nil {
		return Zero, err
	}

	family := unix.AF_INET
	if ip.Is6() {
		family = unix.AF_INET6
	}

	d, err := newSocket(family, unix.SOCK_STREAM, sanitized.IsBlocking())
	if err != nil {
		return Zero, err
	}

	peer := peeraddr.NewNetwork(TCP, ip.AsSlice(), port)

	return newConnector(peer.Type, sanitized, u, peer, &inetDriver{sockDriver: d, ip: ip, port: port}), nil
}

// inetDriver adds the destination address connect()/Listen() need on top
// of the shared POSIX socket mechanics.
type inetDriver struct {
	*sockDriver
	ip   netip.Addr
	port uint16
}

func (d *inetDriver) Listen() error {
	if err := d.bind(ipPortSockaddr(d.ip, d.port)); err != nil {
		return err
	}

	return d.sockDriver.Listen()
}

func (d *inetDriver) Connect() error {
	return d.connect(ipPortSockaddr(d.ip, d.port))
}

func (d *inetDriver) Accept() (driver, error) {
	peer, err := d.sockDriver.Accept()
	if err != nil {
		return nil, err
	}

	return &inetDriver{sockDriver: peer.(*sockDriver)}, nil
}

func ipPortSockaddr(ip netip.Addr, port uint16) unix.Sockaddr {
	if ip.Is4() {
		return &unix.SockaddrInet4{Port: int(port), Addr: ip.As4()}
	}

	return &unix.SockaddrInet6{Port: int(port), Addr: ip.As16()}
}

func parseHostPort(u *url.URL) (netip.Addr, uint16, error) {
	host := u.Hostname()
	if host == "" {
		return netip.Addr{}, 0, perror.New(perror.Format, "missing host in authority", nil)
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, 0, perror.Wrap(perror.Format, err, "host is not a literal IP address")
	}

	port := uint16(0)
	if p := u.Port(); p != "" {
		n, err := atoiPort(p)
		if err != nil {
			return netip.Addr{}, 0, err
		}

		port = uint16(n)
	}

	return ip, port, nil
}
