//go:build !windows

package connector

import (
	"net/url"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/peeraddr"
)

var udpPossible = possibleSet{
	behaviors: []Behavior{Datagram},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var udpDefault = Options{Behavior: Datagram, Blocking: BlockModeNonBlocking}

// NewUDP constructs a UDP connector. communicating() for UDP is
// Listening(), not Connected(): listen() both binds the local endpoint
// and marks the connector ready for Send/Receive (spec §4.1).
func NewUDP(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, udpDefault, udpPossible)
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

	d, err := newSocket(family, unix.SOCK_DGRAM, sanitized.IsBlocking())
	if err != nil {
		return Zero, err
	}

	peer := peeraddr.NewNetwork(UDP, ip.AsSlice(), port)

	return newConnector(peer.Type, sanitized, u, peer, &inetDriver{sockDriver: d, ip: ip, port: port}), nil
}
