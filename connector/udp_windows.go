//go:build windows

package connector

import (
	"net"
	"net/url"

	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var udpPossible = possibleSet{
	behaviors: []Behavior{Datagram},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var udpDefault = Options{Behavior: Datagram, Blocking: BlockModeNonBlocking}

// NewUDP constructs a UDP connector. Datagram connectors have no
// server/client distinction (spec §4.1): Accept returns a clone sharing
// this connector's state, Listen binds the local address and Connect
// dials the address.
func NewUDP(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, udpDefault, udpPossible)
	if err != nil {
		return Zero, err
	}

	host, port, err := splitHostPort(u)
	if err != nil {
		return Zero, err
	}

	peer := peeraddr.NewNetwork(UDP, net.ParseIP(host), port)

	return newConnector(peer.Type, sanitized, u, peer, &udpDriver{
		netDriver: netDriver{blocking: sanitized.IsBlocking()},
		addr:      net.JoinHostPort(host, portStr(port)),
	}), nil
}

type udpDriver struct {
	netDriver
	addr string
}

func (d *udpDriver) Listen() error {
	pc, err := net.ListenPacket("udp", d.addr)
	if err != nil {
		return perror.Wrap(perror.Initialization, err, "listen failed")
	}

	d.packetConn = pc
	d.listening = true

	return nil
}

func (d *udpDriver) Connect() error {
	c, err := net.Dial("udp", d.addr)
	if err != nil {
		return mapDialErr(err)
	}

	d.conn = c
	d.connected = true

	return nil
}

func (d *udpDriver) Accept() (driver, error) {
	return nil, perror.ErrUnsupportedAction
}
