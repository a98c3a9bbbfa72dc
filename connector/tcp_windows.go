//go:build windows

package connector

import (
	"net"
	"net/url"
	"strconv"

	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var tcpPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var tcpDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewTCP constructs a TCP connector backed by net.Dial/net.Listen, the
// way the teacher's Windows runtime layers its higher-level client code
// over net.Conn rather than raw WinSock (internal/iomux/wsapoll_windows.go
// handles the raw-handle path the multiplexor itself needs).
func NewTCP(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, tcpDefault, tcpPossible)
	if err != nil {
		return Zero, err
	}

	host, port, err := splitHostPort(u)
	if err != nil {
		return Zero, err
	}

	peer := peeraddr.NewNetwork(TCP, net.ParseIP(host), port)

	return newConnector(peer.Type, sanitized, u, peer, &tcpListenDriver{
		netDriver: netDriver{blocking: sanitized.IsBlocking()},
		addr:      net.JoinHostPort(host, portStr(port)),
	}), nil
}

type tcpListenDriver struct {
	netDriver
	addr string
}

func (d *tcpListenDriver) Listen() error {
	l, err := net.Listen("tcp", d.addr)
	if err != nil {
		return perror.Wrap(perror.Initialization, err, "listen failed")
	}

	d.listener = l
	d.listening = true

	return nil
}

func (d *tcpListenDriver) Connect() error {
	c, err := net.Dial("tcp", d.addr)
	if err != nil {
		return mapDialErr(err)
	}

	d.conn = c
	d.connected = true

	return nil
}

func mapDialErr(err error) error {
	if err == nil {
		return nil
	}

	return perror.Wrap(perror.ConnectionRefused, err, "connect failed")
}

func portStr(p uint16) string {
	if p == 0 {
		return "0"
	}

	var buf [5]byte

	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}

	return string(buf[i:])
}

func splitHostPort(u *url.URL) (string, uint16, error) {
	host := u.Hostname()
	if host == "" {
		return "", 0, perror.New(perror.Format, "missing host in authority", nil)
	}

	port := uint16(0)

	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 65535 {
			return "", 0, perror.New(perror.Format, "invalid port", map[string]any{"port": p})
		}

		port = uint16(n)
	}

	return host, port, nil
}
