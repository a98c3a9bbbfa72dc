//go:build !windows

package connector

import (
	"net"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/perror"
)

// sockDriver is the shared POSIX socket driver behind TCP, UDP and
// local (AF_UNIX) connectors. The three kinds differ only in address
// family and the sockaddr construction helpers they pass in; the
// listen/connect/accept/read/write/receive/send/peek/close mechanics
// over raw file descriptors are identical, so spec's "one implementation
// per (kind × platform)" is factored here into one driver parameterized
// by family/socktype, the way the original's posix/socket.cpp underlies
// posix/tcp.cpp and posix/udp.cpp.
type sockDriver struct {
	fd        int
	family    int
	socktype  int
	blocking  bool
	listening bool
	connected bool

	// unlinkPath is set for AF_UNIX listeners that created a filesystem
	// entry; Close removes it once the connector owns the last reference.
	unlinkPath string
}

func newSocket(family, socktype int, blocking bool) (*sockDriver, error) {
	fd, err := unix.Socket(family, socktype, 0)
	if err != nil {
		return nil, perror.Wrap(perror.Initialization, err, "socket(2) failed")
	}

	if err := unix.SetNonblock(fd, !blocking); err != nil {
		_ = unix.Close(fd)
		return nil, perror.Wrap(perror.Initialization, err, "setting non-blocking mode failed")
	}

	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	return &sockDriver{fd: fd, family: family, socktype: socktype, blocking: blocking}, nil
}

func fromFD(fd int, family, socktype int, blocking bool) *sockDriver {
	return &sockDriver{fd: fd, family: family, socktype: socktype, blocking: blocking}
}

func (d *sockDriver) Listening() bool { return d.listening }
func (d *sockDriver) Connected() bool { return d.connected }

func (d *sockDriver) Listen() error {
	if d.listening || d.connected {
		return perror.New(perror.Initialization, "connector is already listening or connected", nil)
	}

	if d.socktype == unix.SOCK_STREAM {
		if err := unix.Listen(d.fd, 128); err != nil {
			return perror.Wrap(perror.Initialization, err, "listen(2) failed")
		}
	}

	d.listening = true

	return nil
}

func (d *sockDriver) bind(sa unix.Sockaddr) error {
	if err := unix.Bind(d.fd, sa); err != nil {
		return mapSockErr(err, "bind(2) failed")
	}

	return nil
}

func (d *sockDriver) connect(sa unix.Sockaddr) error {
	if d.listening || d.connected {
		return perror.New(perror.Initialization, "connector is already listening or connected", nil)
	}

	err := unix.Connect(d.fd, sa)
	if err == nil {
		d.connected = true
		return nil
	}

	if err == unix.EINPROGRESS {
		return perror.ErrAsync
	}

	return mapSockErr(err, "connect(2) failed")
}

func (d *sockDriver) Accept() (driver, error) {
	if !d.listening {
		return nil, perror.New(perror.Initialization, "connector is not listening", nil)
	}

	nfd, _, err := unix.Accept(d.fd)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, perror.ErrAsync
		}

		return nil, mapSockErr(err, "accept(2) failed")
	}

	if err := unix.SetNonblock(nfd, !d.blocking); err != nil {
		_ = unix.Close(nfd)
		return nil, perror.Wrap(perror.Initialization, err, "setting non-blocking mode on accepted socket failed")
	}

	peer := fromFD(nfd, d.family, d.socktype, d.blocking)
	peer.connected = true

	return peer, nil
}

func (d *sockDriver) Read(buf []byte) (int, error) {
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *sockDriver) Write(buf []byte) (int, error) {
	n, err := unix.Write(d.fd, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *sockDriver) Receive(buf []byte) (int, net.Addr, error) {
	n, from, err := unix.Recvfrom(d.fd, buf, 0)
	if err != nil {
		return 0, nil, classifyIOErr(err)
	}

	return n, sockaddrToAddr(from, d.socktype), nil
}

func (d *sockDriver) Send(buf []byte, to net.Addr) (int, error) {
	sa, err := addrToSockaddr(to)
	if err != nil {
		return 0, err
	}

	if sa == nil {
		n, err := unix.Write(d.fd, buf)
		if err != nil {
			return 0, classifyIOErr(err)
		}

		return n, nil
	}

	if err := unix.Sendto(d.fd, buf, 0, sa); err != nil {
		return 0, classifyIOErr(err)
	}

	return len(buf), nil
}

func (d *sockDriver) Peek() (int, error) {
	var avail int

	n, err := unix.IoctlGetInt(d.fd, unix.FIONREAD)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	avail = n

	return avail, nil
}

func (d *sockDriver) Close() error {
	err := unix.Close(d.fd)

	if d.unlinkPath != "" {
		_ = unix.Unlink(d.unlinkPath)
	}

	if err != nil {
		return perror.Wrap(perror.FSError, err, "close(2) failed")
	}

	return nil
}

func (d *sockDriver) ReadHandle() handle.Handle  { return handle.FromFD(d.fd) }
func (d *sockDriver) WriteHandle() handle.Handle { return handle.FromFD(d.fd) }

// classifyIOErr maps a read/write/recv/send errno to the spec taxonomy,
// treating EAGAIN/EWOULDBLOCK as the non-error perror.Async.
func classifyIOErr(err error) error {
	switch err {
	case unix.EAGAIN:
		return perror.ErrAsync
	case unix.ECONNRESET, unix.EPIPE:
		return perror.Wrap(perror.ConnectionAborted, err, "connection aborted")
	case unix.ECONNREFUSED:
		return perror.Wrap(perror.ConnectionRefused, err, "connection refused")
	default:
		return perror.Wrap(perror.Unexpected, err, "I/O operation failed")
	}
}

func mapSockErr(err error, msg string) error {
	switch err {
	case unix.EADDRINUSE:
		return perror.Wrap(perror.AddressInUse, err, msg)
	case unix.EADDRNOTAVAIL:
		return perror.Wrap(perror.AddressNotAvailable, err, msg)
	case unix.ENETUNREACH:
		return perror.Wrap(perror.NetworkUnreachable, err, msg)
	case unix.ECONNREFUSED:
		return perror.Wrap(perror.ConnectionRefused, err, msg)
	default:
		return perror.Wrap(perror.Unexpected, err, msg)
	}
}

func sockaddrToAddr(sa unix.Sockaddr, socktype int) net.Addr {
	network := "tcp"
	if socktype == unix.SOCK_DGRAM {
		network = "udp"
	}

	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := netip.AddrFrom4(s.Addr)
		return &netAddr{network: network, addr: net.JoinHostPort(ip.String(), itoa(s.Port))}
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(s.Addr)
		return &netAddr{network: network, addr: net.JoinHostPort(ip.String(), itoa(s.Port))}
	case *unix.SockaddrUnix:
		return &netAddr{network: "unix", addr: s.Name}
	default:
		return nil
	}
}

func addrToSockaddr(a net.Addr) (unix.Sockaddr, error) {
	if a == nil {
		return nil, nil
	}

	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		// Unix-domain destinations have no port.
		return &unix.SockaddrUnix{Name: a.String()}, nil
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return nil, perror.Wrap(perror.Format, err, "invalid destination address")
	}

	port, err := atoiPort(portStr)
	if err != nil {
		return nil, perror.Wrap(perror.Format, err, "invalid destination port")
	}

	if ip.Is4() {
		return &unix.SockaddrInet4{Port: port, Addr: ip.As4()}, nil
	}

	return &unix.SockaddrInet6{Port: port, Addr: ip.As16()}, nil
}

type netAddr struct {
	network string
	addr    string
}

func (n *netAddr) Network() string { return n.network }
func (n *netAddr) String() string  { return n.addr }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var buf [6]byte

	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[i:])
}

func atoiPort(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, perror.New(perror.Format, "port is not numeric", nil)
		}

		n = n*10 + int(c-'0')
	}

	if n < 0 || n > 65535 {
		return 0, perror.New(perror.Format, "port out of range", nil)
	}

	return n, nil
}
