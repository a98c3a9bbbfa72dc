//go:build !windows

package connector

import (
	"net/url"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/peeraddr"
)

var localPossible = possibleSet{
	behaviors: []Behavior{Stream, Datagram},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var localDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewLocal constructs an AF_UNIX connector. A path whose second byte is
// NUL (URL-encoded as %00) names a Linux abstract socket rather than a
// filesystem entry (spec §6); abstract names are POSIX-only and have no
// portable meaning, per spec's scope note on abstract sockets.
func NewLocal(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, localDefault, localPossible)
	if err != nil {
		return Zero, err
	}

	path := u.Path
	if strings.HasPrefix(path, "/\x00") {
		path = path[1:]
	}

	abstract := strings.HasPrefix(path, "\x00")

	socktype := unix.SOCK_STREAM
	if sanitized.Behavior == Datagram {
		socktype = unix.SOCK_DGRAM
	}

	d, err := newSocket(unix.AF_UNIX, socktype, sanitized.IsBlocking())
	if err != nil {
		return Zero, err
	}

	peer := peeraddr.NewPath(Local, path, abstract)

	return newConnector(Local, sanitized, u, peer, &localDriver{sockDriver: d, path: path, abstract: abstract}), nil
}

type localDriver struct {
	*sockDriver
	path     string
	abstract bool
}

func (d *localDriver) sockaddr() *unix.SockaddrUnix {
	return &unix.SockaddrUnix{Name: d.path}
}

func (d *localDriver) Listen() error {
	if !d.abstract {
		_ = unix.Unlink(d.path)
	}

	if err := d.bind(d.sockaddr()); err != nil {
		return err
	}

	if !d.abstract {
		d.unlinkPath = d.path
	}

	return d.sockDriver.Listen()
}

func (d *localDriver) Connect() error {
	return d.connect(d.sockaddr())
}

func (d *localDriver) Accept() (driver, error) {
	peer, err := d.sockDriver.Accept()
	if err != nil {
		return nil, err
	}

	return &localDriver{sockDriver: peer.(*sockDriver), path: d.path, abstract: d.abstract}, nil
}
