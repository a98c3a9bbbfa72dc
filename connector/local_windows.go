//go:build windows

package connector

import (
	"net"
	"net/url"

	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var localPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var localDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewLocal constructs a Windows AF_UNIX connector (Win10 1803+ exposes
// afunix.h; net's "unix" network targets it transparently). Multi-client
// pipe semantics with their distinct accept/transfer model live in
// pipe_windows.go's "pipe" scheme instead (spec §4.1, §6).
func NewLocal(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, localDefault, localPossible)
	if err != nil {
		return Zero, err
	}

	path := u.Path
	peer := peeraddr.NewPath(Local, path, false)

	return newConnector(Local, sanitized, u, peer, &localDriver{
		netDriver: netDriver{blocking: sanitized.IsBlocking()},
		path:      path,
	}), nil
}

type localDriver struct {
	netDriver
	path string
}

func (d *localDriver) Listen() error {
	l, err := net.Listen("unix", d.path)
	if err != nil {
		return perror.Wrap(perror.Initialization, err, "unix socket listen failed")
	}

	d.listener = l
	d.listening = true

	return nil
}

func (d *localDriver) Connect() error {
	c, err := net.Dial("unix", d.path)
	if err != nil {
		return mapDialErr(err)
	}

	d.conn = c
	d.connected = true

	return nil
}
