//go:build !windows

package connector

import (
	"net"
	"net/url"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var anonPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var anonDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewAnon constructs an anonymous pipe connector: a pipe(2) pair stored
// as (read, write); Accept returns a connector sharing this one's state
// since there is no separate server/client side (spec §4.1).
func NewAnon(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, anonDefault, anonPossible)
	if err != nil {
		return Zero, err
	}

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return Zero, perror.Wrap(perror.Initialization, err, "pipe(2) failed")
	}

	if !sanitized.IsBlocking() {
		_ = unix.SetNonblock(fds[0], true)
		_ = unix.SetNonblock(fds[1], true)
	}

	peer := peeraddr.NewPath(Anon, "", false)

	return newConnector(Anon, sanitized, u, peer, &anonDriver{readFD: fds[0], writeFD: fds[1]}), nil
}

// anonDriver wraps an os.Pipe()-style (read, write) descriptor pair.
// listen() is a no-op beyond marking the pipe ready: the resource is
// already created at construction time.
type anonDriver struct {
	readFD, writeFD int
	ready           bool
}

func (d *anonDriver) Listen() error {
	d.ready = true
	return nil
}

func (d *anonDriver) Connect() error { return nil }

func (d *anonDriver) Accept() (driver, error) {
	return nil, perror.ErrUnsupportedAction
}

func (d *anonDriver) Listening() bool { return d.ready }
func (d *anonDriver) Connected() bool { return d.ready }

func (d *anonDriver) Read(buf []byte) (int, error) {
	n, err := unix.Read(d.readFD, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *anonDriver) Write(buf []byte) (int, error) {
	n, err := unix.Write(d.writeFD, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *anonDriver) Receive(buf []byte) (int, net.Addr, error) {
	return 0, nil, perror.ErrUnsupportedAction
}

func (d *anonDriver) Send(buf []byte, to net.Addr) (int, error) {
	return 0, perror.ErrUnsupportedAction
}

func (d *anonDriver) Peek() (int, error) {
	n, err := unix.IoctlGetInt(d.readFD, unix.FIONREAD)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *anonDriver) Close() error {
	err1 := unix.Close(d.readFD)
	err2 := unix.Close(d.writeFD)

	if err1 != nil {
		return perror.Wrap(perror.FSError, err1, "close(2) failed on read end")
	}

	if err2 != nil {
		return perror.Wrap(perror.FSError, err2, "close(2) failed on write end")
	}

	return nil
}

func (d *anonDriver) ReadHandle() handle.Handle  { return handle.FromFD(d.readFD) }
func (d *anonDriver) WriteHandle() handle.Handle { return handle.FromFD(d.writeFD) }
