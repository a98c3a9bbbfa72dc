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

var fifoPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var fifoDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewFIFO constructs a FIFO connector. listen() both mkfifo(2)s and
// opens the filesystem entry named by the URL path; accept() returns a
// connector sharing this one's state, matching spec §4.1's "kinds
// without a server/client distinction". Readers opened by other
// processes each see a subset of writes (spec §9's accepted FIFO-
// broadcast ambiguity).
func NewFIFO(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, fifoDefault, fifoPossible)
	if err != nil {
		return Zero, err
	}

	peer := peeraddr.NewPath(FIFO, u.Path, false)

	return newConnector(FIFO, sanitized, u, peer, &fifoDriver{path: u.Path, blocking: sanitized.IsBlocking()}), nil
}

type fifoDriver struct {
	path     string
	blocking bool
	fd       int
	ready    bool
}

func (d *fifoDriver) Listen() error {
	if err := unix.Mkfifo(d.path, 0o600); err != nil && err != unix.EEXIST {
		return perror.Wrap(perror.FSError, err, "mkfifo(2) failed")
	}

	flags := unix.O_RDWR
	if !d.blocking {
		flags |= unix.O_NONBLOCK
	}

	fd, err := unix.Open(d.path, flags, 0)
	if err != nil {
		return perror.Wrap(perror.FSError, err, "open(2) of fifo failed")
	}

	d.fd = fd
	d.ready = true

	return nil
}

func (d *fifoDriver) Connect() error { return d.Listen() }

func (d *fifoDriver) Accept() (driver, error) {
	return nil, perror.ErrUnsupportedAction
}

func (d *fifoDriver) Listening() bool { return d.ready }
func (d *fifoDriver) Connected() bool { return d.ready }

func (d *fifoDriver) Read(buf []byte) (int, error) {
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *fifoDriver) Write(buf []byte) (int, error) {
	n, err := unix.Write(d.fd, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *fifoDriver) Receive(buf []byte) (int, net.Addr, error) {
	return 0, nil, perror.ErrUnsupportedAction
}

func (d *fifoDriver) Send(buf []byte, to net.Addr) (int, error) {
	return 0, perror.ErrUnsupportedAction
}

func (d *fifoDriver) Peek() (int, error) {
	n, err := unix.IoctlGetInt(d.fd, unix.FIONREAD)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *fifoDriver) Close() error {
	if !d.ready {
		return nil
	}

	err := unix.Close(d.fd)
	_ = unix.Unlink(d.path)

	if err != nil {
		return perror.Wrap(perror.FSError, err, "close(2) failed")
	}

	return nil
}

func (d *fifoDriver) ReadHandle() handle.Handle  { return handle.FromFD(d.fd) }
func (d *fifoDriver) WriteHandle() handle.Handle { return handle.FromFD(d.fd) }
