//go:build !windows

package connector

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var filedescPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var filedescDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewFileDesc adopts an existing descriptor named by the URL path,
// either a decimal number or one of the reserved names stdin/stdout
// /stderr (case-insensitive). Close refuses to actually close the
// descriptor, since the adopter does not own its lifecycle (spec §4.1).
func NewFileDesc(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, filedescDefault, filedescPossible)
	if err != nil {
		return Zero, err
	}

	fd, err := parseFD(u.Path)
	if err != nil {
		return Zero, err
	}

	if err := unix.SetNonblock(fd, !sanitized.IsBlocking()); err != nil {
		return Zero, perror.Wrap(perror.Initialization, err, "setting non-blocking mode failed")
	}

	peer := peeraddr.NewPath(FileDesc, u.Path, false)

	return newConnector(FileDesc, sanitized, u, peer, &filedescDriver{fd: fd}), nil
}

func parseFD(path string) (int, error) {
	name := strings.TrimPrefix(path, "/")

	switch strings.ToLower(name) {
	case "stdin":
		return 0, nil
	case "stdout":
		return 1, nil
	case "stderr":
		return 2, nil
	}

	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, perror.New(perror.Format, "file descriptor path must be a non-negative integer or stdin/stdout/stderr", nil)
	}

	return n, nil
}

type filedescDriver struct {
	fd    int
	ready bool
}

func (d *filedescDriver) Listen() error  { d.ready = true; return nil }
func (d *filedescDriver) Connect() error { d.ready = true; return nil }

func (d *filedescDriver) Accept() (driver, error) {
	return nil, perror.ErrUnsupportedAction
}

func (d *filedescDriver) Listening() bool { return d.ready }
func (d *filedescDriver) Connected() bool { return d.ready }

func (d *filedescDriver) Read(buf []byte) (int, error) {
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *filedescDriver) Write(buf []byte) (int, error) {
	n, err := unix.Write(d.fd, buf)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *filedescDriver) Receive(buf []byte) (int, net.Addr, error) {
	return 0, nil, perror.ErrUnsupportedAction
}

func (d *filedescDriver) Send(buf []byte, to net.Addr) (int, error) {
	return 0, perror.ErrUnsupportedAction
}

func (d *filedescDriver) Peek() (int, error) {
	n, err := unix.IoctlGetInt(d.fd, unix.FIONREAD)
	if err != nil {
		return 0, classifyIOErr(err)
	}

	return n, nil
}

func (d *filedescDriver) Close() error { return perror.ErrUnsupportedAction }

func (d *filedescDriver) ReadHandle() handle.Handle  { return handle.FromFD(d.fd) }
func (d *filedescDriver) WriteHandle() handle.Handle { return handle.FromFD(d.fd) }
