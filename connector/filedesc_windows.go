//go:build windows

package connector

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var filedescPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var filedescDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewFileDesc adopts an existing HANDLE, named by the URL path as its
// decimal value or one of stdin/stdout/stderr (mapped through
// GetStdHandle, since Windows has no small-integer fd namespace). As on
// POSIX, Close refuses to actually close the adopted resource.
func NewFileDesc(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, filedescDefault, filedescPossible)
	if err != nil {
		return Zero, err
	}

	h, err := parseHandle(u.Path)
	if err != nil {
		return Zero, err
	}

	peer := peeraddr.NewPath(FileDesc, u.Path, false)

	return newConnector(FileDesc, sanitized, u, peer, &filedescWinDriver{h: h}), nil
}

func parseHandle(path string) (windows.Handle, error) {
	name := strings.TrimPrefix(path, "/")

	switch strings.ToLower(name) {
	case "stdin":
		h, err := windows.GetStdHandle(windows.STD_INPUT_HANDLE)
		return h, err
	case "stdout":
		h, err := windows.GetStdHandle(windows.STD_OUTPUT_HANDLE)
		return h, err
	case "stderr":
		h, err := windows.GetStdHandle(windows.STD_ERROR_HANDLE)
		return h, err
	}

	n, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, perror.New(perror.Format, "file descriptor path must be a non-negative integer or stdin/stdout/stderr", nil)
	}

	return windows.Handle(n), nil
}

type filedescWinDriver struct {
	h     windows.Handle
	ready bool
}

func (d *filedescWinDriver) Listen() error  { d.ready = true; return nil }
func (d *filedescWinDriver) Connect() error { d.ready = true; return nil }

func (d *filedescWinDriver) Accept() (driver, error) {
	return nil, perror.ErrUnsupportedAction
}

func (d *filedescWinDriver) Listening() bool { return d.ready }
func (d *filedescWinDriver) Connected() bool { return d.ready }

func (d *filedescWinDriver) Read(buf []byte) (int, error) {
	var n uint32

	if err := windows.ReadFile(d.h, buf, &n, nil); err != nil {
		return int(n), classifyNetErr(err)
	}

	return int(n), nil
}

func (d *filedescWinDriver) Write(buf []byte) (int, error) {
	var n uint32

	if err := windows.WriteFile(d.h, buf, &n, nil); err != nil {
		return int(n), classifyNetErr(err)
	}

	return int(n), nil
}

func (d *filedescWinDriver) Receive(buf []byte) (int, net.Addr, error) {
	return 0, nil, perror.ErrUnsupportedAction
}

func (d *filedescWinDriver) Send(buf []byte, to net.Addr) (int, error) {
	return 0, perror.ErrUnsupportedAction
}

func (d *filedescWinDriver) Peek() (int, error) {
	var avail uint32
	if err := windows.PeekNamedPipe(d.h, nil, 0, nil, &avail, nil); err != nil {
		return 0, perror.ErrNotImplemented
	}

	return int(avail), nil
}

func (d *filedescWinDriver) Close() error { return perror.ErrUnsupportedAction }

func (d *filedescWinDriver) ReadHandle() handle.Handle  { return handle.FromFileHandle(d.h, true) }
func (d *filedescWinDriver) WriteHandle() handle.Handle { return handle.FromFileHandle(d.h, true) }
