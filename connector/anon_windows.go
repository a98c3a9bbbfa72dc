//go:build windows

package connector

import (
	"net"
	"net/url"
	"time"

	"github.com/Microsoft/go-winio"
	"github.com/google/uuid"

	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var anonPossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var anonDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

// NewAnon constructs a Windows anonymous connector: a uniquely-named
// pipe whose server end is write-only and client end read-only (spec
// §4.1, §6's naming scheme \\.\pipe\<prefix>.<pid-hex>.<counter-hex>,
// here rendered with a uuid suffix since Go has no process-wide atomic
// counter convention the teacher already exposes).
func NewAnon(u *url.URL, opts Options) (Connector, error) {
	sanitized, err := Sanitize(opts, anonDefault, anonPossible)
	if err != nil {
		return Zero, err
	}

	path := `\\.\pipe\packeteer-anonymous.` + uuid.NewString()
	peer := peeraddr.NewPath(Anon, path, false)

	return newConnector(Anon, sanitized, u, peer, &anonWinDriver{
		path:     path,
		blocking: sanitized.IsBlocking(),
	}), nil
}

// anonWinDriver pairs the server (write) and client (read) ends of one
// named pipe instance, mirroring the POSIX anonDriver's (readFD, writeFD)
// pair.
type anonWinDriver struct {
	path      string
	blocking  bool
	listener  net.Listener
	writeConn net.Conn
	readConn  net.Conn
	ready     bool
}

func (d *anonWinDriver) Listen() error {
	l, err := winio.ListenPipe(d.path, &winio.PipeConfig{InputBufferSize: 4096, OutputBufferSize: 4096})
	if err != nil {
		return perror.Wrap(perror.Initialization, err, "anonymous pipe creation failed")
	}

	write, err := l.Accept()
	if err != nil {
		_ = l.Close()
		return perror.Wrap(perror.Initialization, err, "anonymous pipe server accept failed")
	}

	timeout := 5 * time.Second

	read, err := winio.DialPipe(d.path, &timeout)
	if err != nil {
		_ = write.Close()
		_ = l.Close()
		return perror.Wrap(perror.Initialization, err, "anonymous pipe client dial failed")
	}

	d.listener = l
	d.writeConn = write
	d.readConn = read
	d.ready = true

	return nil
}

func (d *anonWinDriver) Connect() error { return d.Listen() }

func (d *anonWinDriver) Accept() (driver, error) {
	return nil, perror.ErrUnsupportedAction
}

func (d *anonWinDriver) Listening() bool { return d.ready }
func (d *anonWinDriver) Connected() bool { return d.ready }

func (d *anonWinDriver) Read(buf []byte) (int, error) {
	if !d.blocking {
		_ = d.readConn.SetReadDeadline(time.Now())
	} else {
		_ = d.readConn.SetReadDeadline(time.Time{})
	}

	n, err := d.readConn.Read(buf)
	if err != nil {
		return n, classifyNetErr(err)
	}

	return n, nil
}

func (d *anonWinDriver) Write(buf []byte) (int, error) {
	if !d.blocking {
		_ = d.writeConn.SetWriteDeadline(time.Now())
	} else {
		_ = d.writeConn.SetWriteDeadline(time.Time{})
	}

	n, err := d.writeConn.Write(buf)
	if err != nil {
		return n, classifyNetErr(err)
	}

	return n, nil
}

func (d *anonWinDriver) Receive(buf []byte) (int, net.Addr, error) {
	return 0, nil, perror.ErrUnsupportedAction
}

func (d *anonWinDriver) Send(buf []byte, to net.Addr) (int, error) {
	return 0, perror.ErrUnsupportedAction
}

func (d *anonWinDriver) Peek() (int, error) {
	return 0, perror.ErrNotImplemented
}

func (d *anonWinDriver) Close() error {
	var err error

	if d.readConn != nil {
		err = d.readConn.Close()
	}

	if d.writeConn != nil {
		if e := d.writeConn.Close(); e != nil {
			err = e
		}
	}

	if d.listener != nil {
		_ = d.listener.Close()
	}

	if err != nil {
		return perror.Wrap(perror.FSError, err, "close failed")
	}

	return nil
}

func (d *anonWinDriver) ReadHandle() handle.Handle {
	return netConnHandle(&netDriver{conn: d.readConn, blocking: d.blocking})
}

func (d *anonWinDriver) WriteHandle() handle.Handle {
	return netConnHandle(&netDriver{conn: d.writeConn, blocking: d.blocking})
}
