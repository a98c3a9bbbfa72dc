//go:build windows

package connector

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/windows"

	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/perror"
)

// netDriver adapts a net.Conn/net.Listener pair to the driver interface
// on Windows. Raw IOCP-managed sockets (the teacher's approach) exist at
// the multiplexor layer (internal/iomux); the connector layer itself
// rides net.Conn the way the teacher's higher-level client code does,
// using SetDeadline(time.Now()) as the non-blocking "would it block"
// probe in place of a raw EAGAIN check (spec §4.1's Async contract).
type netDriver struct {
	conn       net.Conn
	listener   net.Listener
	packetConn net.PacketConn
	blocking   bool
	listening  bool
	connected  bool
}

func (d *netDriver) Listen() error {
	d.listening = true
	return nil
}

func (d *netDriver) Connect() error {
	d.connected = true
	return nil
}

func (d *netDriver) Accept() (driver, error) {
	if d.listener == nil {
		return nil, perror.ErrUnsupportedAction
	}

	if !d.blocking {
		if tl, ok := d.listener.(interface{ SetDeadline(time.Time) error }); ok {
			_ = tl.SetDeadline(time.Now())
		}
	}

	c, err := d.listener.Accept()
	if err != nil {
		return nil, classifyNetErr(err)
	}

	return &netDriver{conn: c, blocking: d.blocking, connected: true}, nil
}

func (d *netDriver) Listening() bool { return d.listening }
func (d *netDriver) Connected() bool { return d.connected }

func (d *netDriver) Read(buf []byte) (int, error) {
	if !d.blocking {
		_ = d.conn.SetReadDeadline(time.Now())
	} else {
		_ = d.conn.SetReadDeadline(time.Time{})
	}

	n, err := d.conn.Read(buf)
	if err != nil {
		return n, classifyNetErr(err)
	}

	return n, nil
}

func (d *netDriver) Write(buf []byte) (int, error) {
	if !d.blocking {
		_ = d.conn.SetWriteDeadline(time.Now())
	} else {
		_ = d.conn.SetWriteDeadline(time.Time{})
	}

	n, err := d.conn.Write(buf)
	if err != nil {
		return n, classifyNetErr(err)
	}

	return n, nil
}

func (d *netDriver) Receive(buf []byte) (int, net.Addr, error) {
	if d.packetConn == nil {
		return 0, nil, perror.ErrUnsupportedAction
	}

	if !d.blocking {
		_ = d.packetConn.SetReadDeadline(time.Now())
	} else {
		_ = d.packetConn.SetReadDeadline(time.Time{})
	}

	n, addr, err := d.packetConn.ReadFrom(buf)
	if err != nil {
		return n, addr, classifyNetErr(err)
	}

	return n, addr, nil
}

func (d *netDriver) Send(buf []byte, to net.Addr) (int, error) {
	if d.packetConn == nil {
		return 0, perror.ErrUnsupportedAction
	}

	n, err := d.packetConn.WriteTo(buf, to)
	if err != nil {
		return n, classifyNetErr(err)
	}

	return n, nil
}

func (d *netDriver) Peek() (int, error) {
	return 0, perror.ErrNotImplemented
}

func (d *netDriver) Close() error {
	var err error

	if d.conn != nil {
		err = d.conn.Close()
	}

	if d.listener != nil {
		err = d.listener.Close()
	}

	if d.packetConn != nil {
		err = d.packetConn.Close()
	}

	if err != nil {
		return perror.Wrap(perror.FSError, err, "close failed")
	}

	return nil
}

func (d *netDriver) ReadHandle() handle.Handle  { return netConnHandle(d) }
func (d *netDriver) WriteHandle() handle.Handle { return netConnHandle(d) }

// netConnHandle extracts the underlying SOCKET/HANDLE from a net.Conn for
// multiplexor registration. The returned Handle does not own the
// resource's lifecycle (the net.Conn/net.Listener does, via Close); it
// exists only so internal/iomux can identify and wait on the descriptor.
func netConnHandle(d *netDriver) handle.Handle {
	sc, _ := connSyscallConn(d)
	if sc == nil {
		return handle.Invalid
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return handle.Invalid
	}

	var fd uintptr

	_ = rc.Control(func(h uintptr) { fd = h })

	if fd == 0 {
		return handle.Invalid
	}

	return handle.FromSocket(windows.Handle(fd), d.blocking)
}

func connSyscallConn(d *netDriver) (syscall.Conn, bool) {
	if d.conn != nil {
		if sc, ok := d.conn.(syscall.Conn); ok {
			return sc, true
		}
	}

	if d.packetConn != nil {
		if sc, ok := d.packetConn.(syscall.Conn); ok {
			return sc, true
		}
	}

	return nil, false
}

// classifyNetErr maps net.Error timeout/temporary conditions onto the
// Async contract and everything else onto Unexpected, mirroring
// classifyIOErr's POSIX errno mapping.
func classifyNetErr(err error) error {
	if err == nil {
		return nil
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return perror.ErrAsync
	}

	return perror.Wrap(perror.Unexpected, err, "network operation failed")
}
