// Package connector implements the uniform endpoint abstraction of
// spec §3/§4.1: a value-typed, shared handle to a polymorphic
// connector-state, covering TCP, UDP, UNIX/abstract-local sockets,
// anonymous pipes, FIFOs, Windows named pipes, adopted file descriptors
// and TUN/TAP devices.
package connector

import (
	"hash/maphash"
	"net"
	"net/url"
	"sync/atomic"

	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/peeraddr"
	"github.com/packetio/packetio/internal/perror"
)

var hashSeed = maphash.MakeSeed()

// state is the shared connector record every Connector copy points to.
// Go has no destructors, so "last drop closes the handle" (spec §3) is
// modeled as "refs reaches zero on the last explicit Close call" rather
// than on GC finalization. Within this module only Accept calls Clone
// (for kinds without a server/client distinction); each clone it returns
// holds its own reference, released by that clone's Close.
type state struct {
	refs int32

	typ  Type
	opts Options
	u    *url.URL
	peer peeraddr.Address
	impl driver
}

// Connector is the public, value-typed handle to an endpoint. It is
// cheap to copy: copies share the underlying state and are safe to use
// concurrently from any goroutine, subject to the OS's own semantics for
// concurrent I/O on one descriptor (spec §5).
type Connector struct {
	s *state
}

// Zero is the default-constructed connector: compares equal to any other
// default-constructed Connector, and every operation on it fails with
// perror.Initialization. Connector defines no ordering.
var Zero = Connector{}

func newConnector(typ Type, opts Options, u *url.URL, peer peeraddr.Address, impl driver) Connector {
	return Connector{s: &state{refs: 1, typ: typ, opts: opts, u: u, peer: peer, impl: impl}}
}

// Clone returns a Connector sharing this one's state with the refcount
// incremented. Used internally by Accept for kinds without a
// server/client distinction, and by the scheduler when it needs to hold
// a Connector beyond the caller's own reference.
func (c Connector) Clone() Connector {
	if c.s != nil {
		atomic.AddInt32(&c.s.refs, 1)
	}

	return c
}

// IsZero reports whether c is the default-constructed sentinel.
func (c Connector) IsZero() bool { return c.s == nil }

// Type returns the connector's (possibly family-narrowed) type.
func (c Connector) Type() Type {
	if c.s == nil {
		return Unspec
	}

	return c.s.typ
}

// Options returns the connector's sanitized option set.
func (c Connector) Options() Options {
	if c.s == nil {
		return Options{}
	}

	return c.s.opts
}

// IsBlocking reports the connector's blocking mode.
func (c Connector) IsBlocking() bool { return c.s != nil && c.s.opts.IsBlocking() }

// URL returns the URL the connector was constructed from.
func (c Connector) URL() *url.URL {
	if c.s == nil {
		return nil
	}

	return c.s.u
}

// PeerAddr returns the connector's peer address.
func (c Connector) PeerAddr() peeraddr.Address {
	if c.s == nil {
		return peeraddr.Address{}
	}

	return c.s.peer
}

func (c Connector) requireInit() error {
	if c.s == nil || c.s.impl == nil {
		return perror.New(perror.Initialization, "connector has no underlying implementation", nil)
	}

	return nil
}

// Listen binds (and, for stream kinds, begins accepting on) the
// connector's endpoint.
func (c Connector) Listen() error {
	if err := c.requireInit(); err != nil {
		return err
	}

	return c.s.impl.Listen()
}

// Connect performs the client-side connect.
func (c Connector) Connect() error {
	if err := c.requireInit(); err != nil {
		return err
	}

	return c.s.impl.Connect()
}

// Accept returns a new connector for an accepted peer. For kinds with no
// server/client distinction (anonymous, datagram UDP, FIFO), it returns
// a connector sharing this one's state instead of delegating to the
// driver (spec §4.1).
func (c Connector) Accept() (Connector, error) {
	if err := c.requireInit(); err != nil {
		return Zero, err
	}

	if !c.s.typ.HasServerClientDistinction() {
		return c.Clone(), nil
	}

	peerDriver, err := c.s.impl.Accept()
	if err != nil {
		return Zero, err
	}

	return Connector{s: &state{refs: 1, typ: c.s.typ, opts: c.s.opts, u: c.s.u, peer: c.s.peer, impl: peerDriver}}, nil
}

// Listening reports whether Listen has completed successfully and not
// yet been undone by Close.
func (c Connector) Listening() bool { return c.s != nil && c.s.impl != nil && c.s.impl.Listening() }

// Connected reports whether Connect has completed successfully.
func (c Connector) Connected() bool { return c.s != nil && c.s.impl != nil && c.s.impl.Connected() }

// Communicating is Connected for stream kinds and Listening for
// datagram kinds (spec §4.1).
func (c Connector) Communicating() bool {
	if c.s == nil || c.s.impl == nil {
		return false
	}

	if c.s.typ.IsStreamKind() {
		return c.s.impl.Connected()
	}

	return c.s.impl.Listening()
}

// Read performs connection-oriented byte I/O.
func (c Connector) Read(buf []byte) (int, error) {
	if err := c.requireInit(); err != nil {
		return 0, err
	}

	return c.s.impl.Read(buf)
}

// Write performs connection-oriented byte I/O. A partial write returns
// the short count with a nil error.
func (c Connector) Write(buf []byte) (int, error) {
	if err := c.requireInit(); err != nil {
		return 0, err
	}

	return c.s.impl.Write(buf)
}

// Receive performs datagram I/O, returning the sender's address.
func (c Connector) Receive(buf []byte) (int, net.Addr, error) {
	if err := c.requireInit(); err != nil {
		return 0, nil, err
	}

	return c.s.impl.Receive(buf)
}

// Send performs datagram I/O to an explicit destination.
func (c Connector) Send(buf []byte, to net.Addr) (int, error) {
	if err := c.requireInit(); err != nil {
		return 0, err
	}

	return c.s.impl.Send(buf, to)
}

// Peek returns the number of bytes available without consuming them.
func (c Connector) Peek() (int, error) {
	if err := c.requireInit(); err != nil {
		return 0, err
	}

	return c.s.impl.Peek()
}

// Close releases the connector's handles once its refcount reaches
// zero, deleting filesystem artifacts the connector owns. Further
// operations after the owning refcount is exhausted fail with
// perror.Initialization.
func (c Connector) Close() error {
	if c.s == nil {
		return nil
	}

	if atomic.AddInt32(&c.s.refs, -1) > 0 {
		return nil
	}

	if c.s.impl == nil {
		return nil
	}

	impl := c.s.impl
	c.s.impl = nil

	return impl.Close()
}

// ReadHandle returns a handle suitable for registering with the I/O
// multiplexor for readability.
func (c Connector) ReadHandle() handle.Handle {
	if c.s == nil || c.s.impl == nil {
		return handle.Invalid
	}

	return c.s.impl.ReadHandle()
}

// WriteHandle returns a handle suitable for registering with the I/O
// multiplexor for writability. May equal ReadHandle.
func (c Connector) WriteHandle() handle.Handle {
	if c.s == nil || c.s.impl == nil {
		return handle.Invalid
	}

	return c.s.impl.WriteHandle()
}

// Equal implements spec invariant 3: two connectors are equal iff their
// types match and their (type, url, read-handle, write-handle) tuples
// are identical. Two separately-dialed TCP clients to the same endpoint
// are therefore unequal, since their handles differ.
func (c Connector) Equal(o Connector) bool {
	if c.s == nil || o.s == nil {
		return c.s == o.s
	}

	if c.s == o.s {
		return true
	}

	return c.s.typ == o.s.typ &&
		urlString(c.s.u) == urlString(o.s.u) &&
		c.ReadHandle().Equal(o.ReadHandle()) &&
		c.WriteHandle().Equal(o.WriteHandle())
}

// Hash combines (type, url, read-handle, write-handle) per spec §3.
func (c Connector) Hash() uint64 {
	if c.s == nil {
		return 0
	}

	var h maphash.Hash

	h.SetSeed(hashSeed)
	_, _ = h.Write([]byte(c.s.typ.String()))
	_, _ = h.Write([]byte(urlString(c.s.u)))

	writeUint64(&h, c.ReadHandle().Hash())
	writeUint64(&h, c.WriteHandle().Hash())

	return h.Sum64()
}

func writeUint64(h *maphash.Hash, v uint64) {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}

	_, _ = h.Write(buf[:])
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}

	return u.String()
}
