package connector

import (
	"net"

	"github.com/packetio/packetio/internal/handle"
)

// driver is the polymorphic contract each (kind × platform) connector
// variant implements. Connector dispatches every public operation to the
// driver behind its shared state, playing the role the source's virtual
// connector_interface plays in C++ (spec §9: "virtual dispatch over
// connector kinds" → a capability trait with one variant per kind).
type driver interface {
	Listen() error
	Connect() error

	// Accept returns a new driver for the accepted peer. Drivers whose
	// Type has no server/client distinction (see Type.HasServerClientDistinction)
	// are never asked to Accept; Connector.Accept short-circuits to
	// returning a connector sharing the same state instead.
	Accept() (driver, error)

	Listening() bool
	Connected() bool

	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)

	Receive(buf []byte) (int, net.Addr, error)
	Send(buf []byte, to net.Addr) (int, error)

	// Peek returns the number of bytes available to read without
	// consuming them. 0 means "no data", not an error.
	Peek() (int, error)

	Close() error

	ReadHandle() handle.Handle
	WriteHandle() handle.Handle
}
