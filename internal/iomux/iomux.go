// Package iomux implements the platform-abstract I/O multiplexor of
// spec §4.3: register/unregister interest in a handle's readiness bits,
// wait for a batch of fired events. Each OS primitive (epoll, kqueue,
// poll, select, IOCP) gets its own file; for Automatic, the per-platform
// factory_linux.go, factory_bsd.go and factory_windows.go pick the
// native backend (epoll on Linux, kqueue on the BSDs and macOS, the
// IOCP+WSAPoll composite on Windows). poll and select are used only when
// requested by name, and no other backend is tried when the native one
// fails to start. Grounded on the teacher's internal/runtime/asyncio
// poller_factory files (poller_factory_unix.go / poller_factory_windows.go).
package iomux

import (
	"time"

	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
)

// Event pairs a fired handle with the event bits that fired on it. A
// single Wait call may report the same handle more than once (spec
// §4.3's fan-out invariant); callers merge bits per handle themselves.
type Event struct {
	Handle handle.Handle
	Mask   event.Mask
}

// Multiplexor is the platform-abstract readiness layer.
type Multiplexor interface {
	// Register sets h's readiness interest to the bits in mask, replacing
	// any mask registered for h earlier; it does not add to that mask.
	Register(h handle.Handle, mask event.Mask) error
	// Unregister subtracts interest; a zero mask removes h entirely.
	Unregister(h handle.Handle, mask event.Mask) error
	// Wait blocks up to timeout and returns fired events. A timeout of
	// zero polls without blocking; a negative timeout blocks forever.
	Wait(timeout time.Duration) ([]Event, error)
	// Close releases the multiplexor's own OS resources (epoll/kqueue
	// fd, IOCP handle). Registered handles are not closed.
	Close() error
	// Name identifies the backend for diagnostics ("epoll", "kqueue", …).
	Name() string
}
