//go:build windows

package handle

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

// kind discriminates which OS primitive a Windows handle wraps.
type kind int

const (
	kindNone kind = iota
	kindFile
	kindSocket
)

// state is the shared, reference-counted record a Handle points to.
// Copies of a Handle share the same state (and therefore the same OS
// resource); the resource is released when the refcount drops to zero.
type state struct {
	refs     int32
	kind     kind
	file     windows.Handle
	sock     windows.Handle
	blocking bool
}

// Handle is a Windows resource handle: either a file/pipe HANDLE or a
// SOCKET, reference-counted so that copies share the underlying
// resource. Equality is pointer identity of the shared state, matching
// spec's "copies refer to the same OS resource" rule.
type Handle struct {
	s *state
}

// Invalid is the default-constructed sentinel: no shared state.
var Invalid = Handle{}

// FromFileHandle wraps a file/pipe HANDLE with an initial refcount of 1.
func FromFileHandle(h windows.Handle, blocking bool) Handle {
	return Handle{s: &state{refs: 1, kind: kindFile, file: h, blocking: blocking}}
}

// FromSocket wraps a SOCKET with an initial refcount of 1.
func FromSocket(s windows.Handle, blocking bool) Handle {
	return Handle{s: &state{refs: 1, kind: kindSocket, sock: s, blocking: blocking}}
}

// Valid reports whether h refers to shared state (not the sentinel).
func (h Handle) Valid() bool { return h.s != nil }

// Equal implements pointer-identity equality of the shared state.
func (h Handle) Equal(o Handle) bool { return h.s == o.s }

// Hash returns a hash suitable for map keys, derived from the state
// pointer's identity.
func (h Handle) Hash() uint64 {
	if h.s == nil {
		return 0
	}

	return uint64(uintptr(unsafe.Pointer(h.s)))
}

// Retain increments the shared refcount; call once per Handle copy that
// the caller intends to Release independently.
func (h Handle) Retain() Handle {
	if h.s != nil {
		atomic.AddInt32(&h.s.refs, 1)
	}

	return h
}

// Release decrements the shared refcount and closes the underlying OS
// resource when it reaches zero, returning true iff this call closed it.
func (h Handle) Release() bool {
	if h.s == nil {
		return false
	}

	if atomic.AddInt32(&h.s.refs, -1) > 0 {
		return false
	}

	switch h.s.kind {
	case kindFile:
		_ = windows.CloseHandle(h.s.file)
	case kindSocket:
		_ = windows.Closesocket(h.s.sock)
	}

	return true
}

// IsBlocking reports the blocking flag recorded at construction.
func (h Handle) IsBlocking() bool { return h.s != nil && h.s.blocking }

// FileHandle returns the wrapped file/pipe HANDLE, if any.
func (h Handle) FileHandle() (windows.Handle, bool) {
	if h.s == nil || h.s.kind != kindFile {
		return 0, false
	}

	return h.s.file, true
}

// Socket returns the wrapped SOCKET, if any.
func (h Handle) Socket() (windows.Handle, bool) {
	if h.s == nil || h.s.kind != kindSocket {
		return 0, false
	}

	return h.s.sock, true
}

func (h Handle) String() string {
	if h.s == nil {
		return "handle(invalid)"
	}

	return "handle(win32)"
}
