//go:build !windows

// Package handle wraps the OS resource underlying a connector: a plain
// file descriptor on POSIX, a reference-counted record holding a
// HANDLE or SOCKET and a blocking flag on Windows (see
// handle_windows.go); no overlapped context is attached to it.
package handle

// Handle is a POSIX file descriptor with a sentinel "invalid" value.
// Equality and hashing are plain integer equality/hashing: copies of a
// Handle refer to the same descriptor, and the descriptor's lifetime is
// managed externally (by the connector that owns it), not by Handle
// itself.
type Handle struct {
	fd int
}

// Invalid is the default-constructed, not-a-resource sentinel.
var Invalid = Handle{fd: -1}

// FromFD wraps an existing descriptor.
func FromFD(fd int) Handle { return Handle{fd: fd} }

// FD returns the wrapped descriptor, or -1 if Valid() is false.
func (h Handle) FD() int { return h.fd }

// Valid reports whether h refers to a living resource candidate (it does
// not probe the OS; it only checks against the sentinel).
func (h Handle) Valid() bool { return h.fd >= 0 }

// Equal implements spec invariant 3's handle-equality rule: integer
// equality.
func (h Handle) Equal(o Handle) bool { return h.fd == o.fd }

// Hash returns an integer hash suitable for map keys.
func (h Handle) Hash() uint64 { return uint64(uint32(h.fd)) }

func (h Handle) String() string {
	if !h.Valid() {
		return "handle(invalid)"
	}

	return "handle(" + itoa(h.fd) + ")"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var buf [20]byte

	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}
