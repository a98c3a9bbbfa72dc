//go:build !windows

package iomux

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/perror"
)

// selectMux implements Multiplexor over select(2). The factories
// construct it only when the Select backend is requested by name.
// FD_SETSIZE bounds the descriptor range it can watch, same as the C
// original.
type selectMux struct {
	mu    sync.Mutex
	byFD  map[int]handle.Handle
	masks map[int]event.Mask
}

func newSelect() (*selectMux, error) {
	return &selectMux{byFD: make(map[int]handle.Handle), masks: make(map[int]event.Mask)}, nil
}

func (m *selectMux) Register(h handle.Handle, mask event.Mask) error {
	if h.FD() >= unix.FD_SETSIZE {
		return perror.New(perror.NumFiles, "descriptor exceeds FD_SETSIZE for the select backend", map[string]any{"fd": h.FD()})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.byFD[h.FD()] = h
	m.masks[h.FD()] = mask

	return nil
}

func (m *selectMux) Unregister(h handle.Handle, mask event.Mask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fd := h.FD()

	cur, ok := m.masks[fd]
	if !ok {
		return nil
	}

	remaining := cur
	if mask == 0 {
		remaining = 0
	} else {
		remaining &^= mask
	}

	if remaining == 0 {
		delete(m.masks, fd)
		delete(m.byFD, fd)
	} else {
		m.masks[fd] = remaining
	}

	return nil
}

func (m *selectMux) Wait(timeout time.Duration) ([]Event, error) {
	m.mu.Lock()
	var readSet, writeSet, errSet unix.FdSet

	maxFD := -1

	for fd, mask := range m.masks {
		if mask.HasAny(event.IORead) {
			fdSet(&readSet, fd)
		}

		if mask.HasAny(event.IOWrite) {
			fdSet(&writeSet, fd)
		}

		fdSet(&errSet, fd)

		if fd > maxFD {
			maxFD = fd
		}
	}
	m.mu.Unlock()

	var tv *unix.Timeval

	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	n, err := unix.Select(maxFD+1, &readSet, &writeSet, &errSet, tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}

		return nil, perror.Wrap(perror.Unexpected, err, "select failed")
	}

	if n == 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)

	m.mu.Lock()
	for fd, h := range m.byFD {
		var fired event.Mask

		if fdIsSet(&readSet, fd) {
			fired |= event.IORead
		}

		if fdIsSet(&writeSet, fd) {
			fired |= event.IOWrite
		}

		if fdIsSet(&errSet, fd) {
			fired |= event.IOError
		}

		if fired != 0 {
			out = append(out, Event{Handle: h, Mask: fired})
		}
	}
	m.mu.Unlock()

	return out, nil
}

func (m *selectMux) Close() error { return nil }

func (m *selectMux) Name() string { return "select" }

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
