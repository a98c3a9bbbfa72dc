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

// pollMux implements Multiplexor over poll(2). The factories construct it
// only when the Poll backend is requested by name.
type pollMux struct {
	mu    sync.Mutex
	byFD  map[int]handle.Handle
	masks map[int]event.Mask
}

func newPoll() (*pollMux, error) {
	return &pollMux{byFD: make(map[int]handle.Handle), masks: make(map[int]event.Mask)}, nil
}

func toPollEvents(m event.Mask) int16 {
	var e int16

	if m.HasAny(event.IORead) {
		e |= unix.POLLIN | unix.POLLPRI
	}

	if m.HasAny(event.IOWrite) {
		e |= unix.POLLOUT
	}

	return e
}

func fromPollEvents(e int16) event.Mask {
	var m event.Mask

	if e&(unix.POLLIN|unix.POLLPRI) != 0 {
		m |= event.IORead
	}

	if e&unix.POLLOUT != 0 {
		m |= event.IOWrite
	}

	if e&unix.POLLHUP != 0 {
		m |= event.IOClose
	}

	if e&(unix.POLLERR|unix.POLLNVAL) != 0 {
		m |= event.IOError
	}

	return m
}

func (m *pollMux) Register(h handle.Handle, mask event.Mask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byFD[h.FD()] = h
	m.masks[h.FD()] = mask

	return nil
}

func (m *pollMux) Unregister(h handle.Handle, mask event.Mask) error {
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

func (m *pollMux) Wait(timeout time.Duration) ([]Event, error) {
	m.mu.Lock()
	fds := make([]unix.PollFd, 0, len(m.masks))
	for fd, mask := range m.masks {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(mask)})
	}
	m.mu.Unlock()

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	n, err := unix.Poll(fds, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}

		return nil, perror.Wrap(perror.Unexpected, err, "poll failed")
	}

	if n == 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)

	m.mu.Lock()
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}

		h, ok := m.byFD[int(pfd.Fd)]
		if !ok {
			continue
		}

		out = append(out, Event{Handle: h, Mask: fromPollEvents(pfd.Revents)})
	}
	m.mu.Unlock()

	return out, nil
}

func (m *pollMux) Close() error { return nil }

func (m *pollMux) Name() string { return "poll" }
