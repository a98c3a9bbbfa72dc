//go:build darwin || freebsd || netbsd || openbsd

package iomux

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/perror"
)

// kqueueMux implements Multiplexor over kqueue(2), the BSD-family
// backend (spec §4.3's picking order: epoll → kqueue → …). The
// teacher's own kqueue poller extracts an fd from a net.Conn via an
// undefined getFD helper; since handle.Handle already carries the fd
// directly here, that indirection (and its bug) doesn't arise.
type kqueueMux struct {
	kq int

	mu    sync.Mutex
	byFD  map[int]handle.Handle
	masks map[int]event.Mask
}

func newKqueue() (*kqueueMux, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, perror.Wrap(perror.Initialization, err, "kqueue(2) failed")
	}

	return &kqueueMux{kq: kq, byFD: make(map[int]handle.Handle), masks: make(map[int]event.Mask)}, nil
}

func (m *kqueueMux) applyChanges(fd int, old, want event.Mask) error {
	var changes []unix.Kevent_t

	wantRead := want.HasAny(event.IORead)
	hadRead := old.HasAny(event.IORead)

	if wantRead != hadRead {
		flag := uint16(unix.EV_ADD | unix.EV_ENABLE)
		if !wantRead {
			flag = unix.EV_DELETE
		}

		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flag})
	}

	wantWrite := want.HasAny(event.IOWrite)
	hadWrite := old.HasAny(event.IOWrite)

	if wantWrite != hadWrite {
		flag := uint16(unix.EV_ADD | unix.EV_ENABLE)
		if !wantWrite {
			flag = unix.EV_DELETE
		}

		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flag})
	}

	if len(changes) == 0 {
		return nil
	}

	if _, err := unix.Kevent(m.kq, changes, nil, nil); err != nil {
		return perror.Wrap(perror.Unexpected, err, "kevent register failed")
	}

	return nil
}

func (m *kqueueMux) Register(h handle.Handle, mask event.Mask) error {
	fd := h.FD()

	m.mu.Lock()
	old := m.masks[fd]
	m.masks[fd] = mask
	m.byFD[fd] = h
	m.mu.Unlock()

	return m.applyChanges(fd, old, mask)
}

func (m *kqueueMux) Unregister(h handle.Handle, mask event.Mask) error {
	fd := h.FD()

	m.mu.Lock()
	old, ok := m.masks[fd]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	remaining := old
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
	m.mu.Unlock()

	return m.applyChanges(fd, old, remaining)
}

func (m *kqueueMux) Wait(timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec

	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	var raw [128]unix.Kevent_t

	n, err := unix.Kevent(m.kq, nil, raw[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}

		return nil, perror.Wrap(perror.Unexpected, err, "kevent wait failed")
	}

	out := make([]Event, 0, n)

	m.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(raw[i].Ident)

		h, ok := m.byFD[fd]
		if !ok {
			continue
		}

		var mask event.Mask

		switch raw[i].Filter {
		case unix.EVFILT_READ:
			mask |= event.IORead
		case unix.EVFILT_WRITE:
			mask |= event.IOWrite
		}

		if raw[i].Flags&unix.EV_EOF != 0 {
			mask |= event.IOClose
		}

		if raw[i].Flags&unix.EV_ERROR != 0 {
			mask |= event.IOError
		}

		out = append(out, Event{Handle: h, Mask: mask})
	}
	m.mu.Unlock()

	return out, nil
}

func (m *kqueueMux) Close() error {
	if err := unix.Close(m.kq); err != nil {
		return perror.Wrap(perror.FSError, err, "close of kqueue fd failed")
	}

	return nil
}

func (m *kqueueMux) Name() string { return "kqueue" }
