//go:build windows

package iomux

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/perror"
)

// Dynamically linked WSAPoll, the way the teacher's windowsPoller avoids
// depending on an x/sys/windows symbol that may not exist in every
// build (internal/runtime/asyncio/iocp_poller_windows.go).
var (
	ws2_32      = windows.NewLazySystemDLL("ws2_32.dll")
	procWSAPoll = ws2_32.NewProc("WSAPoll")
)

const (
	pollERR    = int16(0x0001)
	pollHUP    = int16(0x0002)
	pollNVAL   = int16(0x0004)
	pollWRNORM = int16(0x0010)
	pollRDNORM = int16(0x0100)
	pollRDBAND = int16(0x0200)
	pollPRI    = int16(0x0400)
)

// wsaPollFD mirrors WSAPOLLFD from winsock2.h.
type wsaPollFD struct {
	Fd      uintptr
	Events  int16
	Revents int16
}

// wsapollMux is the socket half of the Windows composite multiplexor
// (spec §4.3). Wait calls WSAPoll over the registered socket handles on
// the calling goroutine; there is no side thread and no loopback wake-up
// socket, so a registration change made during a Wait takes effect on the
// next Wait. With no sockets registered, Wait sleeps instead of polling.
type wsapollMux struct {
	mu    sync.Mutex
	byKey map[uintptr]handle.Handle
	masks map[uintptr]event.Mask
}

func newWSAPoll() (*wsapollMux, error) {
	return &wsapollMux{byKey: make(map[uintptr]handle.Handle), masks: make(map[uintptr]event.Mask)}, nil
}

func (m *wsapollMux) Register(h handle.Handle, mask event.Mask) error {
	sock, ok := h.Socket()
	if !ok {
		return perror.New(perror.InvalidValue, "wsapoll multiplexor only accepts socket handles", nil)
	}

	key := uintptr(sock)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.byKey[key] = h
	m.masks[key] = mask

	return nil
}

func (m *wsapollMux) Unregister(h handle.Handle, mask event.Mask) error {
	sock, ok := h.Socket()
	if !ok {
		return nil
	}

	key := uintptr(sock)

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.masks[key]
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
		delete(m.masks, key)
		delete(m.byKey, key)
	} else {
		m.masks[key] = remaining
	}

	return nil
}

func (m *wsapollMux) Wait(timeout time.Duration) ([]Event, error) {
	m.mu.Lock()
	fds := make([]wsaPollFD, 0, len(m.masks))
	keys := make([]uintptr, 0, len(m.masks))

	for key, mask := range m.masks {
		var ev int16

		if mask.HasAny(event.IORead) {
			ev |= pollRDNORM | pollPRI
		}

		if mask.HasAny(event.IOWrite) {
			ev |= pollWRNORM
		}

		fds = append(fds, wsaPollFD{Fd: key, Events: ev})
		keys = append(keys, key)
	}
	m.mu.Unlock()

	if len(fds) == 0 {
		time.Sleep(minWait(timeout))
		return nil, nil
	}

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	n, err := wsaPoll(fds, msec)
	if err != nil {
		return nil, perror.Wrap(perror.Unexpected, err, "WSAPoll failed")
	}

	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)

	m.mu.Lock()
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}

		h, ok := m.byKey[keys[i]]
		if !ok {
			continue
		}

		var fired event.Mask

		if pfd.Revents&(pollRDNORM|pollRDBAND|pollPRI) != 0 {
			fired |= event.IORead
		}

		if pfd.Revents&pollWRNORM != 0 {
			fired |= event.IOWrite
		}

		if pfd.Revents&pollHUP != 0 {
			fired |= event.IOClose
		}

		if pfd.Revents&(pollERR|pollNVAL) != 0 {
			fired |= event.IOError
		}

		out = append(out, Event{Handle: h, Mask: fired})
	}
	m.mu.Unlock()

	return out, nil
}

func (m *wsapollMux) Close() error { return nil }

func (m *wsapollMux) Name() string { return "wsapoll" }

func minWait(timeout time.Duration) time.Duration {
	if timeout < 0 || timeout > 20*time.Millisecond {
		return 20 * time.Millisecond
	}

	return timeout
}

func wsaPoll(fds []wsaPollFD, timeoutMs int) (int, error) {
	if len(fds) == 0 {
		return 0, nil
	}

	r1, _, e1 := procWSAPoll.Call(
		uintptr(unsafe.Pointer(&fds[0])),
		uintptr(uint32(len(fds))),
		uintptr(int32(timeoutMs)),
	)

	n := int(int32(r1))
	if n == -1 {
		return -1, e1
	}

	return n, nil
}
