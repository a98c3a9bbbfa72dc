//go:build windows

package iomux

import (
	"time"

	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/perror"
)

// compositeMux is the Windows Multiplexor of spec §4.3: IOCP owns
// file-like handles (pipes, anonymous pipes) and the WSAPoll backend owns
// sockets. Wait returns the events of one backend per call; it does not
// combine or de-duplicate results across the two.
type compositeMux struct {
	iocp    *iocpMux
	wsapoll *wsapollMux
}

func newComposite() (*compositeMux, error) {
	iocp, err := newIOCP()
	if err != nil {
		return nil, err
	}

	poll, err := newWSAPoll()
	if err != nil {
		return nil, err
	}

	return &compositeMux{iocp: iocp, wsapoll: poll}, nil
}

func (m *compositeMux) Register(h handle.Handle, mask event.Mask) error {
	if _, ok := h.Socket(); ok {
		return m.wsapoll.Register(h, mask)
	}

	if _, ok := h.FileHandle(); ok {
		return m.iocp.Register(h, mask)
	}

	return perror.New(perror.InvalidValue, "handle is neither a socket nor a file handle", nil)
}

func (m *compositeMux) Unregister(h handle.Handle, mask event.Mask) error {
	if _, ok := h.Socket(); ok {
		return m.wsapoll.Unregister(h, mask)
	}

	return m.iocp.Unregister(h, mask)
}

// Wait polls IOCP with a short timeout slice and, only if IOCP reported
// nothing, WSAPoll with the remainder. When IOCP reports events they are
// returned alone and WSAPoll is not polled on that call.
func (m *compositeMux) Wait(timeout time.Duration) ([]Event, error) {
	slice := timeout
	if slice < 0 || slice > 10*time.Millisecond {
		slice = 10 * time.Millisecond
	}

	iocpEvents, err := m.iocp.Wait(slice)
	if err != nil {
		return nil, err
	}

	if len(iocpEvents) > 0 {
		return iocpEvents, nil
	}

	remaining := timeout
	if remaining > 0 {
		remaining -= slice
		if remaining < 0 {
			remaining = 0
		}
	}

	return m.wsapoll.Wait(remaining)
}

func (m *compositeMux) Close() error {
	err1 := m.iocp.Close()
	err2 := m.wsapoll.Close()

	if err1 != nil {
		return err1
	}

	return err2
}

func (m *compositeMux) Name() string { return "composite(iocp+wsapoll)" }
