//go:build windows

package iomux

import (
	"sync"
	"time"

	"golang.org/x/sys/windows"

	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
	"github.com/packetio/packetio/internal/perror"
)

// iocpMux is the file-handle half of the Windows composite multiplexor
// (spec §4.3): named pipes and anonymous pipes are associated with an
// I/O completion port; readiness is synthesized from completed
// zero-byte reads (spec §4.2/§4.3's "zero-byte read probe").
type iocpMux struct {
	port windows.Handle

	mu    sync.Mutex
	byKey map[windows.Handle]handle.Handle
	masks map[windows.Handle]event.Mask
	probe map[windows.Handle]*overlappedProbe
}

// overlappedProbe is a pending zero-byte read issued solely to obtain a
// completion when bytes become available (spec glossary: "zero-byte
// read probe").
type overlappedProbe struct {
	ov  windows.Overlapped
	buf [0]byte
}

func newIOCP() (*iocpMux, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, perror.Wrap(perror.Initialization, err, "CreateIoCompletionPort failed")
	}

	return &iocpMux{
		port:  port,
		byKey: make(map[windows.Handle]handle.Handle),
		masks: make(map[windows.Handle]event.Mask),
		probe: make(map[windows.Handle]*overlappedProbe),
	}, nil
}

func (m *iocpMux) Register(h handle.Handle, mask event.Mask) error {
	fh, ok := h.FileHandle()
	if !ok {
		return perror.New(perror.InvalidValue, "iocp multiplexor only accepts file/pipe handles", nil)
	}

	m.mu.Lock()
	_, already := m.masks[fh]
	m.masks[fh] = mask
	m.byKey[fh] = h
	m.mu.Unlock()

	if !already {
		if _, err := windows.CreateIoCompletionPort(fh, m.port, uintptr(fh), 0); err != nil {
			return perror.Wrap(perror.Unexpected, err, "associating handle with IOCP failed")
		}
	}

	if mask.HasAny(event.IORead) {
		m.ensureProbe(fh)
	}

	return nil
}

func (m *iocpMux) Unregister(h handle.Handle, mask event.Mask) error {
	fh, ok := h.FileHandle()
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.masks[fh]
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
		delete(m.masks, fh)
		delete(m.byKey, fh)

		if p, ok := m.probe[fh]; ok {
			_ = windows.CancelIoEx(fh, &p.ov)
			delete(m.probe, fh)
		}
	} else {
		m.masks[fh] = remaining
	}

	return nil
}

// ensureProbe issues a zero-byte overlapped read if one isn't already
// pending, so IOCP has something to complete when bytes arrive. Must be
// called with m.mu held.
func (m *iocpMux) ensureProbe(fh windows.Handle) {
	if _, pending := m.probe[fh]; pending {
		return
	}

	p := &overlappedProbe{}
	m.probe[fh] = p

	var n uint32

	err := windows.ReadFile(fh, p.buf[:], &n, &p.ov)
	if err != nil && err != windows.ERROR_IO_PENDING {
		delete(m.probe, fh)
	}
}

func (m *iocpMux) Wait(timeout time.Duration) ([]Event, error) {
	msec := uint32(windows.INFINITE)
	if timeout >= 0 {
		msec = uint32(timeout / time.Millisecond)
	}

	var n uint32

	var key uintptr

	var ov *windows.Overlapped

	err := windows.GetQueuedCompletionStatus(m.port, &n, &key, &ov, msec)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return nil, nil
		}

		return nil, perror.Wrap(perror.Unexpected, err, "GetQueuedCompletionStatus failed")
	}

	if ov == nil {
		return nil, nil
	}

	fh := windows.Handle(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.byKey[fh]
	if !ok {
		return nil, nil
	}

	delete(m.probe, fh)

	out := []Event{{Handle: h, Mask: event.IORead}}

	if mask := m.masks[fh]; mask.HasAny(event.IOWrite) {
		out[0].Mask |= event.IOWrite
	}

	return out, nil
}

func (m *iocpMux) Close() error {
	if err := windows.CloseHandle(m.port); err != nil {
		return perror.Wrap(perror.FSError, err, "closing IOCP handle failed")
	}

	return nil
}

func (m *iocpMux) Name() string { return "iocp" }
