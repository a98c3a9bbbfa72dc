//go:build !windows

package iomux

import (
	"os"
	"testing"
	"time"

	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
)

// TestPollMux_RegisterWaitUnregister exercises spec invariant 1 (the
// multiplexor reports only event bits from the registered set for a
// handle) and the register/unregister round-trip property directly
// against the poll(2) backend, without going through the scheduler.
func TestPollMux_RegisterWaitUnregister(t *testing.T) {
	m, err := newPoll()
	if err != nil {
		t.Fatalf("newPoll: %v", err)
	}
	defer m.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	h := handle.FromFD(int(r.Fd()))

	// Before any data arrives, a short wait reports nothing.
	events, err := m.Wait(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait (idle): %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("Wait (idle) = %+v, want none", events)
	}

	if err := m.Register(h, event.IORead); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	events, err = m.Wait(time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 1 || !events[0].Handle.Equal(h) {
		t.Fatalf("Wait = %+v, want exactly one event on %v", events, h)
	}
	if !events[0].Mask.HasAny(event.IORead) {
		t.Fatalf("Wait mask = %v, want IORead set", events[0].Mask)
	}
	if events[0].Mask.HasAny(event.IOWrite) {
		t.Fatalf("Wait mask = %v, registered interest was IORead only", events[0].Mask)
	}

	// Drain so the descriptor is no longer readable, then unregister and
	// confirm the handle no longer reports even if made readable again.
	buf := make([]byte, 1)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("drain read: %v", err)
	}

	if err := m.Unregister(h, 0); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	if _, err := w.Write([]byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	events, err = m.Wait(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait (after unregister): %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("Wait (after unregister) = %+v, want none", events)
	}
}
