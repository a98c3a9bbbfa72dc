package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/packetio/packetio/connector"
	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/iomux"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()

	s, err := New(iomux.Automatic, WithSoftTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

// TestScheduler_ScheduledOrdering matches the scheduled-callback ordering
// scenario: three one-shot callbacks at 1ms, 2ms, 3ms fire in that order.
func TestScheduler_ScheduledOrdering(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	var fired []int
	done := make(chan struct{})

	mk := func(tag int) Callback {
		return func(_ time.Time, _ event.Mask, _ error, _ connector.Connector, _ any) error {
			mu.Lock()
			fired = append(fired, tag)
			n := len(fired)
			mu.Unlock()

			if n == 3 {
				close(done)
			}

			return nil
		}
	}

	now := time.Now()
	s.ScheduleAt(now.Add(3*time.Millisecond), mk(3), nil)
	s.ScheduleAt(now.Add(1*time.Millisecond), mk(1), nil)
	s.ScheduleAt(now.Add(2*time.Millisecond), mk(2), nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled callbacks did not all fire")
	}

	mu.Lock()
	defer mu.Unlock()

	want := []int{1, 2, 3}
	for i, w := range want {
		if fired[i] != w {
			t.Fatalf("fired order = %v, want %v", fired, want)
		}
	}
}

// TestScheduler_UserEvents matches the user-event scenario: callback A is
// registered for U1, callback B for U1|U2. FireEvents(U2) should invoke
// only B; FireEvents(U1) should invoke both.
func TestScheduler_UserEvents(t *testing.T) {
	s := newTestScheduler(t)

	const u1 = event.UserBase
	const u2 = event.UserBase << 1

	var mu sync.Mutex
	var aCount, bCount int

	s.RegisterEvent(u1, func(_ time.Time, _ event.Mask, _ error, _ connector.Connector, _ any) error {
		mu.Lock()
		aCount++
		mu.Unlock()

		return nil
	}, nil)
	s.RegisterEvent(u1|u2, func(_ time.Time, _ event.Mask, _ error, _ connector.Connector, _ any) error {
		mu.Lock()
		bCount++
		mu.Unlock()

		return nil
	}, nil)

	if err := s.FireEvents(u2); err != nil {
		t.Fatalf("FireEvents(u2): %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	if aCount != 0 || bCount != 1 {
		t.Fatalf("after FireEvents(u2): aCount=%d bCount=%d, want 0,1", aCount, bCount)
	}
	mu.Unlock()

	if err := s.FireEvents(u1); err != nil {
		t.Fatalf("FireEvents(u1): %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if aCount != 1 || bCount != 2 {
		t.Fatalf("after FireEvents(u1): aCount=%d bCount=%d, want 1,2", aCount, bCount)
	}
}

// TestScheduler_FireEvents_RejectsNonUserMask matches spec's validation
// requirement: a mask with no user bit is rejected outright.
func TestScheduler_FireEvents_RejectsNonUserMask(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.FireEvents(event.IORead); err == nil {
		t.Fatal("FireEvents with no user bit should be rejected")
	}
}

// TestScheduler_IORegistration exercises RegisterConnector/UnregisterConnector
// end to end against a real anonymous pipe: writing a byte wakes the
// registered read callback, and the callback observes the connector and
// baton it was registered with.
func TestScheduler_IORegistration(t *testing.T) {
	s := newTestScheduler(t)

	c, err := connector.NewAnon(nil, connector.Options{Blocking: connector.BlockModeNonBlocking})
	if err != nil {
		t.Fatalf("NewAnon: %v", err)
	}
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	baton := "marker"
	fired := make(chan struct{}, 1)
	id := s.RegisterConnector(event.IORead, c, func(_ time.Time, _ event.Mask, _ error, conn connector.Connector, b any) error {
		if conn.IsZero() {
			t.Error("callback received a zero connector, want the registered one")
		}
		if b != baton {
			t.Errorf("callback baton = %v, want %v", b, baton)
		}

		select {
		case fired <- struct{}{}:
		default:
		}

		return nil
	}, baton)

	if _, err := c.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("registered read callback never fired")
	}

	s.UnregisterConnector(id, 0)
}
