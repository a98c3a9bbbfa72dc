package containers

import (
	"testing"
	"time"

	"github.com/packetio/packetio/connector"
	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
)

func noopCallback(time.Time, event.Mask, error, connector.Connector, any) error { return nil }

func TestIOContainer_AddMatchRemove(t *testing.T) {
	c := NewIOContainer()
	h := handle.FromFD(7)

	c.Add(&IOEntry{ID: 1, Handle: h, Mask: event.IORead, Callback: noopCallback})
	c.Add(&IOEntry{ID: 2, Handle: h, Mask: event.IOWrite, Callback: noopCallback})

	if got := c.MatchingMask(h); got != event.IORead|event.IOWrite {
		t.Fatalf("MatchingMask = %v, want %v", got, event.IORead|event.IOWrite)
	}

	matched := c.Match(h, event.IORead)
	if len(matched) != 1 || matched[0].ID != 1 {
		t.Fatalf("Match(IORead) = %+v, want just entry 1", matched)
	}

	c.Remove(1, 0)

	if got := c.MatchingMask(h); got != event.IOWrite {
		t.Fatalf("MatchingMask after remove = %v, want %v", got, event.IOWrite)
	}

	c.Remove(2, 0)

	if got := c.MatchingMask(h); got != 0 {
		t.Fatalf("MatchingMask after removing all = %v, want 0", got)
	}
}

func TestIOContainer_RemovePartialMaskSurvives(t *testing.T) {
	c := NewIOContainer()
	h := handle.FromFD(9)

	c.Add(&IOEntry{ID: 1, Handle: h, Mask: event.IORead | event.IOWrite, Callback: noopCallback})

	c.Remove(1, event.IOWrite)

	matched := c.Match(h, event.IORead)
	if len(matched) != 1 {
		t.Fatalf("entry should survive a partial unregister, got %d matches", len(matched))
	}

	c.Remove(1, event.IORead)

	if matched := c.Match(h, event.IORead|event.IOWrite); len(matched) != 0 {
		t.Fatalf("entry should be gone once its whole mask is subtracted, got %+v", matched)
	}
}

func TestScheduledContainer_OrdersByDeadline(t *testing.T) {
	c := NewScheduledContainer()
	base := time.Now()

	var fired []int

	mk := func(tag int, at time.Time) *ScheduledEntry {
		return &ScheduledEntry{
			ID: ID(tag), Deadline: at, Interval: 0, Count: 1,
			Callback: func(time.Time, event.Mask, error, connector.Connector, any) error {
				fired = append(fired, tag)
				return nil
			},
		}
	}

	c.Add(mk(3, base.Add(3*time.Millisecond)))
	c.Add(mk(1, base.Add(1*time.Millisecond)))
	c.Add(mk(2, base.Add(2*time.Millisecond)))

	expired := c.DrainExpired(base.Add(5 * time.Millisecond))
	if len(expired) != 3 {
		t.Fatalf("DrainExpired returned %d entries, want 3", len(expired))
	}

	for _, e := range expired {
		_ = e.Callback(base, 0, nil, connector.Zero, nil)
	}

	want := []int{1, 2, 3}
	for i, w := range want {
		if fired[i] != w {
			t.Fatalf("fired order = %v, want %v", fired, want)
		}
	}
}

func TestScheduledContainer_PeriodicReinsertsAndDecrements(t *testing.T) {
	c := NewScheduledContainer()
	base := time.Now()

	e := &ScheduledEntry{
		ID: 1, Deadline: base, Interval: time.Millisecond, Count: 2,
		Callback: noopCallback,
	}
	c.Add(e)

	first := c.DrainExpired(base)
	if len(first) != 1 {
		t.Fatalf("first drain returned %d entries, want 1", len(first))
	}

	deadline, ok := c.NextDeadline()
	if !ok {
		t.Fatal("periodic entry with remaining count should be rescheduled")
	}

	if !deadline.Equal(base.Add(time.Millisecond)) {
		t.Fatalf("rescheduled deadline = %v, want %v", deadline, base.Add(time.Millisecond))
	}

	second := c.DrainExpired(base.Add(time.Millisecond))
	if len(second) != 1 {
		t.Fatalf("second drain returned %d entries, want 1", len(second))
	}

	if _, ok := c.NextDeadline(); ok {
		t.Fatal("entry with count exhausted should not be rescheduled")
	}
}

func TestScheduledContainer_UnboundedNeverExhausts(t *testing.T) {
	c := NewScheduledContainer()
	base := time.Now()

	c.Add(&ScheduledEntry{ID: 1, Deadline: base, Interval: time.Millisecond, Count: -1, Callback: noopCallback})

	for i := 0; i < 5; i++ {
		fired := c.DrainExpired(base.Add(time.Duration(i) * time.Millisecond))
		if len(fired) != 1 {
			t.Fatalf("round %d: drained %d entries, want 1", i, len(fired))
		}
	}

	if _, ok := c.NextDeadline(); !ok {
		t.Fatal("unbounded entry should always be rescheduled")
	}
}

func TestScheduledContainer_Remove(t *testing.T) {
	c := NewScheduledContainer()
	base := time.Now()

	c.Add(&ScheduledEntry{ID: 1, Deadline: base, Count: 1, Callback: noopCallback})
	c.Remove(1)

	if fired := c.DrainExpired(base); len(fired) != 0 {
		t.Fatalf("removed entry still fired: %+v", fired)
	}
}

func TestUserContainer_AddMatchRemove(t *testing.T) {
	c := NewUserContainer()

	const u1 = event.UserBase
	const u2 = event.UserBase << 1

	c.Add(&UserEntry{ID: 1, Mask: u1, Callback: noopCallback})
	c.Add(&UserEntry{ID: 2, Mask: u1 | u2, Callback: noopCallback})

	if got := c.Match(u2); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("Match(u2) = %+v, want just entry 2", got)
	}

	if got := c.Match(u1); len(got) != 2 {
		t.Fatalf("Match(u1) = %+v, want both entries", got)
	}

	c.Remove(2, u2)

	if got := c.Match(u2); len(got) != 0 {
		t.Fatalf("Match(u2) after partial remove = %+v, want none", got)
	}

	if got := c.Match(u1); len(got) != 2 {
		t.Fatalf("entry 2 should still answer u1 after only u2 was removed: %+v", got)
	}
}
