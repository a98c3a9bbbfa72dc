// Package containers implements the three specialized callback
// containers of spec §2's component table: one keyed by (connector,
// event-mask) for I/O readiness, one keyed by deadline for scheduled
// callbacks, and one keyed by user-event-mask for fired user events.
package containers

import (
	"container/heap"
	"sync"
	"time"

	"github.com/packetio/packetio/connector"
	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/handle"
)

// Callback is invoked by a worker tasklet with the time it was stamped,
// the merged event mask that triggered it, a non-nil error only when the
// scheduler itself failed to deliver the event, the connector the event
// fired on (the zero Connector for scheduled and user-event entries,
// which have none), and the opaque baton supplied at registration. Its
// return value is logged but otherwise only acted upon when the caller
// requested exit-on-failure (spec §4.4's worker-tasklet contract).
type Callback func(now time.Time, mask event.Mask, err error, conn connector.Connector, baton any) error

// ID identifies one registration across all three containers, so
// Unschedule/UnregisterEvent/UnregisterConnector can find it again.
type ID uint64

// IOEntry is one (connector-handle, interest-mask, callback) triple.
type IOEntry struct {
	ID       ID
	Handle   handle.Handle
	Mask     event.Mask
	Callback Callback
	Conn     connector.Connector
	Baton    any
}

// IOContainer indexes IOEntry by handle, merging interest masks for a
// handle registered under more than one ID the way the multiplexor
// itself only tracks one mask per handle.
type IOContainer struct {
	mu      sync.Mutex
	byID    map[ID]*IOEntry
	byHash  map[uint64][]*IOEntry
}

func NewIOContainer() *IOContainer {
	return &IOContainer{byID: make(map[ID]*IOEntry), byHash: make(map[uint64][]*IOEntry)}
}

func (c *IOContainer) Add(e *IOEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID[e.ID] = e
	h := e.Handle.Hash()
	c.byHash[h] = append(c.byHash[h], e)
}

// Remove drops the entry with the given ID. If mask is non-zero, only
// that mask's bits are subtracted from the entry's interest and the
// entry survives if any bits remain (spec's unregister semantics).
func (c *IOContainer) Remove(id ID, mask event.Mask) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byID[id]
	if !ok {
		return
	}

	if mask != 0 {
		e.Mask &^= mask

		if e.Mask != 0 {
			return
		}
	}

	delete(c.byID, id)

	h := e.Handle.Hash()
	entries := c.byHash[h]

	for i, x := range entries {
		if x.ID == id {
			c.byHash[h] = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	if len(c.byHash[h]) == 0 {
		delete(c.byHash, h)
	}
}

// MatchingMask returns the union of interest masks every entry on h
// wants, for the multiplexor's Register call.
func (c *IOContainer) MatchingMask(h handle.Handle) event.Mask {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out event.Mask

	for _, e := range c.byHash[h.Hash()] {
		if e.Handle.Equal(h) {
			out |= e.Mask
		}
	}

	return out
}

// Match returns every entry on h whose interest overlaps fired.
func (c *IOContainer) Match(h handle.Handle, fired event.Mask) []*IOEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*IOEntry

	for _, e := range c.byHash[h.Hash()] {
		if e.Handle.Equal(h) && e.Mask.HasAny(fired) {
			out = append(out, e)
		}
	}

	return out
}

// ScheduledEntry is one timed callback.
type ScheduledEntry struct {
	ID       ID
	Deadline time.Time
	Interval time.Duration
	Count    int // remaining invocations; <0 means unbounded, 0 is invalid
	Callback Callback
	Baton    any
	seq      uint64 // insertion order, for deadline ties
}

// scheduledHeap is a min-heap on (Deadline, seq).
type scheduledHeap []*ScheduledEntry

func (h scheduledHeap) Len() int { return len(h) }
func (h scheduledHeap) Less(i, j int) bool {
	if h[i].Deadline.Equal(h[j].Deadline) {
		return h[i].seq < h[j].seq
	}

	return h[i].Deadline.Before(h[j].Deadline)
}
func (h scheduledHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *scheduledHeap) Push(x any)   { *h = append(*h, x.(*ScheduledEntry)) }
func (h *scheduledHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]

	return e
}

// ScheduledContainer holds timed callbacks ordered by deadline (spec
// invariant 2: non-decreasing deadline order, ties break on insertion
// order).
type ScheduledContainer struct {
	mu     sync.Mutex
	heap   scheduledHeap
	byID   map[ID]*ScheduledEntry
	nextSeq uint64
}

func NewScheduledContainer() *ScheduledContainer {
	return &ScheduledContainer{byID: make(map[ID]*ScheduledEntry)}
}

func (c *ScheduledContainer) Add(e *ScheduledEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.seq = c.nextSeq
	c.nextSeq++
	c.byID[e.ID] = e
	heap.Push(&c.heap, e)
}

func (c *ScheduledContainer) Remove(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byID[id]
	if !ok {
		return
	}

	delete(c.byID, id)

	for i, x := range c.heap {
		if x == e {
			heap.Remove(&c.heap, i)
			break
		}
	}
}

// NextDeadline reports the earliest pending deadline, if any.
func (c *ScheduledContainer) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.heap) == 0 {
		return time.Time{}, false
	}

	return c.heap[0].Deadline, true
}

// DrainExpired removes and returns every entry with Deadline <= now.
// Periodic entries (Count != 1) are re-inserted with Deadline += Interval
// and Count decremented (spec §4.4 step 5); a returned clone is used for
// dispatch so the caller's mutation of Callback can't race the next fire.
func (c *ScheduledContainer) DrainExpired(now time.Time) []*ScheduledEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fired []*ScheduledEntry

	for len(c.heap) > 0 && !c.heap[0].Deadline.After(now) {
		e := heap.Pop(&c.heap).(*ScheduledEntry)
		delete(c.byID, e.ID)

		dispatched := *e
		fired = append(fired, &dispatched)

		if e.Count < 0 || e.Count > 1 {
			if e.Count > 1 {
				e.Count--
			}

			e.Deadline = e.Deadline.Add(e.Interval)
			e.seq = c.nextSeq
			c.nextSeq++
			c.byID[e.ID] = e
			heap.Push(&c.heap, e)
		}
	}

	return fired
}

// UserEntry is one callback registered for a set of user event bits.
type UserEntry struct {
	ID       ID
	Mask     event.Mask
	Callback Callback
	Baton    any
}

// UserContainer indexes UserEntry by ID; FireEvents scans all entries,
// the way a modest-cardinality registry is expected to (spec never
// specifies a cap on distinct user event bits).
type UserContainer struct {
	mu      sync.Mutex
	entries map[ID]*UserEntry
}

func NewUserContainer() *UserContainer {
	return &UserContainer{entries: make(map[ID]*UserEntry)}
}

func (c *UserContainer) Add(e *UserEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.ID] = e
}

func (c *UserContainer) Remove(id ID, mask event.Mask) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}

	if mask != 0 {
		e.Mask &^= mask

		if e.Mask != 0 {
			return
		}
	}

	delete(c.entries, id)
}

// Match returns every entry interested in any bit of fired.
func (c *UserContainer) Match(fired event.Mask) []*UserEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*UserEntry

	for _, e := range c.entries {
		if e.Mask.HasAny(fired) {
			out = append(out, e)
		}
	}

	return out
}
