//go:build windows

// Package overlapped implements the Windows-only overlapped context pool
// of spec §4.2: a fixed- or growable-size pool of per-operation records
// used to simulate POSIX read/write readiness over IOCP. Free slots are
// tracked with a bitset.BitSet (github.com/bits-and-blooms/bitset),
// matching the capacity-scanning pattern the teacher's own free-list
// pools use elsewhere in internal/runtime/asyncio.
package overlapped

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sys/windows"

	"github.com/packetio/packetio/internal/perror"
)

// GrowthPolicy controls what happens when Manager has no free slot.
//   - 0 grows not at all (rejected at construction if the pool starts
//     empty, since that guarantees every request fails).
//   - -1 doubles the pool size.
//   - n > 0 adds exactly n slots.
type GrowthPolicy int

const (
	GrowthFixed  GrowthPolicy = 0
	GrowthDouble GrowthPolicy = -1
)

// state is a context's lifecycle.
type state int

const (
	stateFree state = iota
	statePending
	stateComplete
)

// Context extends windows.Overlapped with the owned buffer and
// bookkeeping state needed to simulate POSIX-style readiness (spec
// §4.2's "Overlapped context").
type Context struct {
	windows.Overlapped

	handle    windows.Handle
	buf       []byte
	isWrite   bool
	signature uint64
	st        state
}

// Buffer returns the context's owned I/O buffer.
func (c *Context) Buffer() []byte { return c.buf }

// Manager is the pool described by spec §4.2.
type Manager struct {
	mu       sync.Mutex
	slots    []*Context
	free     *bitset.BitSet
	policy   GrowthPolicy
	growBy   uint
	pendingR map[windows.Handle]uint // handle -> slot index of its one outstanding read
	pendingW map[windows.Handle]map[uint64]uint
}

// NewManager constructs a pool with an initial capacity and growth
// policy. A policy of GrowthFixed with initial size zero is rejected
// (spec §4.2's "no growth and zero initial" invariant), since it would
// make every request fail.
func NewManager(initial int, policy GrowthPolicy) (*Manager, error) {
	if initial <= 0 && policy == GrowthFixed {
		return nil, perror.New(perror.InvalidOption, "overlapped pool cannot have zero initial size and no growth policy", nil)
	}

	m := &Manager{
		free:     bitset.New(uint(max(initial, 0))),
		policy:   policy,
		pendingR: make(map[windows.Handle]uint),
		pendingW: make(map[windows.Handle]map[uint64]uint),
	}

	if policy > 0 {
		m.growBy = uint(policy)
	}

	for i := 0; i < initial; i++ {
		m.slots = append(m.slots, &Context{})
		m.free.Set(uint(i))
	}

	return m, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// acquire finds or grows to find a free slot. Caller holds m.mu.
func (m *Manager) acquire() (uint, *Context, error) {
	idx, ok := m.free.NextSet(0)
	if ok {
		m.free.Clear(idx)
		return idx, m.slots[idx], nil
	}

	if err := m.grow(); err != nil {
		return 0, nil, err
	}

	idx, ok = m.free.NextSet(0)
	if !ok {
		return 0, nil, perror.New(perror.NumItems, "overlapped pool exhausted", nil)
	}

	m.free.Clear(idx)

	return idx, m.slots[idx], nil
}

func (m *Manager) grow() error {
	switch {
	case m.policy == GrowthFixed:
		return perror.New(perror.NumItems, "overlapped pool is full and growth is disabled", nil)
	case m.policy == GrowthDouble:
		n := len(m.slots)
		if n == 0 {
			n = 1
		}

		m.extend(uint(n))
	default:
		m.extend(m.growBy)
	}

	return nil
}

func (m *Manager) extend(by uint) {
	start := uint(len(m.slots))

	for i := uint(0); i < by; i++ {
		m.slots = append(m.slots, &Context{})
		m.free.Set(start + i) // bitset.Set grows the backing storage as needed
	}
}

// hashPrefix hashes the first K bytes of buf as a write-deduplication
// signature (spec §4.2: "K implementation-defined, > 0 preferred").
const signatureK = 16

func hashPrefix(buf []byte) uint64 {
	n := len(buf)
	if n > signatureK {
		n = signatureK
	}

	var h uint64 = 14695981039346656037 // FNV-1a offset basis

	for _, b := range buf[:n] {
		h ^= uint64(b)
		h *= 1099511628211 // FNV-1a prime
	}

	return h
}

// BeginRead issues (or reuses) the single outstanding read for handle.
// If a zero-byte probe is already pending, it is cancelled so a real
// read can take its place (spec §4.2).
func (m *Manager) BeginRead(h windows.Handle, buf []byte, issue func(*Context) error) (*Context, bool, error) {
	m.mu.Lock()

	if idx, ok := m.pendingR[h]; ok {
		ctx := m.slots[idx]
		if ctx.isWrite || len(ctx.buf) > 0 || len(buf) == 0 {
			m.mu.Unlock()
			return ctx, false, perror.ErrRepeatAction
		}

		_ = windows.CancelIoEx(h, &ctx.Overlapped)
		ctx.st = stateFree
		m.free.Set(idx)
		delete(m.pendingR, h)
	}

	idx, ctx, err := m.acquire()
	if err != nil {
		m.mu.Unlock()
		return nil, false, err
	}

	ctx.handle = h
	ctx.buf = buf
	ctx.isWrite = false
	ctx.st = statePending
	m.pendingR[h] = idx
	m.mu.Unlock()

	if err := issue(ctx); err != nil {
		m.Release(ctx)
		return nil, false, err
	}

	return ctx, true, nil
}

// BeginWrite issues a write, deduplicating against any pending write
// with the same payload-prefix signature (spec §4.2).
func (m *Manager) BeginWrite(h windows.Handle, buf []byte, issue func(*Context) error) (*Context, bool, error) {
	sig := hashPrefix(buf)

	m.mu.Lock()

	if byHandle, ok := m.pendingW[h]; ok {
		if idx, ok := byHandle[sig]; ok {
			ctx := m.slots[idx]
			m.mu.Unlock()

			return ctx, false, perror.ErrRepeatAction
		}
	}

	idx, ctx, err := m.acquire()
	if err != nil {
		m.mu.Unlock()
		return nil, false, err
	}

	ctx.handle = h
	ctx.buf = buf
	ctx.isWrite = true
	ctx.signature = sig
	ctx.st = statePending

	if m.pendingW[h] == nil {
		m.pendingW[h] = make(map[uint64]uint)
	}

	m.pendingW[h][sig] = idx
	m.mu.Unlock()

	if err := issue(ctx); err != nil {
		m.Release(ctx)
		return nil, false, err
	}

	return ctx, true, nil
}

// Release frees ctx's slot. Callers must not call Release for a
// callback that returned async; the slot stays alive until completion
// (spec §4.2).
func (m *Manager) Release(ctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(ctx)
	if idx < 0 {
		return
	}

	if ctx.isWrite {
		if byHandle, ok := m.pendingW[ctx.handle]; ok {
			delete(byHandle, ctx.signature)

			if len(byHandle) == 0 {
				delete(m.pendingW, ctx.handle)
			}
		}
	} else if m.pendingR[ctx.handle] == uint(idx) {
		delete(m.pendingR, ctx.handle)
	}

	ctx.buf = nil
	ctx.handle = 0
	ctx.st = stateFree
	m.free.Set(uint(idx))
}

func (m *Manager) indexOf(ctx *Context) int {
	for i, s := range m.slots {
		if s == ctx {
			return i
		}
	}

	return -1
}

// PendingCount reports the number of slots currently in the pending
// state (spec §8's testable property: never exceeds pool size).
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for _, s := range m.slots {
		if s.st == statePending {
			n++
		}
	}

	return n
}

// CancelAll cancels every unique pending handle's I/O and resets every
// slot (spec §4.2's destruction/explicit-cancel-all path).
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[windows.Handle]bool)

	for i, s := range m.slots {
		if s.st != statePending {
			continue
		}

		if !seen[s.handle] {
			_ = windows.CancelIoEx(s.handle, nil)
			seen[s.handle] = true
		}

		s.buf = nil
		s.handle = 0
		s.st = stateFree
		m.free.Set(uint(i))
	}

	m.pendingR = make(map[windows.Handle]uint)
	m.pendingW = make(map[windows.Handle]map[uint64]uint)
}
