// Package sched implements the reactor core of spec §4.4: a main loop
// that merges an in-queue of registration/trigger commands with I/O
// events from an internal/iomux.Multiplexor and timed events from
// internal/sched/containers, dispatching to a bounded worker pool via
// golang.org/x/sync/semaphore.Weighted the way the teacher bounds its
// own goroutine fan-out in internal/runtime/asyncio's worker pool.
package sched

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/packetio/packetio/connector"
	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/iomux"
	"github.com/packetio/packetio/internal/perror"
	"github.com/packetio/packetio/internal/sched/containers"
)

// Callback is re-exported from containers for callers of this package.
type Callback = containers.Callback

// action tags one in-queue command.
type action int

const (
	actionRegisterConn action = iota
	actionUnregisterConn
	actionSchedule
	actionUnschedule
	actionRegisterEvent
	actionUnregisterEvent
	actionFireEvent
)

type command struct {
	kind action

	id ID

	conn     connector.Connector
	ioMask   event.Mask
	callback Callback
	baton    any

	deadline time.Time
	interval time.Duration
	count    int

	userMask event.Mask
}

// ID identifies a registration for later unregistration.
type ID = containers.ID

const minWaitFloor = 50 * time.Microsecond

// Scheduler is the reactor core: one main-loop goroutine (unless
// WithWorkerCount(0) was used), a bounded worker pool, and the three
// callback containers.
type Scheduler struct {
	mux iomux.Multiplexor

	io        *containers.IOContainer
	scheduled *containers.ScheduledContainer
	user      *containers.UserContainer

	inQueue  chan command
	outQueue chan dispatch

	workerCount int
	sem         *semaphore.Weighted

	softTimeout time.Duration
	maxWait     time.Duration

	interrupt connector.Connector
	nextID    atomic.Uint64
	stop          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	synchronous   bool

	log *slog.Logger
}

type dispatch struct {
	cb    Callback
	mask  event.Mask
	now   time.Time
	err   error
	conn  connector.Connector
	baton any
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithWorkerCount sets the fixed worker pool size. -1 auto-detects via
// runtime.NumCPU (clamped to a sane default); 0 means no background
// workers — the caller drives dispatch synchronously via ProcessEvents.
func WithWorkerCount(n int) Option {
	return func(s *Scheduler) {
		if n < 0 {
			n = runtime.NumCPU()
			if n > 16 {
				n = 16
			}
		}

		s.workerCount = n
	}
}

// WithMultiplexor overrides the automatically picked Multiplexor.
func WithMultiplexor(m iomux.Multiplexor) Option {
	return func(s *Scheduler) { s.mux = m }
}

// WithSoftTimeout bounds each multiplexor.Wait call independent of the
// nearest scheduled deadline, so the main loop periodically re-checks
// the stop flag even under a quiet workload.
func WithSoftTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.softTimeout = d }
}

// WithLogger injects a structured logger for multiplexor-registration
// failures and recovered callback panics. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New constructs a Scheduler. A worker count of 0 puts the scheduler in
// synchronous mode: no main-loop goroutine runs, and the caller must
// call ProcessEvents to pump events (spec §5).
func New(backend iomux.Backend, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		io:          containers.NewIOContainer(),
		scheduled:   containers.NewScheduledContainer(),
		user:        containers.NewUserContainer(),
		inQueue:     make(chan command, 256),
		outQueue:    make(chan dispatch, 256),
		workerCount: runtime.NumCPU(),
		softTimeout: 200 * time.Millisecond,
		maxWait:     5 * time.Second,
		stop:        make(chan struct{}),
		log:         slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.mux == nil {
		mux, err := iomux.New(backend)
		if err != nil {
			return nil, err
		}

		s.mux = mux
	}

	interrupt, err := connector.NewAnon(nil, connector.Options{Behavior: connector.Stream, Blocking: connector.BlockModeNonBlocking})
	if err != nil {
		return nil, perror.Wrap(perror.Initialization, err, "creating interrupt connector failed")
	}

	if err := interrupt.Listen(); err != nil {
		return nil, perror.Wrap(perror.Initialization, err, "opening interrupt connector failed")
	}

	s.interrupt = interrupt

	if err := s.mux.Register(interrupt.ReadHandle(), event.IORead); err != nil {
		return nil, perror.Wrap(perror.Initialization, err, "registering interrupt connector failed")
	}

	if s.workerCount == 0 {
		s.synchronous = true
		return s, nil
	}

	s.sem = semaphore.NewWeighted(int64(s.workerCount))

	s.wg.Add(1)
	go s.mainLoop()

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)

		go s.workerLoop()
	}

	return s, nil
}

func (s *Scheduler) allocID() ID {
	return ID(s.nextID.Add(1))
}

func (s *Scheduler) enqueue(cmd command) {
	s.inQueue <- cmd
	s.wake()
}

func (s *Scheduler) wake() {
	_, _ = s.interrupt.Write([]byte{0xff})
}

// RegisterConnector registers interest in events for conn, invoking cb
// whenever the multiplexor reports a matching bit. baton is passed back
// to cb verbatim (spec §3's callback data model); it is opaque to the
// scheduler.
func (s *Scheduler) RegisterConnector(mask event.Mask, conn connector.Connector, cb Callback, baton any) ID {
	id := s.allocID()
	s.enqueue(command{kind: actionRegisterConn, id: id, conn: conn, ioMask: mask, callback: cb, baton: baton})

	return id
}

// UnregisterConnector subtracts mask's bits from id's registration; a
// zero mask removes it entirely.
func (s *Scheduler) UnregisterConnector(id ID, mask event.Mask) {
	s.enqueue(command{kind: actionUnregisterConn, id: id, ioMask: mask})
}

// ScheduleOnce fires cb once after delay.
func (s *Scheduler) ScheduleOnce(delay time.Duration, cb Callback, baton any) ID {
	return s.ScheduleAt(time.Now().Add(delay), cb, baton)
}

// ScheduleAt fires cb once at the given instant.
func (s *Scheduler) ScheduleAt(at time.Time, cb Callback, baton any) ID {
	id := s.allocID()
	s.enqueue(command{kind: actionSchedule, id: id, deadline: at, count: 1, callback: cb, baton: baton})

	return id
}

// Schedule fires cb at `first`, then every `interval` thereafter. count
// <= 0 means unbounded; count > 0 bounds the number of invocations
// (spec invariant 2).
func (s *Scheduler) Schedule(first time.Time, interval time.Duration, cb Callback, count int, baton any) ID {
	id := s.allocID()

	if count <= 0 {
		count = -1
	}

	s.enqueue(command{kind: actionSchedule, id: id, deadline: first, interval: interval, count: count, callback: cb, baton: baton})

	return id
}

// Unschedule cancels a pending scheduled callback.
func (s *Scheduler) Unschedule(id ID) {
	s.enqueue(command{kind: actionUnschedule, id: id})
}

// RegisterEvent registers cb for any of the given user-defined bits
// (must be event.UserBase or higher).
func (s *Scheduler) RegisterEvent(mask event.Mask, cb Callback, baton any) ID {
	id := s.allocID()
	s.enqueue(command{kind: actionRegisterEvent, id: id, userMask: mask, callback: cb, baton: baton})

	return id
}

// UnregisterEvent subtracts mask's bits from id's user-event registration.
func (s *Scheduler) UnregisterEvent(id ID, mask event.Mask) {
	s.enqueue(command{kind: actionUnregisterEvent, id: id, ioMask: mask})
}

// FireEvents triggers every callback registered for any bit in mask.
// mask must include at least one user bit (spec §4.4); otherwise the
// call is rejected with perror.InvalidValue and nothing is enqueued.
func (s *Scheduler) FireEvents(mask event.Mask) error {
	if !mask.HasUserBit() {
		return perror.New(perror.InvalidValue, "fire_events mask must include at least one user bit", nil)
	}

	s.enqueue(command{kind: actionFireEvent, userMask: mask})

	return nil
}

// Close stops the main loop and worker pool, closes the interrupt
// connector, and drains the in/out queues. No partially-invoked
// callback is retried (spec §5).
func (s *Scheduler) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wake()
	})

	s.wg.Wait()

	close(s.inQueue)
	close(s.outQueue)

	for range s.inQueue {
	}

	for range s.outQueue {
	}

	_ = s.mux.Close()

	return s.interrupt.Close()
}
