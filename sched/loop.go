package sched

import (
	"context"
	"time"

	"github.com/packetio/packetio/connector"
	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/iomux"
	"github.com/packetio/packetio/internal/perror"
	"github.com/packetio/packetio/internal/sched/containers"
)

// mainLoop runs on its own goroutine, implementing spec §4.4's seven-step
// iteration. The background loop always shortens its wait to the nearest
// scheduled deadline (it must stay responsive to timers regardless of
// any particular caller's preference) and never aborts a batch early —
// exit-on-failure is only meaningful for the synchronous ProcessEvents
// caller driving its own batch inline.
func (s *Scheduler) mainLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if _, err := s.tick(s.softTimeout, true, false); err != nil {
			continue
		}
	}
}

// tick runs exactly one main-loop iteration: drain the in-queue (user
// events fired since the last tick are matched and dispatched there),
// wait on the multiplexor, merge fired bits per handle, drain expired
// timers, and push a dispatch batch. It reports whether any I/O, timer or
// user event arrived. It is exported indirectly via ProcessEvents for
// synchronous (worker-count-zero) callers.
//
// considerScheduledDeadline controls whether the computed wait is
// shortened to the nearest scheduled deadline (spec §4.4's
// `soft_timeout` flag on `process_events`); exitOnFailure controls
// whether a callback returning a non-nil error aborts the rest of this
// tick's batch (spec §4.4's worker-tasklet contract) — it is only
// honored in synchronous mode, since a concurrently-dispatched worker
// pool has no single batch to abort.
func (s *Scheduler) tick(requestedTimeout time.Duration, considerScheduledDeadline, exitOnFailure bool) (bool, error) {
	sawEvent := s.drainInQueue()

	timeout := s.nextTimeout(requestedTimeout, considerScheduledDeadline)

	events, err := s.mux.Wait(timeout)
	if err != nil {
		return false, err
	}

	var batch []dispatch

	now := time.Now()

	var merged []iomux.Event

	for _, ev := range events {
		i := 0
		for i < len(merged) && !merged[i].Handle.Equal(ev.Handle) {
			i++
		}

		if i == len(merged) {
			merged = append(merged, ev)
		} else {
			merged[i].Mask |= ev.Mask
		}
	}

	for _, ev := range merged {
		if ev.Handle.Equal(s.interrupt.ReadHandle()) {
			s.drainInterrupt()
			continue
		}

		sawEvent = true

		for _, e := range s.io.Match(ev.Handle, ev.Mask) {
			batch = append(batch, dispatch{cb: e.Callback, mask: ev.Mask & e.Mask, now: now, conn: e.Conn, baton: e.Baton})
		}
	}

	for _, e := range s.scheduled.DrainExpired(now) {
		sawEvent = true
		batch = append(batch, dispatch{cb: e.Callback, mask: event.Timeout, now: now, conn: connector.Zero, baton: e.Baton})
	}

	if len(batch) > 0 {
		s.dispatch(batch, exitOnFailure)
	}

	if !sawEvent {
		return false, nil
	}

	return true, nil
}

// nextTimeout computes selected_timeout per spec §4.4 step 2: the
// smaller of the nearest scheduled deadline (when considerDeadline is
// set), requested and maxWait, clamped from below by minWaitFloor —
// except a requested timeout of exactly zero is honored literally
// (process_events(0) must return perror.ErrTimeout immediately with no
// work done, spec §8).
func (s *Scheduler) nextTimeout(requested time.Duration, considerDeadline bool) time.Duration {
	if requested == 0 {
		return 0
	}

	maxWait := s.maxWait
	if requested > 0 && requested < maxWait {
		maxWait = requested
	}

	if considerDeadline {
		if deadline, ok := s.scheduled.NextDeadline(); ok {
			until := time.Until(deadline)
			if until < maxWait {
				maxWait = until
			}
		}
	}

	if maxWait < minWaitFloor {
		maxWait = minWaitFloor
	}

	return maxWait
}

func (s *Scheduler) drainInterrupt() {
	var buf [64]byte

	for {
		n, err := s.interrupt.Read(buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (s *Scheduler) drainInQueue() bool {
	fired := false

	for {
		select {
		case cmd := <-s.inQueue:
			if cmd.kind == actionFireEvent {
				fired = true
			}

			s.apply(cmd)
		default:
			return fired
		}
	}
}

func (s *Scheduler) apply(cmd command) {
	switch cmd.kind {
	case actionRegisterConn:
		s.applyRegisterConn(cmd)
	case actionUnregisterConn:
		s.applyUnregisterConn(cmd)
	case actionSchedule:
		s.scheduled.Add(&containers.ScheduledEntry{
			ID: cmd.id, Deadline: cmd.deadline, Interval: cmd.interval,
			Count: cmd.count, Callback: cmd.callback, Baton: cmd.baton,
		})
	case actionUnschedule:
		s.scheduled.Remove(cmd.id)
	case actionRegisterEvent:
		s.user.Add(&containers.UserEntry{ID: cmd.id, Mask: cmd.userMask, Callback: cmd.callback, Baton: cmd.baton})
	case actionUnregisterEvent:
		s.user.Remove(cmd.id, cmd.ioMask)
	case actionFireEvent:
		s.applyFireEvent(cmd)
	}
}

func (s *Scheduler) applyRegisterConn(cmd command) {
	h := cmd.conn.ReadHandle()

	s.io.Add(&containers.IOEntry{ID: cmd.id, Handle: h, Mask: cmd.ioMask, Callback: cmd.callback, Conn: cmd.conn, Baton: cmd.baton})

	merged := s.io.MatchingMask(h)

	if err := s.mux.Register(h, merged); err != nil {
		s.log.Warn("multiplexor registration failed", "id", cmd.id, "mask", merged, "error", err)
	}

	if wh := cmd.conn.WriteHandle(); !wh.Equal(h) && cmd.ioMask.HasAny(event.IOWrite) {
		if err := s.mux.Register(wh, event.IOWrite); err != nil {
			s.log.Warn("multiplexor write-handle registration failed", "id", cmd.id, "error", err)
		}
	}
}

func (s *Scheduler) applyUnregisterConn(cmd command) {
	s.io.Remove(cmd.id, cmd.ioMask)
}

func (s *Scheduler) applyFireEvent(cmd command) {
	now := time.Now()

	var batch []dispatch

	for _, e := range s.user.Match(cmd.userMask) {
		batch = append(batch, dispatch{cb: e.Callback, mask: cmd.userMask & e.Mask, now: now, conn: connector.Zero, baton: e.Baton})
	}

	if len(batch) > 0 {
		s.dispatch(batch, false)
	}
}

// dispatch stamps and pushes a batch into the out-queue, waking up to
// min(batch_size, worker_count) workers (spec §4.4 step 7). In
// synchronous mode (no worker goroutines), callbacks run inline instead,
// and exitOnFailure — when set — stops invoking the remainder of the
// batch once one callback returns a non-nil error; the un-invoked
// entries are simply dropped (spec §4.4: "freed but not invoked"), not
// retried on a later tick.
func (s *Scheduler) dispatch(batch []dispatch, exitOnFailure bool) {
	if s.synchronous {
		for _, d := range batch {
			if err := s.invoke(d); err != nil && exitOnFailure {
				return
			}
		}

		return
	}

	for _, d := range batch {
		select {
		case s.outQueue <- d:
		case <-s.stop:
			return
		}
	}
}

// invoke runs a single callback, recovering a panic and logging it as
// perror.Unexpected the way the teacher's worker catches a thrown
// exception (spec §4.4's worker tasklet contract). The callback's own
// returned error is logged but otherwise only acted upon by dispatch's
// exit-on-failure handling.
func (s *Scheduler) invoke(d dispatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = perror.New(perror.Unexpected, "callback panicked", map[string]any{"panic": r})
			s.log.Warn("callback panicked", "mask", d.mask, "panic", r, "error", err)
		}
	}()

	err = d.cb(d.now, d.mask, d.err, d.conn, d.baton)
	if err != nil {
		s.log.Warn("callback returned error", "mask", d.mask, "error", err)
	}

	return err
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()

	ctx := context.Background()

	for {
		select {
		case <-s.stop:
			return
		case d, ok := <-s.outQueue:
			if !ok {
				return
			}

			if err := s.sem.Acquire(ctx, 1); err != nil {
				return
			}

			_ = s.invoke(d)
			s.sem.Release(1)
		}
	}
}

// ProcessEvents pumps one main-loop iteration for synchronous
// (worker-count-zero) schedulers, invoking any matched callbacks inline
// on the caller's goroutine. softTimeout, when true, shortens the wait to
// the nearest scheduled deadline instead of waiting the literal timeout
// requested; exitOnFailure, when true, stops invoking the rest of this
// call's batch once a callback returns a non-nil error (spec §4.4). It
// returns perror.ErrTimeout if the wait expired with nothing to
// dispatch — a normal, non-error return per spec §7, not a failure — and
// nil once a batch was drained. Valid only when the scheduler was built
// with WithWorkerCount(0); otherwise perror.InvalidValue.
func (s *Scheduler) ProcessEvents(timeout time.Duration, softTimeout, exitOnFailure bool) error {
	if !s.synchronous {
		return perror.New(perror.InvalidValue, "ProcessEvents requires a scheduler built with WithWorkerCount(0)", nil)
	}

	sawEvent, err := s.tick(timeout, softTimeout, exitOnFailure)
	if err != nil {
		return err
	}

	if !sawEvent {
		return perror.ErrTimeout
	}

	return nil
}
