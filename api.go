// Package packetio is the library's public entry point: a cross-platform,
// event-driven I/O multiplexing core built from a connector abstraction
// (connector.Connector) and a reactor-style scheduler (sched.Scheduler).
//
// An API instance owns its own scheme registry and resolver rather than
// relying on process-wide global state, mirroring the teacher's own
// per-instance configuration idiom and the spec's explicit "global
// mutable scheme maps → owned by the api instance" redesign note.
package packetio

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/packetio/packetio/connector"
	"github.com/packetio/packetio/internal/event"
	"github.com/packetio/packetio/internal/iomux"
	"github.com/packetio/packetio/internal/perror"
	"github.com/packetio/packetio/internal/registry"
	"github.com/packetio/packetio/internal/resolver"
	"github.com/packetio/packetio/sched"
)

// Re-exported vocabulary so callers don't need to import the internal
// event/sched packages directly.
type (
	EventMask = event.Mask
	ID        = sched.ID
	Callback  = sched.Callback
)

const (
	IORead    = event.IORead
	IOWrite   = event.IOWrite
	IOOpen    = event.IOOpen
	IOClose   = event.IOClose
	IOError   = event.IOError
	Timeout   = event.Timeout
	ErrorMask = event.ErrorMask

	// UserEventBase is the first bit available to RegisterEvent/FireEvents.
	UserEventBase = event.UserBase
)

// API is the library's single entry point. Its scheduler runs a
// background main loop and worker pool (unless WithWorkerCount(0) was
// given), and its registry/resolver are consulted by Dial/Listen to turn
// a URL into a connector.Connector.
type API struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	sched    *sched.Scheduler
	log      *slog.Logger
}

type options struct {
	workerCount    int
	hasWorkerCount bool
	mux            iomux.Backend
	logger         *slog.Logger
	softTimeout    time.Duration
	hasSoftTimeout bool
}

// Option configures an API at construction.
type Option func(*options)

// WithWorkerCount sets the scheduler's fixed worker pool size. -1
// auto-detects via hardware concurrency; 0 disables background workers,
// requiring the caller to pump ProcessEvents.
func WithWorkerCount(n int) Option {
	return func(o *options) { o.workerCount, o.hasWorkerCount = n, true }
}

// WithMultiplexor picks a named I/O multiplexor backend instead of the
// platform's automatic pick (epoll on Linux, kqueue on the BSDs and
// macOS, the IOCP+WSAPoll composite on Windows).
func WithMultiplexor(backend iomux.Backend) Option {
	return func(o *options) { o.mux = backend }
}

// WithLogger injects a structured logger. Defaults to slog.Default(),
// the idiom the bassosimone-nop pack repo uses throughout its nop
// package: Debug for per-event traffic, Info for connector lifecycle,
// Warn for recoverable faults.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSoftTimeout bounds each scheduler iteration's multiplexor wait
// independent of the nearest scheduled deadline.
func WithSoftTimeout(d time.Duration) Option {
	return func(o *options) { o.softTimeout, o.hasSoftTimeout = d, true }
}

// New constructs an API: a fresh Registry pre-populated with the
// built-in schemes, a Resolver seeded from the system's DNS
// configuration, and a running Scheduler.
func New(opts ...Option) (*API, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resolver.New()
	if err != nil {
		return nil, perror.Wrap(perror.Initialization, err, "constructing resolver failed")
	}

	schedOpts := []sched.Option{sched.WithLogger(o.logger)}
	if o.hasWorkerCount {
		schedOpts = append(schedOpts, sched.WithWorkerCount(o.workerCount))
	}

	if o.hasSoftTimeout {
		schedOpts = append(schedOpts, sched.WithSoftTimeout(o.softTimeout))
	}

	s, err := sched.New(o.mux, schedOpts...)
	if err != nil {
		return nil, err
	}

	a := &API{registry: registry.New(), resolver: res, sched: s, log: o.logger}

	a.log.Info("packetio API constructed", "multiplexor", string(o.mux))

	return a, nil
}

// Registry exposes the API's scheme registry, so callers can register
// additional schemes or option mappers (spec §4.1, §6).
func (a *API) Registry() *registry.Registry { return a.registry }

// Scheduler exposes the API's reactor core.
func (a *API) Scheduler() *sched.Scheduler { return a.sched }

// Dial builds a client-side connector from rawURL — resolving a
// hostname authority for tcp/udp schemes first — and calls Connect. A
// non-blocking connector that returns perror.Async is not treated as a
// failure: the caller registers with the scheduler and polls readiness.
func (a *API) Dial(ctx context.Context, rawURL string) (connector.Connector, error) {
	conn, err := a.build(ctx, rawURL)
	if err != nil {
		return connector.Zero, err
	}

	if err := conn.Connect(); err != nil {
		if kind, ok := perror.Of(err); !ok || kind != perror.Async {
			return connector.Zero, err
		}
	}

	a.log.Info("dialed connector", "url", rawURL, "type", conn.Type())

	return conn, nil
}

// Listen builds a server-side connector from rawURL and calls Listen.
func (a *API) Listen(ctx context.Context, rawURL string) (connector.Connector, error) {
	conn, err := a.build(ctx, rawURL)
	if err != nil {
		return connector.Zero, err
	}

	if err := conn.Listen(); err != nil {
		return connector.Zero, err
	}

	a.log.Info("listening connector", "url", rawURL, "type", conn.Type())

	return conn, nil
}

func (a *API) build(ctx context.Context, rawURL string) (connector.Connector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return connector.Zero, perror.Wrap(perror.Format, err, "invalid URL")
	}

	switch u.Scheme {
	case "tcp", "tcp4", "tcp6", "udp", "udp4", "udp6":
		resolved, err := a.resolveAuthority(ctx, u)
		if err != nil {
			return connector.Zero, err
		}

		u = resolved
	}

	a.log.Debug("building connector", "scheme", u.Scheme, "host", u.Host)

	return a.registry.Build(u.String())
}

// resolveAuthority expands u's hostname to a literal IP via the
// Resolver, leaving literal-address authorities untouched (spec's
// Resolver [MODULE]: "expand a URL with a host name into one or more
// URLs with canonical IP literals", upstream of connector construction).
func (a *API) resolveAuthority(ctx context.Context, u *url.URL) (*url.URL, error) {
	host := u.Hostname()
	if host == "" {
		return u, nil
	}

	preferIPv6 := strings.HasSuffix(u.Scheme, "6")

	addr, err := a.resolver.Resolve(ctx, u, preferIPv6)
	if err != nil {
		return nil, err
	}

	out := *u
	literal := addr.String()

	if addr.Is6() {
		literal = "[" + literal + "]"
	}

	if port := u.Port(); port != "" {
		out.Host = literal + ":" + port
	} else {
		out.Host = literal
	}

	return &out, nil
}

// RegisterConnector delegates to the Scheduler (spec §4.4). baton is
// passed back to cb verbatim on every invocation.
func (a *API) RegisterConnector(mask EventMask, conn connector.Connector, cb Callback, baton any) ID {
	return a.sched.RegisterConnector(mask, conn, cb, baton)
}

// UnregisterConnector delegates to the Scheduler.
func (a *API) UnregisterConnector(id ID, mask EventMask) {
	a.sched.UnregisterConnector(id, mask)
}

// ScheduleOnce delegates to the Scheduler.
func (a *API) ScheduleOnce(delay time.Duration, cb Callback, baton any) ID {
	return a.sched.ScheduleOnce(delay, cb, baton)
}

// ScheduleAt delegates to the Scheduler.
func (a *API) ScheduleAt(at time.Time, cb Callback, baton any) ID {
	return a.sched.ScheduleAt(at, cb, baton)
}

// Schedule delegates to the Scheduler.
func (a *API) Schedule(first time.Time, interval time.Duration, cb Callback, count int, baton any) ID {
	return a.sched.Schedule(first, interval, cb, count, baton)
}

// Unschedule delegates to the Scheduler.
func (a *API) Unschedule(id ID) {
	a.sched.Unschedule(id)
}

// RegisterEvent delegates to the Scheduler.
func (a *API) RegisterEvent(mask EventMask, cb Callback, baton any) ID {
	return a.sched.RegisterEvent(mask, cb, baton)
}

// UnregisterEvent delegates to the Scheduler.
func (a *API) UnregisterEvent(id ID, mask EventMask) {
	a.sched.UnregisterEvent(id, mask)
}

// FireEvents delegates to the Scheduler.
func (a *API) FireEvents(mask EventMask) error {
	return a.sched.FireEvents(mask)
}

// ProcessEvents pumps one synchronous iteration; only valid when the API
// was constructed with WithWorkerCount(0) (spec §5). softTimeout, when
// true, shortens the wait to the nearest scheduled deadline instead of
// the literal timeout requested; exitOnFailure, when true, stops
// invoking the remainder of this call's batch once a callback returns a
// non-nil error. Returns perror.ErrTimeout (not a failure) if nothing
// fired before timeout.
func (a *API) ProcessEvents(timeout time.Duration, softTimeout, exitOnFailure bool) error {
	return a.sched.ProcessEvents(timeout, softTimeout, exitOnFailure)
}

// Close stops the scheduler's main loop and worker pool. Unlike Go's
// stdlib this is not called automatically via a finalizer: the spec's
// "last drop closes the handle" applies to individual connectors, not to
// the API itself, which must be explicitly torn down.
func (a *API) Close() error {
	return a.sched.Close()
}
