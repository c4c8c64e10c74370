package bulb

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Default binding timings.
const (
	// DefaultConnectTimeout bounds a whole connection attempt.
	DefaultConnectTimeout = 3 * time.Second

	// DefaultRequestTimeout bounds a single get or set.
	DefaultRequestTimeout = 500 * time.Millisecond

	// defaultEventBuffer is the capacity of the property event channel.
	defaultEventBuffer = 64
)

// State is the connection state of a binding.
type State int32

const (
	// Disconnected is the initial state and the state after a lost session.
	Disconnected State = iota

	// Connecting means a connection attempt is in progress.
	Connecting

	// Connected means requests may be issued.
	Connected

	// Failed means the binding was closed and will not reconnect.
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config configures a Binding.
type Config struct {
	// DeviceID is the opaque device identity, used in logs.
	DeviceID string

	// ConnectTimeout bounds Connect. Default: 3s.
	ConnectTimeout time.Duration

	// RequestTimeout bounds every get and set. Default: 500ms.
	RequestTimeout time.Duration

	// EventBuffer is the capacity of the Events channel. Default: 64.
	EventBuffer int

	// Logger is optional.
	Logger Logger

	// Sink, when set, also receives connection lifecycle messages on the
	// (message, severity) scale. Lower severity is more important.
	Sink func(message string, severity int)
}

// Lifecycle severities passed to Config.Sink.
const (
	SeverityError = 0
	SeverityInfo  = 1
	SeverityDebug = 2
)

// Event reports an observed property value.
type Event struct {
	Value Value

	// Changed is false when the observation merely refreshed the cached value.
	Changed bool
}

// Stats holds binding counters.
type Stats struct {
	Requests      uint64 `json:"requests"`
	Timeouts      uint64 `json:"timeouts"`
	Errors        uint64 `json:"errors"`
	Pushes        uint64 `json:"pushes"`
	EventsDropped uint64 `json:"events_dropped"`
}

// Binding owns one device connection and its cached property snapshot.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The snapshot is owned by a single actor goroutine; device pushes and
//     confirmed request results are both funnelled through it.
//   - Requests to different bindings never wait on each other.
type Binding struct {
	cfg  Config
	conn Connection
	log  Logger

	state atomic.Int32

	ops    chan func()
	events chan Event

	// final is written by the actor before stopped is closed.
	final   Snapshot
	stopped chan struct{}

	closeOnce sync.Once
	done      chan struct{}

	requests      atomic.Uint64
	timeouts      atomic.Uint64
	errorsTotal   atomic.Uint64
	pushes        atomic.Uint64
	eventsDropped atomic.Uint64
}

// New creates a binding around conn and starts its actor. The binding is
// Disconnected until Connect succeeds.
func New(conn Connection, cfg Config) *Binding {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}

	b := &Binding{
		cfg:     cfg,
		conn:    conn,
		log:     log,
		ops:     make(chan func()),
		events:  make(chan Event, cfg.EventBuffer),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// DeviceID returns the device identity.
func (b *Binding) DeviceID() string {
	return b.cfg.DeviceID
}

// State returns the current connection state.
func (b *Binding) State() State {
	return State(b.state.Load())
}

// Events returns the property event stream. It is closed by Close.
// Events are dropped when the consumer falls behind.
func (b *Binding) Events() <-chan Event {
	return b.events
}

// Connect establishes the device session, bounded by the connect timeout.
// On timeout the connection is forcibly closed.
func (b *Binding) Connect(ctx context.Context) error {
	if b.isClosed() {
		return ErrBindingClosed
	}
	if !b.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		if b.State() == Connected {
			return nil
		}
		return fmt.Errorf("%w: %s: attempt already in progress", ErrConnectFailed, b.cfg.DeviceID)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.conn.Connect(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			b.state.CompareAndSwap(int32(Connecting), int32(Disconnected))
			b.notify(b.cfg.DeviceID+" connect failed: "+err.Error(), SeverityError)
			return fmt.Errorf("%w: %s: %w", ErrConnectFailed, b.cfg.DeviceID, err)
		}
	case <-ctx.Done():
		if err := b.conn.Close(); err != nil {
			b.log.Warn("closing timed out connection", "device", b.cfg.DeviceID, "error", err)
		}
		b.state.CompareAndSwap(int32(Connecting), int32(Disconnected))
		b.notify(b.cfg.DeviceID+" connect timed out", SeverityError)
		return fmt.Errorf("%w: %s after %s", ErrConnectTimeout, b.cfg.DeviceID, b.cfg.ConnectTimeout)
	}

	b.state.CompareAndSwap(int32(Connecting), int32(Connected))
	b.log.Info("device connected", "device", b.cfg.DeviceID)
	b.notify(b.cfg.DeviceID+" connected", SeverityDebug)
	return nil
}

// Get queries the device and returns the observed value of p. Every value
// in the response updates the snapshot.
func (b *Binding) Get(ctx context.Context, p Property) Result {
	r := b.request(ctx, nil)
	if r.OK() {
		if v, ok := r.Value(p); ok {
			r.Values = []Value{v}
		} else {
			r.Values = nil
		}
	}
	return r
}

// Refresh queries every data point and updates the snapshot.
func (b *Binding) Refresh(ctx context.Context) Result {
	return b.request(ctx, nil)
}

// Set writes a single property value.
func (b *Binding) Set(ctx context.Context, v Value) Result {
	return b.MultiSet(ctx, Encode(v))
}

// MultiSet writes every data point in dps as one device request. Codes are
// not validated here. The snapshot is updated only once the device confirms.
func (b *Binding) MultiSet(ctx context.Context, dps DPS) Result {
	if dps == nil {
		dps = DPS{}
	}
	return b.request(ctx, dps)
}

// request races one device call against the request timeout. A nil dps
// issues a query. Whichever of {response, timeout} comes first decides the
// result; the other is discarded.
func (b *Binding) request(ctx context.Context, dps DPS) Result {
	start := time.Now()

	if b.isClosed() {
		return Result{Outcome: OutcomeError, Err: ErrBindingClosed}
	}
	if b.State() != Connected {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("%w: %s is %s", ErrNotConnected, b.cfg.DeviceID, b.State())}
	}

	b.requests.Add(1)

	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	type reply struct {
		dps DPS
		err error
	}
	// Buffered so a late reply never blocks the device goroutine.
	replies := make(chan reply, 1)

	go func() {
		var r reply
		if dps == nil {
			r.dps, r.err = b.conn.Get(ctx)
		} else {
			r.dps, r.err = b.conn.Set(ctx, dps)
		}
		replies <- r
	}()

	select {
	case r := <-replies:
		if r.err != nil {
			if ctx.Err() != nil {
				return b.timedOut(start)
			}
			b.errorsTotal.Add(1)
			b.log.Debug("device request failed", "device", b.cfg.DeviceID, "error", r.err)
			return Result{Outcome: OutcomeError, Elapsed: time.Since(start), Err: fmt.Errorf("%w: %w", ErrDevice, r.err)}
		}

		observed := r.dps
		if dps != nil {
			observed = maps.Clone(dps)
			maps.Copy(observed, r.dps)
		}
		values := Decode(observed)
		b.observe(values)
		return Result{Outcome: OutcomeOK, Values: values, Elapsed: time.Since(start)}

	case <-ctx.Done():
		return b.timedOut(start)
	}
}

func (b *Binding) timedOut(start time.Time) Result {
	b.timeouts.Add(1)
	elapsed := time.Since(start)
	b.log.Debug("device request timed out", "device", b.cfg.DeviceID, "elapsed", elapsed)
	return Result{Outcome: OutcomeTimeout, Elapsed: elapsed, Err: ErrRequestTimeout}
}

// observe applies values on the actor and waits until they are recorded.
func (b *Binding) observe(values []Value) {
	if len(values) == 0 {
		return
	}
	b.exec(func(s *Snapshot) {
		for _, v := range values {
			b.emit(Event{Value: v, Changed: s.Apply(v)})
		}
	})
}

// Snapshot returns a copy of the cached property values.
func (b *Binding) Snapshot() Snapshot {
	var out Snapshot
	if !b.exec(func(s *Snapshot) { out = s.Clone() }) {
		return b.final.Clone()
	}
	return out
}

// Stats returns the binding counters.
func (b *Binding) Stats() Stats {
	return Stats{
		Requests:      b.requests.Load(),
		Timeouts:      b.timeouts.Load(),
		Errors:        b.errorsTotal.Load(),
		Pushes:        b.pushes.Load(),
		EventsDropped: b.eventsDropped.Load(),
	}
}

// Close stops the actor, closes the connection and closes the Events
// channel. Safe to call more than once.
func (b *Binding) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.state.Store(int32(Failed))
		close(b.done)
		err = b.conn.Close()
		<-b.stopped
	})
	return err
}

// exec runs fn on the actor goroutine with the snapshot and waits for it.
// It returns false when the actor has already stopped.
func (b *Binding) exec(fn func(*Snapshot)) bool {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn(&b.final)
	}
	select {
	case b.ops <- op:
	case <-b.stopped:
		return false
	}
	<-finished
	return true
}

// run is the actor loop. It is the only goroutine that touches b.final
// before stopped is closed.
func (b *Binding) run() {
	defer close(b.stopped)
	defer close(b.events)

	connEvents := b.conn.Events()
	for {
		select {
		case <-b.done:
			return
		case op := <-b.ops:
			op()
		case ev, ok := <-connEvents:
			if !ok {
				connEvents = nil
				continue
			}
			b.handleConnEvent(ev)
		}
	}
}

func (b *Binding) handleConnEvent(ev ConnEvent) {
	switch ev.Kind {
	case ConnData:
		b.pushes.Add(1)
		for _, v := range Decode(ev.DPS) {
			b.emit(Event{Value: v, Changed: b.final.Apply(v)})
		}
	case ConnConnected:
		b.state.CompareAndSwap(int32(Disconnected), int32(Connected))
	case ConnDisconnected:
		if b.state.CompareAndSwap(int32(Connected), int32(Disconnected)) {
			b.log.Warn("device disconnected", "device", b.cfg.DeviceID)
			b.notify(b.cfg.DeviceID+" disconnected", SeverityDebug)
		}
	case ConnError:
		b.errorsTotal.Add(1)
		if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
			b.log.Debug("device connection error", "device", b.cfg.DeviceID, "error", ev.Err)
			b.notify(b.cfg.DeviceID+" error: "+ev.Err.Error(), SeverityError)
		}
	}
}

// emit delivers an event without blocking the actor.
func (b *Binding) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		b.eventsDropped.Add(1)
		b.log.Warn("event buffer full, dropping event", "device", b.cfg.DeviceID, "property", ev.Value.Property().String())
	}
}

func (b *Binding) notify(message string, severity int) {
	if b.cfg.Sink != nil {
		b.cfg.Sink(message, severity)
	}
}

func (b *Binding) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
