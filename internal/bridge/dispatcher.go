package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/registry"
)

// Dispatcher defaults.
const (
	// defaultEventBuffer bounds the queue between binding forwarders and the loop.
	defaultEventBuffer = 256

	// inboundBuffer bounds datagrams read but not yet dispatched.
	inboundBuffer = 64

	// maxDatagramSize is the largest datagram read; longer ones are truncated.
	maxDatagramSize = 2048
)

// Roster supplies the device declarations a reload binds.
type Roster interface {
	Declarations(ctx context.Context) ([]registry.Declaration, error)
}

// Logger defines the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Dispatcher.
type Options struct {
	// Registry holds the bound resources. Required.
	Registry *registry.Registry

	// Roster is read by bridge:reload. Optional; reload is refused without it.
	Roster Roster

	// ID and Name identify this bridge in holler acknowledgements.
	ID   string
	Name string

	// EventBuffer bounds forwarded device events. Default: 256.
	EventBuffer int

	// Logger for dispatcher events (optional).
	Logger Logger
}

// Metrics holds dispatcher counters.
type Metrics struct {
	DatagramsRx uint64 `json:"datagrams_rx"`
	DatagramsTx uint64 `json:"datagrams_tx"`
	Dropped     uint64 `json:"dropped"`
	Events      uint64 `json:"events"`
	Changes     uint64 `json:"changes"`
	SendErrors  uint64 `json:"send_errors"`
	Resources   int    `json:"resources"`
	AtLarge     int    `json:"at_large"`
}

// datagram is one inbound packet.
type datagram struct {
	from registry.ClientAddress
	data []byte
}

// deviceEvent is a binding event tagged with its resource.
type deviceEvent struct {
	res *registry.Resource
	ev  bulb.Event
}

// Dispatcher serves the datagram protocol for every resource in a registry.
//
// Thread Safety:
//   - Serve runs the dispatch loop; all handler and fan-out code runs there.
//   - AddObserver, Reload, Metrics and Stop are safe from any goroutine.
type Dispatcher struct {
	registry *registry.Registry
	roster   Roster
	id       string
	name     string

	// atLarge holds holler senders; they receive every resource's changes.
	atLarge *registry.Subscribers

	inbound     chan datagram
	events      chan deviceEvent
	completions chan func()

	// refreshing is owned by the loop.
	refreshing map[string]bool

	observers   []Observer
	observersMu sync.RWMutex

	// conn is set once by Serve before the loop starts.
	conn    net.PacketConn
	serving atomic.Bool

	// Lifecycle
	ctx       context.Context
	ctxCancel context.CancelFunc
	lifeMu    sync.Mutex
	stopped   bool
	stopOnce  sync.Once
	wg        sync.WaitGroup

	attached map[string]bool

	logger   Logger
	loggerMu sync.RWMutex

	rx, tx, dropped, fanouts, changes, sendErrors atomic.Uint64
}

// New creates a dispatcher and starts forwarding events from every resource
// the registry holds now or adds later.
func New(opts Options) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, ErrNoRegistry
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		registry:    opts.Registry,
		roster:      opts.Roster,
		id:          opts.ID,
		name:        opts.Name,
		atLarge:     registry.NewSubscribers(),
		inbound:     make(chan datagram, inboundBuffer),
		events:      make(chan deviceEvent, opts.EventBuffer),
		completions: make(chan func(), inboundBuffer),
		refreshing:  make(map[string]bool),
		ctx:         ctx,
		ctxCancel:   cancel,
		attached:    make(map[string]bool),
		logger:      opts.Logger,
	}

	d.registry.OnAdded(d.attach)
	for _, res := range d.registry.All() {
		d.attach(res)
	}
	return d, nil
}

// ID returns the bridge id.
func (d *Dispatcher) ID() string { return d.id }

// Name returns the bridge name.
func (d *Dispatcher) Name() string { return d.name }

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *registry.Registry { return d.registry }

// AtLarge returns the holler subscribers.
func (d *Dispatcher) AtLarge() *registry.Subscribers { return d.atLarge }

// ListenAndServe opens a UDP socket on addr and serves it until ctx is
// cancelled or Stop is called.
func (d *Dispatcher) ListenAndServe(ctx context.Context, addr string) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer pc.Close()

	d.logInfo("datagram listener started", "address", pc.LocalAddr().String())
	return d.Serve(ctx, pc)
}

// Serve runs the dispatch loop on pc until ctx is cancelled or Stop is
// called. The caller owns pc.
func (d *Dispatcher) Serve(ctx context.Context, pc net.PacketConn) error {
	if !d.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	if d.ctx.Err() != nil {
		return ErrStopped
	}
	d.conn = pc

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		d.readLoop(ctx, pc)
	}()

	d.loop(ctx)

	// Unblock the reader without closing a socket we do not own.
	_ = pc.SetReadDeadline(time.Now())
	<-readerDone
	return nil
}

// Stop cancels background work and waits for it to finish. It does not
// close bindings; the registry owns them.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.lifeMu.Lock()
		d.stopped = true
		d.lifeMu.Unlock()

		d.ctxCancel()
		d.wg.Wait()
		d.logInfo("dispatcher stopped")
	})
}

// Metrics returns current counters.
func (d *Dispatcher) Metrics() Metrics {
	return Metrics{
		DatagramsRx: d.rx.Load(),
		DatagramsTx: d.tx.Load(),
		Dropped:     d.dropped.Load(),
		Events:      d.fanouts.Load(),
		Changes:     d.changes.Load(),
		SendErrors:  d.sendErrors.Load(),
		Resources:   d.registry.Len(),
		AtLarge:     d.atLarge.Len(),
	}
}

// loop is the single consumer of inbound datagrams, device events and
// completions.
func (d *Dispatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case dg := <-d.inbound:
			d.handle(dg)
		case e := <-d.events:
			d.fanOut(e.res, e.ev)
		case fn := <-d.completions:
			fn()
		}
	}
}

// readLoop reads datagrams and queues them for the loop.
func (d *Dispatcher) readLoop(ctx context.Context, pc net.PacketConn) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP unreachable from an earlier send surfaces here on some
			// platforms; the socket is still usable.
			d.logDebug("datagram read failed", "error", err)
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case d.inbound <- datagram{from: registry.AddressOf(udpAddr), data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// send writes one datagram. Failures are counted and logged, never retried.
func (d *Dispatcher) send(to registry.ClientAddress, payload []byte) {
	if d.conn == nil {
		return
	}
	if _, err := d.conn.WriteTo(payload, to.UDPAddr()); err != nil {
		d.sendErrors.Add(1)
		d.logDebug("datagram send failed", "to", to.String(), "error", err)
		return
	}
	d.tx.Add(1)
}

// attach starts forwarding a resource's binding events into the loop.
func (d *Dispatcher) attach(res *registry.Resource) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.stopped || d.attached[res.ID] {
		return
	}
	d.attached[res.ID] = true

	d.wg.Add(1)
	go d.forward(res)
}

// forward copies binding events into the loop until the binding closes or
// the dispatcher stops.
func (d *Dispatcher) forward(res *registry.Resource) {
	defer d.wg.Done()

	events := res.Binding.Events()
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case d.events <- deviceEvent{res: res, ev: ev}:
			case <-d.ctx.Done():
				return
			}
		}
	}
}

// spawn runs fn as tracked background work. It returns false after Stop.
func (d *Dispatcher) spawn(fn func(ctx context.Context)) bool {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.stopped {
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(d.ctx)
	}()
	return true
}

// post queues fn to run on the loop.
func (d *Dispatcher) post(fn func()) {
	select {
	case d.completions <- fn:
	case <-d.ctx.Done():
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

func (d *Dispatcher) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

// logInfo logs an info message if logger is set.
func (d *Dispatcher) logInfo(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (d *Dispatcher) logWarn(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (d *Dispatcher) logError(msg string, err error) {
	if logger := d.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (d *Dispatcher) logDebug(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
