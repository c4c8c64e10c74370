package tuya

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/lightbridge/internal/bulb"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timings for device sessions.
const (
	// DefaultPort is the Tuya LAN control port.
	DefaultPort = "6668"

	// defaultHeartbeatInterval is how often a HEART_BEAT is sent.
	defaultHeartbeatInterval = 10 * time.Second

	// silenceMultiplier is how many heartbeat intervals without any inbound
	// traffic end the session.
	silenceMultiplier = 3

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// eventQueueSize is the capacity of the Events channel.
	eventQueueSize = 32
)

// Config holds device session configuration.
type Config struct {
	// DeviceID is the Tuya device id (gwId/devId).
	DeviceID string

	// Key is the 16-byte device local key.
	Key string

	// Address is the device IP, optionally with port. Default port: 6668.
	Address string

	// HeartbeatInterval defaults to 10 seconds.
	HeartbeatInterval time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	FramesTx      uint64
	FramesRx      uint64
	EventsDropped uint64 // Pushes dropped due to full event queue
	ErrorsTotal   uint64
	LastActivity  time.Time
	Connected     bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Ensure Client implements bulb.Connection.
var _ bulb.Connection = (*Client)(nil)

// session is one TCP connection to the device.
type session struct {
	conn    net.Conn
	done    *closeOnce
	writeMu sync.Mutex
}

// Client is a protocol 3.3 LAN client for one Tuya bulb.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Requests are matched to replies by sequence number, so several may
//     be in flight at once.
//
// Sessions:
//   - A lost session is not re-dialled here; Connect may be called again.
//   - Status pushes are delivered on Events and dropped when the queue is full.
type Client struct {
	cfg   Config
	codec *codec

	sessMu sync.RWMutex
	sess   *session

	seq atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan Frame

	events chan bulb.ConnEvent
	wg     sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	framesTx      atomic.Uint64
	framesRx      atomic.Uint64
	eventsDropped atomic.Uint64
	errorsTotal   atomic.Uint64
	lastActivity  atomic.Int64
}

// New creates an unconnected client.
func New(cfg Config) (*Client, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrConnectionFailed)
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		cfg.Address = net.JoinHostPort(cfg.Address, DefaultPort)
	}

	codec, err := newCodec(cfg.DeviceID, cfg.Key)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		codec:   codec,
		pending: make(map[uint32]chan Frame),
		events:  make(chan bulb.ConnEvent, eventQueueSize),
	}, nil
}

// Connect dials the device and starts the receive and heartbeat loops.
// Calling Connect on a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.sess != nil {
		return nil
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, c.cfg.Address, err)
	}

	s := &session{conn: conn, done: newCloseOnce()}
	c.sess = s
	c.lastActivity.Store(time.Now().Unix())

	c.wg.Add(2) //nolint:mnd // receive + heartbeat
	go c.receiveLoop(s)
	go c.heartbeatLoop(s)

	c.logInfo("device session established", "device", c.cfg.DeviceID, "address", c.cfg.Address)
	c.emit(bulb.ConnEvent{Kind: bulb.ConnConnected})
	return nil
}

// Get sends a DP_QUERY and returns every reported data point.
func (c *Client) Get(ctx context.Context) (bulb.DPS, error) {
	payload, err := c.codec.queryPayload()
	if err != nil {
		return nil, err
	}
	reply, err := c.request(ctx, CmdDPQuery, payload)
	if err != nil {
		return nil, err
	}
	return c.codec.decodeDPS(reply.Payload)
}

// Set sends a CONTROL with the given data points. Most bulbs acknowledge
// with an empty body and follow up with a STATUS push.
func (c *Client) Set(ctx context.Context, dps bulb.DPS) (bulb.DPS, error) {
	payload, err := c.codec.controlPayload(dps)
	if err != nil {
		return nil, err
	}
	reply, err := c.request(ctx, CmdControl, payload)
	if err != nil {
		return nil, err
	}
	return c.codec.decodeDPS(reply.Payload)
}

// Events implements bulb.Connection.
func (c *Client) Events() <-chan bulb.ConnEvent {
	return c.events
}

// Close ends the current session and waits for its goroutines. Safe to
// call multiple times; Connect may be called again afterwards.
func (c *Client) Close() error {
	c.sessMu.Lock()
	s := c.sess
	c.sessMu.Unlock()

	if s != nil {
		c.endSession(s, nil)
	}
	c.wg.Wait()
	return nil
}

// IsConnected returns true while a session is established.
func (c *Client) IsConnected() bool {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.sess != nil
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		FramesTx:      c.framesTx.Load(),
		FramesRx:      c.framesRx.Load(),
		EventsDropped: c.eventsDropped.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
		LastActivity:  time.Unix(c.lastActivity.Load(), 0),
		Connected:     c.IsConnected(),
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// request writes one frame and waits for the reply with the same sequence
// number, or for ctx to end.
func (c *Client) request(ctx context.Context, cmd Command, payload []byte) (Frame, error) {
	c.sessMu.RLock()
	s := c.sess
	c.sessMu.RUnlock()
	if s == nil {
		return Frame{}, ErrNotConnected
	}

	seq := c.seq.Add(1)
	reply := make(chan Frame, 1)

	c.pendingMu.Lock()
	c.pending[seq] = reply
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
	}()

	if err := c.write(ctx, s, Frame{Seq: seq, Cmd: cmd, Payload: payload}); err != nil {
		return Frame{}, err
	}

	select {
	case f, ok := <-reply:
		if !ok {
			return Frame{}, ErrNotConnected
		}
		return f, nil
	case <-s.done.Done():
		return Frame{}, ErrNotConnected
	case <-ctx.Done():
		return Frame{}, fmt.Errorf("%w: %s seq %d: %w", ErrTimeout, cmd, seq, ctx.Err())
	}
}

// write sends a frame with a deadline bounded by ctx.
func (c *Client) write(ctx context.Context, s *session, f Frame) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	default:
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrNotConnected, err)
	}
	if _, err := s.conn.Write(f.Encode()); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write %s: %w", ErrNotConnected, f.Cmd, err)
	}

	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// receiveLoop reads frames until the session ends.
func (c *Client) receiveLoop(s *session) {
	defer c.wg.Done()

	silence := c.cfg.HeartbeatInterval * silenceMultiplier

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(silence)); err != nil {
			c.endSession(s, err)
			return
		}

		f, err := ReadFrame(s.conn)
		if err != nil {
			if c.handleReadError(s, err) {
				return
			}
			continue
		}

		c.framesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.dispatch(f)
	}
}

// handleReadError returns true when the session is over.
func (c *Client) handleReadError(s *session, err error) bool {
	select {
	case <-s.done.Done():
		return true
	default:
	}

	// A corrupt frame with intact framing is skipped.
	if errors.Is(err, ErrBadCRC) || errors.Is(err, ErrInvalidFrame) {
		c.errorsTotal.Add(1)
		c.logError("discarding malformed frame", err)
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		err = fmt.Errorf("device silent for %s: %w", c.cfg.HeartbeatInterval*silenceMultiplier, err)
	}

	c.errorsTotal.Add(1)
	c.endSession(s, err)
	return true
}

// dispatch routes a frame to its waiting request, or emits it as a push.
func (c *Client) dispatch(f Frame) {
	if f.Cmd != CmdStatus {
		c.pendingMu.Lock()
		reply, waiting := c.pending[f.Seq]
		if waiting {
			delete(c.pending, f.Seq)
		}
		c.pendingMu.Unlock()

		if waiting {
			reply <- f
			return
		}
	}

	switch f.Cmd {
	case CmdHeartbeat:
		return
	case CmdStatus, CmdControl, CmdDPQuery:
		dps, err := c.codec.decodeDPS(f.Payload)
		if err != nil {
			c.errorsTotal.Add(1)
			c.emit(bulb.ConnEvent{Kind: bulb.ConnError, Err: err})
			return
		}
		if len(dps) > 0 {
			c.emit(bulb.ConnEvent{Kind: bulb.ConnData, DPS: dps})
		}
	default:
		c.logDebug("ignoring frame", "device", c.cfg.DeviceID, "cmd", f.Cmd.String())
	}
}

// heartbeatLoop sends HEART_BEAT frames until the session ends.
func (c *Client) heartbeatLoop(s *session) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
			err := c.write(ctx, s, Frame{Seq: c.seq.Add(1), Cmd: CmdHeartbeat})
			cancel()
			if err != nil {
				c.endSession(s, err)
				return
			}
		}
	}
}

// endSession closes s once, fails its pending requests and reports the
// disconnect. A nil cause means the caller asked for it.
func (c *Client) endSession(s *session, cause error) {
	c.sessMu.Lock()
	if c.sess != s {
		c.sessMu.Unlock()
		return
	}
	c.sess = nil
	c.sessMu.Unlock()

	s.done.Close()
	s.conn.Close()

	c.pendingMu.Lock()
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
	c.pendingMu.Unlock()

	if cause != nil {
		c.logError("device session lost", cause)
		c.emit(bulb.ConnEvent{Kind: bulb.ConnError, Err: cause})
	} else {
		c.logInfo("device session closed", "device", c.cfg.DeviceID)
	}
	c.emit(bulb.ConnEvent{Kind: bulb.ConnDisconnected})
}

// emit queues an event without blocking (drop on overflow).
func (c *Client) emit(ev bulb.ConnEvent) {
	select {
	case c.events <- ev:
	default:
		c.eventsDropped.Add(1)
		c.logError("event queue full, dropping event", fmt.Errorf("kind %s", ev.Kind))
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "device", c.cfg.DeviceID, "error", err)
	}
}
