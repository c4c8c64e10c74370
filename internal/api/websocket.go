package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/logging"
	"github.com/nerrad567/lightbridge/internal/registry"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// EventPropertyChanged is the event type of every fan-out event.
	EventPropertyChanged = "property.changed"
)

const (
	wsSendBuffer       = 256
	wsDefaultPing      = 30 * time.Second
	wsDefaultWriteWait = 10 * time.Second
)

// WSMessage is one frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSTargets is the payload of subscribe and unsubscribe. Each entry is a
// datagram target: a resource id or "*<regex>".
type WSTargets struct {
	Targets []string `json:"targets"`
}

// PropertyEvent is the payload of a property.changed event.
type PropertyEvent struct {
	ResourceID string `json:"resource_id"`
	Property   string `json:"property"`
	Value      string `json:"value"`
}

// Hub relays dispatcher fan-out to WebSocket clients. It implements
// bridge.Observer.
//
// Thread Safety:
//   - PropertyChanged never blocks; a client whose buffer is full loses
//     the event and Dropped is incremented.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	dropped atomic.Uint64
}

// wsClient is one connection. An empty target list receives everything.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu      sync.RWMutex
	targets []registry.Target
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The facade serves trusted test networks; browsers on any origin may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := lo.Keys(h.clients)
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of events discarded for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// PropertyChanged implements bridge.Observer.
func (h *Hub) PropertyChanged(resourceID, property, value string) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: EventPropertyChanged,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   PropertyEvent{ResourceID: resourceID, Property: property, Value: value},
	})
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}

	h.mu.RLock()
	clients := lo.Keys(h.clients)
	h.mu.RUnlock()

	for _, c := range clients {
		if c.wants(resourceID) && !c.offer(data) {
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// remove detaches c and signals its writer. Safe to call more than once.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.done)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// handleWebSocket upgrades the request and runs the client until either
// side hangs up.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
	s.hub.add(c)

	go s.hub.writeLoop(c)
	go s.hub.readLoop(c)
}

func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	if h.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	}
	wait := h.pingInterval() + time.Duration(h.cfg.PongTimeout)*time.Second
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }
	_ = extend("") //nolint:errcheck // Read below fails if the conn is broken
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = extend("") //nolint:errcheck // See above
		c.handle(data)
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(h.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(h.cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = wsDefaultWriteWait
	}
	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			_ = write(websocket.CloseMessage, nil) //nolint:errcheck // Peer may be gone
			return
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval > 0 {
		return time.Duration(h.cfg.PingInterval) * time.Second
	}
	return wsDefaultPing
}

// handle processes one client frame.
func (c *wsClient) handle(data []byte) {
	var msg struct {
		Type    string    `json:"type"`
		ID      string    `json:"id"`
		Payload WSTargets `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		targets := make([]registry.Target, 0, len(msg.Payload.Targets))
		for _, p := range msg.Payload.Targets {
			t, err := registry.CompileTarget(p)
			if err != nil {
				c.reply(msg.ID, WSTypeError, map[string]string{"message": err.Error()})
				return
			}
			targets = append(targets, t)
		}
		c.mu.Lock()
		c.targets = append(c.targets, targets...)
		c.mu.Unlock()
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": msg.Payload.Targets})
	case WSTypeUnsubscribe:
		c.mu.Lock()
		c.targets = lo.Reject(c.targets, func(t registry.Target, _ int) bool {
			return lo.Contains(msg.Payload.Targets, t.String())
		})
		c.mu.Unlock()
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": msg.Payload.Targets})
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

// wants reports whether resourceID passes the client's targets.
func (c *wsClient) wants(resourceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.targets) == 0 {
		return true
	}
	return lo.ContainsBy(c.targets, func(t registry.Target) bool { return t.Match(resourceID) })
}

// offer queues data without blocking. It reports false when the buffer
// is full; a departed client silently accepts.
func (c *wsClient) offer(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) reply(id, kind string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      kind,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.offer(data)
}
