package bulb

import (
	"context"
	"fmt"
)

// ConnEventKind classifies events emitted by a Connection.
type ConnEventKind int

const (
	// ConnData carries data points pushed by the device.
	ConnData ConnEventKind = iota + 1

	// ConnConnected signals the session is established.
	ConnConnected

	// ConnDisconnected signals the session was lost.
	ConnDisconnected

	// ConnError reports a non-fatal transport error.
	ConnError
)

// String returns the event kind name.
func (k ConnEventKind) String() string {
	switch k {
	case ConnData:
		return "data"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnError:
		return "error"
	default:
		return fmt.Sprintf("ConnEventKind(%d)", int(k))
	}
}

// ConnEvent is one asynchronous notification from a Connection.
type ConnEvent struct {
	Kind ConnEventKind
	DPS  DPS
	Err  error
}

// Connection is the device session a Binding drives. Implementations must
// honour ctx cancellation on every blocking call and must never block when
// delivering events. Close ends the current session; Connect may be called
// again afterwards, and the Events channel stays valid across sessions.
type Connection interface {
	// Connect establishes a session.
	Connect(ctx context.Context) error

	// Get queries every data point.
	Get(ctx context.Context) (DPS, error)

	// Set writes the given data points in one request. The returned DPS holds
	// whatever the device echoed back, which may be empty.
	Set(ctx context.Context, dps DPS) (DPS, error)

	// Events delivers pushes and connection state changes.
	Events() <-chan ConnEvent

	// Close tears the current session down.
	Close() error
}

// Logger is the optional structured logger accepted by bindings.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
