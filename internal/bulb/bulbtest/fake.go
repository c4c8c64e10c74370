// Package bulbtest provides an in-memory bulb.Connection for tests.
package bulbtest

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/nerrad567/lightbridge/internal/bulb"
)

// FakeConn is a scriptable bulb.Connection. It behaves like a bulb that
// stores whatever is written to it and answers queries with its state.
type FakeConn struct {
	mu sync.Mutex

	state bulb.DPS
	sets  []bulb.DPS

	// ConnectDelay delays Connect; ConnectErr fails it.
	ConnectDelay time.Duration
	ConnectErr   error

	// Delay delays every Get and Set answer; Err fails them.
	Delay time.Duration
	Err   error

	// EchoSet makes Set return the written data points.
	EchoSet bool

	// IgnoreContext makes Get and Set answer after Delay even when the
	// caller has given up, like a device that replies late.
	IgnoreContext bool

	connects int
	closes   int
	events   chan bulb.ConnEvent
}

// NewFakeConn returns a fake bulb whose initial data points are state.
func NewFakeConn(state bulb.DPS) *FakeConn {
	if state == nil {
		state = bulb.DPS{}
	}
	return &FakeConn{
		state:  maps.Clone(state),
		events: make(chan bulb.ConnEvent, 16),
	}
}

// Connect implements bulb.Connection.
func (f *FakeConn) Connect(ctx context.Context) error {
	f.mu.Lock()
	delay, connectErr := f.ConnectDelay, f.ConnectErr
	f.connects++
	f.mu.Unlock()

	if err := wait(ctx, delay, false); err != nil {
		return err
	}
	if connectErr != nil {
		return connectErr
	}
	f.send(bulb.ConnEvent{Kind: bulb.ConnConnected})
	return nil
}

// SetDelay changes Delay while requests may be in flight.
func (f *FakeConn) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.Delay = d
	f.mu.Unlock()
}

// Get implements bulb.Connection.
func (f *FakeConn) Get(ctx context.Context) (bulb.DPS, error) {
	f.mu.Lock()
	delay, failure, ignore := f.Delay, f.Err, f.IgnoreContext
	f.mu.Unlock()

	if err := wait(ctx, delay, ignore); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.state), nil
}

// Set implements bulb.Connection.
func (f *FakeConn) Set(ctx context.Context, dps bulb.DPS) (bulb.DPS, error) {
	f.mu.Lock()
	delay, failure, echo, ignore := f.Delay, f.Err, f.EchoSet, f.IgnoreContext
	f.sets = append(f.sets, maps.Clone(dps))
	f.mu.Unlock()

	if err := wait(ctx, delay, ignore); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	maps.Copy(f.state, dps)
	if echo {
		return maps.Clone(dps), nil
	}
	return nil, nil
}

// Events implements bulb.Connection.
func (f *FakeConn) Events() <-chan bulb.ConnEvent {
	return f.events
}

// Close implements bulb.Connection.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

// Push simulates an unsolicited status report from the device.
func (f *FakeConn) Push(dps bulb.DPS) {
	f.mu.Lock()
	maps.Copy(f.state, dps)
	f.mu.Unlock()
	f.send(bulb.ConnEvent{Kind: bulb.ConnData, DPS: maps.Clone(dps)})
}

// Drop simulates the device dropping the session.
func (f *FakeConn) Drop() {
	f.send(bulb.ConnEvent{Kind: bulb.ConnDisconnected})
}

// Sets returns every DPS written so far.
func (f *FakeConn) Sets() []bulb.DPS {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bulb.DPS, len(f.sets))
	copy(out, f.sets)
	return out
}

// State returns the fake device's current data points.
func (f *FakeConn) State() bulb.DPS {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.state)
}

// Connects returns how many times Connect was called.
func (f *FakeConn) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Closes returns how many times Close was called.
func (f *FakeConn) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// SetErr changes the answer error.
func (f *FakeConn) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

func (f *FakeConn) send(ev bulb.ConnEvent) {
	select {
	case f.events <- ev:
	default:
	}
}

// wait sleeps for d unless ctx ends first. With ignore set it always
// sleeps the full d.
func wait(ctx context.Context, d time.Duration, ignore bool) error {
	if d <= 0 {
		return nil
	}
	if ignore {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
