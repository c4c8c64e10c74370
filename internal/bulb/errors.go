package bulb

import "errors"

// Binding errors. Request failures are reported inside a Result; these
// values appear in Result.Err and in Connect's return value.
var (
	// ErrConnectTimeout indicates the device did not connect within the connect timeout.
	ErrConnectTimeout = errors.New("bulb: connect timeout")

	// ErrConnectFailed indicates the device connection was refused or failed.
	ErrConnectFailed = errors.New("bulb: connect failed")

	// ErrNotConnected indicates a request was issued while the binding was not connected.
	ErrNotConnected = errors.New("bulb: not connected")

	// ErrRequestTimeout indicates the device did not answer within the request timeout.
	ErrRequestTimeout = errors.New("bulb: request timeout")

	// ErrDevice wraps a protocol error reported by the device connection.
	ErrDevice = errors.New("bulb: device error")

	// ErrBindingClosed indicates the binding has been closed.
	ErrBindingClosed = errors.New("bulb: binding closed")

	// ErrRunnerClosed indicates an effect was started after EffectRunner.Close.
	ErrRunnerClosed = errors.New("bulb: effect runner closed")
)
