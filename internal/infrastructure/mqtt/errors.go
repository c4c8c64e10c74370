package mqtt

import "errors"

// Errors returned by Client. Broker-side failures wrap one of the
// operation errors together with the paho error.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")

	// ErrTimeout is joined with the operation error when the broker does
	// not acknowledge in time.
	ErrTimeout = errors.New("mqtt: acknowledgement timeout")

	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
