package bridge

import "errors"

// Dispatcher errors.
var (
	// ErrNoRegistry is returned by New when Options.Registry is nil.
	ErrNoRegistry = errors.New("bridge: registry is required")

	// ErrNoRoster is returned by Reload when no roster is configured.
	ErrNoRoster = errors.New("bridge: no roster configured")

	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = errors.New("bridge: already serving")

	// ErrStopped is returned by Serve after Stop.
	ErrStopped = errors.New("bridge: stopped")
)
