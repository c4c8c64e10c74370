package bulb

import (
	"time"
)

// Outcome classifies how a request finished.
type Outcome int

const (
	// OutcomeOK means the device answered before the timeout.
	OutcomeOK Outcome = iota

	// OutcomeTimeout means the timeout fired first; any late answer was discarded.
	OutcomeTimeout

	// OutcomeError means the device or transport reported an error.
	OutcomeError
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the resolution of one device request. Requests never return
// errors directly: failures are reported as OutcomeTimeout or OutcomeError
// with Err set.
type Result struct {
	Outcome Outcome
	Values  []Value
	Elapsed time.Duration
	Err     error
}

// OK reports whether the device answered successfully.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Value returns the value observed for p, if the response carried one.
func (r Result) Value(p Property) (Value, bool) {
	for _, v := range r.Values {
		if v.Property() == p {
			return v, true
		}
	}
	return nil, false
}
