// Package command turns textual property=value assignments into a single
// multi-property bulb write.
package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/color"
)

// Per-entry decode errors. A failing entry is dropped from the batch; the
// rest of the batch is still written.
var (
	// ErrMalformedAssignment is returned for an entry without '='.
	ErrMalformedAssignment = errors.New("command: malformed assignment")

	// ErrUnknownProperty is returned for a name outside the property table.
	ErrUnknownProperty = errors.New("command: unknown property")

	// ErrInvalidMode is returned for a mode other than color, colour or white.
	ErrInvalidMode = errors.New("command: invalid mode")

	// ErrInvalidColor is returned when the colour text does not decode.
	ErrInvalidColor = errors.New("command: invalid colour")
)

// Batch is the decoded form of an assignment list.
type Batch struct {
	// Values holds the accepted entries in input order.
	Values []bulb.Value

	// Dropped holds one error per rejected entry.
	Dropped []error
}

// DPS returns the batch as one device write.
func (b Batch) DPS() bulb.DPS {
	return bulb.Encode(b.Values...)
}

// Empty reports whether no entry survived decoding.
func (b Batch) Empty() bool {
	return len(b.Values) == 0
}

// Writer is the part of a binding the batcher drives.
type Writer interface {
	MultiSet(ctx context.Context, dps bulb.DPS) bulb.Result
}

// Build decodes assignments of the form name=value.
//
// Decoding rules:
//   - power: "true" in any case is on, anything else is off
//   - color: h<f>s<f>v<f>, clamped to [0,1] and re-encoded to device hex on write
//   - mode: color and colour map to colour, white to white, others are dropped
//   - brightness, colortemp: floating point; malformed text becomes NaN
//
// Unknown names are dropped.
func Build(assignments []string) Batch {
	var batch Batch
	for _, a := range assignments {
		v, err := decode(a)
		if err != nil {
			batch.Dropped = append(batch.Dropped, err)
			continue
		}
		batch.Values = append(batch.Values, v)
	}
	return batch
}

// Apply builds the batch and submits it as one MultiSet. A batch with no
// surviving entries is still written as an empty request.
func Apply(ctx context.Context, w Writer, assignments []string) (Batch, bulb.Result) {
	batch := Build(assignments)
	return batch, w.MultiSet(ctx, batch.DPS())
}

func decode(assignment string) (bulb.Value, error) {
	name, text, ok := strings.Cut(assignment, "=")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAssignment, assignment)
	}

	p, ok := bulb.ParseProperty(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}

	switch p {
	case bulb.Power:
		return bulb.PowerValue(strings.EqualFold(text, "true")), nil

	case bulb.Color:
		hsv, err := color.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidColor, err)
		}
		return bulb.ColorValue(hsv.Clamp()), nil

	case bulb.Mode:
		switch strings.ToLower(text) {
		case "color", bulb.ModeColour:
			return bulb.ModeValue(bulb.ModeColour), nil
		case bulb.ModeWhite:
			return bulb.ModeValue(bulb.ModeWhite), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidMode, text)
		}

	case bulb.Brightness:
		return bulb.BrightnessValue(parseNumber(text)), nil

	case bulb.ColorTemp:
		return bulb.ColorTempValue(parseNumber(text)), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
}

// parseNumber returns NaN for malformed input. The NaN is passed on to the
// device layer unchanged.
func parseNumber(text string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
