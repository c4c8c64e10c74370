// Package color converts between normalised HSV triples, the bulb's native
// hex encoding, and the datagram text encoding (h<f>s<f>v<f>).
package color

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Codec errors.
var (
	// ErrInvalidHex is returned when a device colour string cannot be decoded.
	ErrInvalidHex = errors.New("color: invalid device hex")

	// ErrInvalidText is returned when a protocol colour string does not match h<f>s<f>v<f>.
	ErrInvalidText = errors.New("color: invalid colour text")
)

// Device hex layouts.
const (
	// hsvHexLen is the current layout: hhhhssssvvvv (h in degrees, s and v per-mille).
	hsvHexLen = 12

	// rgbHSVHexLen is the legacy layout: rrggbb0hhhssvv (s and v scaled to 255).
	rgbHSVHexLen = 14

	degrees  = 360.0
	perMille = 1000.0
	byteMax  = 255.0
)

// textPattern matches the protocol encoding anywhere in the input.
var textPattern = regexp.MustCompile(`h([0-9.]+)s([0-9.]+)v([0-9.]+)`)

// HSV is a colour with every component normalised to [0,1].
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// Clamp returns the colour with every component limited to [0,1].
func (c HSV) Clamp() HSV {
	return HSV{H: clamp01(c.H), S: clamp01(c.S), V: clamp01(c.V)}
}

// Hex encodes the colour in the bulb's native hhhhssssvvvv layout.
// Components outside [0,1] are clamped so the result is always 12 digits.
func (c HSV) Hex() string {
	c = c.Clamp()
	h := int64(math.Round(c.H * degrees))
	s := int64(math.Round(c.S * perMille))
	v := int64(math.Round(c.V * perMille))
	return fmt.Sprintf("%04x%04x%04x", h, s, v)
}

// String encodes the colour in the datagram text encoding.
func (c HSV) String() string {
	return "h" + formatFloat(c.H) + "s" + formatFloat(c.S) + "v" + formatFloat(c.V)
}

// FromHex decodes a device colour string. Both the hhhhssssvvvv layout and
// the legacy rrggbb0hhhssvv layout are accepted.
func FromHex(hex string) (HSV, error) {
	hex = strings.TrimSpace(hex)

	switch len(hex) {
	case hsvHexLen:
		h, errH := strconv.ParseUint(hex[0:4], 16, 16)
		s, errS := strconv.ParseUint(hex[4:8], 16, 16)
		v, errV := strconv.ParseUint(hex[8:12], 16, 16)
		if err := errors.Join(errH, errS, errV); err != nil {
			return HSV{}, fmt.Errorf("%w: %q: %w", ErrInvalidHex, hex, err)
		}
		return HSV{H: float64(h) / degrees, S: float64(s) / perMille, V: float64(v) / perMille}, nil

	case rgbHSVHexLen:
		h, errH := strconv.ParseUint(hex[7:10], 16, 16)
		s, errS := strconv.ParseUint(hex[10:12], 16, 8)
		v, errV := strconv.ParseUint(hex[12:14], 16, 8)
		if err := errors.Join(errH, errS, errV); err != nil {
			return HSV{}, fmt.Errorf("%w: %q: %w", ErrInvalidHex, hex, err)
		}
		return HSV{H: float64(h) / degrees, S: float64(s) / byteMax, V: float64(v) / byteMax}, nil

	default:
		return HSV{}, fmt.Errorf("%w: %q has length %d", ErrInvalidHex, hex, len(hex))
	}
}

// Parse decodes the datagram text encoding h<f>s<f>v<f>.
func Parse(text string) (HSV, error) {
	m := textPattern.FindStringSubmatch(text)
	if m == nil {
		return HSV{}, fmt.Errorf("%w: %q", ErrInvalidText, text)
	}

	var out [3]float64
	for i := range out {
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return HSV{}, fmt.Errorf("%w: %q: %w", ErrInvalidText, text, err)
		}
		out[i] = f
	}

	return HSV{H: out[0], S: out[1], V: out[2]}, nil
}

// Interpolate returns the linear blend of a and b at progress t in [0,1].
func Interpolate(a, b HSV, t float64) HSV {
	t = clamp01(t)
	return HSV{
		H: a.H + (b.H-a.H)*t,
		S: a.S + (b.S-a.S)*t,
		V: a.V + (b.V-a.V)*t,
	}
}

func clamp01(f float64) float64 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 1
	default:
		return f
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
