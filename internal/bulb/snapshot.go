package bulb

import (
	"github.com/nerrad567/lightbridge/internal/color"
)

// Snapshot holds the last observed value of each property. A nil field
// means the value has not been observed yet.
type Snapshot struct {
	Power      *bool      `json:"power,omitempty"`
	Color      *color.HSV `json:"color,omitempty"`
	Mode       *string    `json:"mode,omitempty"`
	Brightness *float64   `json:"brightness,omitempty"`
	ColorTemp  *float64   `json:"colortemp,omitempty"`
}

// Apply records v and reports whether the stored value changed.
func (s *Snapshot) Apply(v Value) bool {
	switch v := v.(type) {
	case PowerValue:
		return set(&s.Power, bool(v))
	case ColorValue:
		return set(&s.Color, color.HSV(v))
	case ModeValue:
		return set(&s.Mode, string(v))
	case BrightnessValue:
		return set(&s.Brightness, float64(v))
	case ColorTempValue:
		return set(&s.ColorTemp, float64(v))
	default:
		return false
	}
}

func set[T comparable](field **T, v T) bool {
	if *field != nil && **field == v {
		return false
	}
	*field = &v
	return true
}

// Get returns the cached value of p, if known.
func (s Snapshot) Get(p Property) (Value, bool) {
	switch p {
	case Power:
		if s.Power != nil {
			return PowerValue(*s.Power), true
		}
	case Color:
		if s.Color != nil {
			return ColorValue(*s.Color), true
		}
	case Mode:
		if s.Mode != nil {
			return ModeValue(*s.Mode), true
		}
	case Brightness:
		if s.Brightness != nil {
			return BrightnessValue(*s.Brightness), true
		}
	case ColorTemp:
		if s.ColorTemp != nil {
			return ColorTempValue(*s.ColorTemp), true
		}
	}
	return nil, false
}

// Values returns every known value in canonical property order.
func (s Snapshot) Values() []Value {
	out := make([]Value, 0, len(Properties))
	for _, p := range Properties {
		if v, ok := s.Get(p); ok {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns a deep copy that shares no pointers with s.
func (s Snapshot) Clone() Snapshot {
	var c Snapshot
	for _, v := range s.Values() {
		c.Apply(v)
	}
	return c
}
