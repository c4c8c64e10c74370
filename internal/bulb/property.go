package bulb

import (
	"strconv"
	"strings"

	"github.com/nerrad567/lightbridge/internal/color"
)

// Property identifies one observable, mutable bulb property.
type Property int

// The fixed property set. The zero value is not a valid property.
const (
	Power Property = iota + 1
	Color
	Mode
	Brightness
	ColorTemp
)

// Properties lists every property in canonical order. Catch-up bursts and
// snapshot listings follow this order.
var Properties = []Property{Power, Color, Mode, Brightness, ColorTemp}

// Device data point codes for the Tuya colour bulb profile.
const (
	CodePower      = "20"
	CodeMode       = "21"
	CodeBrightness = "22"
	CodeColorTemp  = "23"
	CodeColor      = "24"
)

// Device mode values.
const (
	ModeColour = "colour"
	ModeWhite  = "white"
)

var propertyNames = map[Property]string{
	Power:      "power",
	Color:      "color",
	Mode:       "mode",
	Brightness: "brightness",
	ColorTemp:  "colortemp",
}

var propertyCodes = map[Property]string{
	Power:      CodePower,
	Color:      CodeColor,
	Mode:       CodeMode,
	Brightness: CodeBrightness,
	ColorTemp:  CodeColorTemp,
}

// nameAliases maps lower-cased alternative spellings to their property.
var nameAliases = map[string]Property{
	"colour":      Color,
	"warmth":      ColorTemp,
	"temperature": ColorTemp,
}

// String returns the wire name of the property.
func (p Property) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return "unknown"
}

// Code returns the device data point code for the property.
func (p Property) Code() string {
	return propertyCodes[p]
}

// Valid reports whether p is a member of the fixed property set.
func (p Property) Valid() bool {
	_, ok := propertyNames[p]
	return ok
}

// ParseProperty resolves a wire property name. Matching is case-insensitive
// and accepts the aliases colour, warmth and temperature.
func ParseProperty(name string) (Property, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for p, n := range propertyNames {
		if n == lower {
			return p, true
		}
	}
	p, ok := nameAliases[lower]
	return p, ok
}

// PropertyForCode resolves a device data point code.
func PropertyForCode(code string) (Property, bool) {
	for p, c := range propertyCodes {
		if c == code {
			return p, true
		}
	}
	return 0, false
}

// Value is a typed property value. The concrete types are PowerValue,
// ColorValue, ModeValue, BrightnessValue and ColorTempValue.
type Value interface {
	// Property returns which property this value belongs to.
	Property() Property

	// String returns the wire text encoding of the value.
	String() string

	// raw returns the device data point payload.
	raw() any
}

// PowerValue is the on/off state.
type PowerValue bool

// ColorValue is the colour in normalised HSV.
type ColorValue color.HSV

// ModeValue is the device work mode (colour or white).
type ModeValue string

// BrightnessValue is the white-mode brightness (device scale 10-1000).
type BrightnessValue float64

// ColorTempValue is the white-mode colour temperature (device scale 0-1000).
type ColorTempValue float64

func (PowerValue) Property() Property      { return Power }
func (ColorValue) Property() Property      { return Color }
func (ModeValue) Property() Property       { return Mode }
func (BrightnessValue) Property() Property { return Brightness }
func (ColorTempValue) Property() Property  { return ColorTemp }

func (v PowerValue) String() string      { return strconv.FormatBool(bool(v)) }
func (v ColorValue) String() string      { return color.HSV(v).String() }
func (v ModeValue) String() string       { return string(v) }
func (v BrightnessValue) String() string { return formatNumber(float64(v)) }
func (v ColorTempValue) String() string  { return formatNumber(float64(v)) }

func (v PowerValue) raw() any      { return bool(v) }
func (v ColorValue) raw() any      { return color.HSV(v).Hex() }
func (v ModeValue) raw() any       { return string(v) }
func (v BrightnessValue) raw() any { return float64(v) }
func (v ColorTempValue) raw() any  { return float64(v) }

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// DPS is a set of device data points keyed by code.
type DPS map[string]any

// Encode converts typed values into a DPS payload. A later value for the
// same property overwrites an earlier one.
func Encode(values ...Value) DPS {
	dps := make(DPS, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		dps[v.Property().Code()] = v.raw()
	}
	return dps
}

// Decode converts the recognised data points of dps into typed values, in
// canonical property order. Unknown codes and undecodable payloads are skipped.
func Decode(dps DPS) []Value {
	values := make([]Value, 0, len(dps))
	for _, p := range Properties {
		raw, ok := dps[p.Code()]
		if !ok {
			continue
		}
		if v, ok := decodeRaw(p, raw); ok {
			values = append(values, v)
		}
	}
	return values
}

func decodeRaw(p Property, raw any) (Value, bool) {
	switch p {
	case Power:
		b, ok := raw.(bool)
		return PowerValue(b), ok
	case Mode:
		s, ok := raw.(string)
		return ModeValue(s), ok
	case Brightness:
		f, ok := toFloat(raw)
		return BrightnessValue(f), ok
	case ColorTemp:
		f, ok := toFloat(raw)
		return ColorTempValue(f), ok
	case Color:
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		hsv, err := color.FromHex(s)
		if err != nil {
			return nil, false
		}
		return ColorValue(hsv), true
	default:
		return nil, false
	}
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
