package bulb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/lightbridge/internal/color"
)

func TestParseProperty(t *testing.T) {
	tests := []struct {
		in   string
		want Property
		ok   bool
	}{
		{"power", Power, true},
		{"POWER", Power, true},
		{"color", Color, true},
		{"colour", Color, true},
		{"mode", Mode, true},
		{"brightness", Brightness, true},
		{"colortemp", ColorTemp, true},
		{"colorTemp", ColorTemp, true},
		{"warmth", ColorTemp, true},
		{"name", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseProperty(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPropertyCodes(t *testing.T) {
	for _, p := range Properties {
		got, ok := PropertyForCode(p.Code())
		require.True(t, ok, p.String())
		assert.Equal(t, p, got)
	}
	_, ok := PropertyForCode("99")
	assert.False(t, ok)
	assert.False(t, Property(0).Valid())
	assert.Equal(t, "unknown", Property(42).String())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "true", PowerValue(true).String())
	assert.Equal(t, "false", PowerValue(false).String())
	assert.Equal(t, "colour", ModeValue(ModeColour).String())
	assert.Equal(t, "250", BrightnessValue(250).String())
	assert.Equal(t, "12.5", ColorTempValue(12.5).String())
	assert.Equal(t, "NaN", BrightnessValue(math.NaN()).String())
	assert.Equal(t, "h0.5s0.7v0.9", ColorValue(color.HSV{H: 0.5, S: 0.7, V: 0.9}).String())
}

func TestEncodeDecode(t *testing.T) {
	dps := Encode(
		PowerValue(true),
		ModeValue(ModeWhite),
		BrightnessValue(500),
		ColorValue(color.HSV{H: 1, S: 1, V: 1}),
		nil,
	)
	assert.Equal(t, DPS{
		CodePower:      true,
		CodeMode:       "white",
		CodeBrightness: 500.0,
		CodeColor:      "016803e803e8",
	}, dps)

	values := Decode(dps)
	assert.Equal(t, []Value{
		PowerValue(true),
		ColorValue(color.HSV{H: 1, S: 1, V: 1}),
		ModeValue(ModeWhite),
		BrightnessValue(500),
	}, values)
}

func TestDecode_SkipsGarbage(t *testing.T) {
	values := Decode(DPS{
		CodePower:     "yes",
		CodeColor:     "nothex",
		CodeColorTemp: 300,
		"1":           true,
	})
	assert.Equal(t, []Value{ColorTempValue(300)}, values)
}

func TestSnapshot(t *testing.T) {
	var s Snapshot
	assert.Empty(t, s.Values())

	assert.True(t, s.Apply(PowerValue(true)))
	assert.False(t, s.Apply(PowerValue(true)))
	assert.True(t, s.Apply(PowerValue(false)))
	assert.True(t, s.Apply(BrightnessValue(500)))

	v, ok := s.Get(Power)
	require.True(t, ok)
	assert.Equal(t, PowerValue(false), v)

	_, ok = s.Get(Color)
	assert.False(t, ok)

	c := s.Clone()
	c.Apply(BrightnessValue(10))
	assert.InDelta(t, 500.0, *s.Brightness, 0, "clone must not alias")
	assert.Equal(t, []Value{PowerValue(false), BrightnessValue(500)}, s.Values())
}

func TestSnapshot_NaNAlwaysChanges(t *testing.T) {
	var s Snapshot
	assert.True(t, s.Apply(BrightnessValue(math.NaN())))
	assert.True(t, s.Apply(BrightnessValue(math.NaN())))
}
