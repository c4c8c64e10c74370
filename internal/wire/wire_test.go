package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "wonder",
			raw:  "wonder:bulb-1:power",
			want: Message{Verb: VerbWonder, Target: "bulb-1", Payload: []string{"power"}},
		},
		{
			name: "wish with assignments",
			raw:  "wish:*bulb-.*:power=true:brightness=500",
			want: Message{Verb: VerbWish, Target: "*bulb-.*", Payload: []string{"power=true", "brightness=500"}},
		},
		{
			name: "enloop without payload",
			raw:  "enloop:bulb-3",
			want: Message{Verb: VerbEnloop, Target: "bulb-3"},
		},
		{
			name: "holler with empty fields",
			raw:  "holler:::",
			want: Message{Verb: VerbHoller, Target: "", Payload: []string{"", ""}},
		},
		{
			name: "bridge command",
			raw:  "bridge:reload",
			want: Message{Verb: VerbBridge, Target: "reload"},
		},
		{
			name: "empty payload fields kept",
			raw:  "tell:bulb-1::",
			want: Message{Verb: VerbTell, Target: "bulb-1", Payload: []string{"", ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{"", ErrEmptyDatagram},
		{"shout:bulb-1", ErrUnknownVerb},
		{"Wonder:bulb-1:power", ErrUnknownVerb},
		{"hello", ErrUnknownVerb},
		{"wonder", ErrMalformedTarget},
		{"wonder::power", ErrMalformedTarget},
		{"enloop:", ErrMalformedTarget},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	cases := []struct {
		verb    Verb
		target  string
		payload []string
	}{
		{VerbTell, "bulb-1", []string{"color", "h0.5s0.7v0.9"}},
		{VerbWonder, "*.*", []string{"mode"}},
		{VerbWish, "bulb-2", []string{"power=false", "colortemp=300", ""}},
		{VerbEnloop, "bulb-9", nil},
		{VerbHoller, "", []string{"", ""}},
		{VerbBridge, "unloop", []string{"*bulb-1"}},
	}

	for _, c := range cases {
		t.Run(string(c.verb), func(t *testing.T) {
			msg, err := Parse(Format(c.verb, c.target, c.payload...))
			require.NoError(t, err)
			assert.Equal(t, c.verb, msg.Verb)
			assert.Equal(t, c.target, msg.Target)
			assert.Equal(t, c.payload, msg.Payload)
		})
	}
}

func TestTell(t *testing.T) {
	assert.Equal(t, "tell:bulb-1:color:h0.5s0.7v0.9", string(Tell("bulb-1", "color", "h0.5s0.7v0.9")))
}

func TestMessage_Field(t *testing.T) {
	m := Message{Verb: VerbWonder, Target: "bulb-1", Payload: []string{"power"}}
	assert.Equal(t, "power", m.Field(0))
	assert.Equal(t, "", m.Field(1))
	assert.Equal(t, "", m.Field(-1))
	assert.Equal(t, "wonder:bulb-1:power", m.String())
}
