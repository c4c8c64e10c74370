// Package wire implements the colon-delimited datagram grammar spoken
// between the bridge and its subscribers.
//
// Every datagram is UTF-8 text of the form
//
//	<verb>:<target>[:<field>...]
//
// The verb and target are interpreted here; the remaining fields are kept
// as raw strings because their meaning depends on the verb:
//
//	tell:bulb-1:power:true
//	wonder:*bulb-.*:brightness
//	wish:bulb-2:power=true:brightness=500
//	enloop:bulb-3
//	holler:::
//	bridge:reload
//
// Parsing never validates payload content. Downstream handlers must
// tolerate empty or garbled fields.
package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Separator delimits datagram fields.
const Separator = ":"

// Legacy handshake. A bare "hello" datagram is answered with HelloReply.
const (
	Hello      = "hello"
	HelloReply = "i have lights"
)

// Parse errors.
var (
	// ErrEmptyDatagram is returned for a zero-length datagram.
	ErrEmptyDatagram = errors.New("wire: empty datagram")

	// ErrUnknownVerb is returned when the first field is not a known verb.
	ErrUnknownVerb = errors.New("wire: unknown verb")

	// ErrMalformedTarget is returned when a verb that needs a target has none.
	ErrMalformedTarget = errors.New("wire: malformed target")
)

// Verb is the protocol operation keyword.
type Verb string

const (
	// VerbTell informs the remote of a resource property value.
	VerbTell Verb = "tell"

	// VerbWonder asks for the current value of a property.
	VerbWonder Verb = "wonder"

	// VerbWish requests a change to one or more properties.
	VerbWish Verb = "wish"

	// VerbEnloop subscribes the sender to every change of a resource.
	VerbEnloop Verb = "enloop"

	// VerbHoller is the bridge handshake. It carries no target.
	VerbHoller Verb = "holler"

	// VerbBridge carries administrative commands; the target field holds
	// the command name (reload, list, unloop).
	VerbBridge Verb = "bridge"
)

// knownVerbs is matched case-sensitively.
var knownVerbs = map[Verb]bool{
	VerbTell:   true,
	VerbWonder: true,
	VerbWish:   true,
	VerbEnloop: true,
	VerbHoller: true,
	VerbBridge: true,
}

// Valid reports whether v is a known verb.
func (v Verb) Valid() bool {
	return knownVerbs[v]
}

// targetOptional reports whether the verb may be sent with an empty target.
func (v Verb) targetOptional() bool {
	return v == VerbHoller
}

// Message is one parsed datagram.
type Message struct {
	Verb    Verb
	Target  string
	Payload []string
}

// Field returns payload field i, or "" when absent.
func (m Message) Field(i int) string {
	if i < 0 || i >= len(m.Payload) {
		return ""
	}
	return m.Payload[i]
}

// Bytes serialises the message.
func (m Message) Bytes() []byte {
	return Format(m.Verb, m.Target, m.Payload...)
}

// String returns the serialised message as text.
func (m Message) String() string {
	return string(m.Bytes())
}

// Parse splits a raw datagram into a Message.
//
// The verb must match a known verb exactly. The target must be non-empty
// for every verb except holler. Remaining fields are returned verbatim.
func Parse(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return Message{}, ErrEmptyDatagram
	}

	fields := strings.Split(string(raw), Separator)

	verb := Verb(fields[0])
	if !verb.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownVerb, fields[0])
	}

	var target string
	if len(fields) > 1 {
		target = fields[1]
	}
	if len(fields) < 2 || (target == "" && !verb.targetOptional()) {
		return Message{}, fmt.Errorf("%w: verb %s", ErrMalformedTarget, verb)
	}

	msg := Message{Verb: verb, Target: target}
	if len(fields) > 2 { //nolint:mnd // verb + target
		msg.Payload = fields[2:]
	}
	return msg, nil
}

// Format joins a verb, a target and payload fields into a datagram.
// It is the inverse of Parse for payload fields that contain no separator.
func Format(verb Verb, target string, payload ...string) []byte {
	var b strings.Builder
	b.WriteString(string(verb))
	b.WriteString(Separator)
	b.WriteString(target)
	for _, p := range payload {
		b.WriteString(Separator)
		b.WriteString(p)
	}
	return []byte(b.String())
}

// Tell builds a tell datagram for one property value.
func Tell(resourceID, property, value string) []byte {
	return Format(VerbTell, resourceID, property, value)
}
