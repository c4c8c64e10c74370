// Package api implements the HTTP facade of the bridge: a small REST
// surface for manual testing and a WebSocket stream of property changes.
//
// It talks to the same registry and dispatcher as the datagram protocol,
// so a PUT here and a wish datagram produce identical device writes and
// identical fan-out to datagram subscribers.
//
// # Results
//
// Device failures never surface as transport errors. Each resource in a
// response carries its own outcome; the HTTP status reflects the worst
// outcome: 504 when any device timed out, 502 when any device failed,
// 200 otherwise. A target that resolves to nothing is 404.
//
// # Event stream
//
// GET /ws upgrades to a WebSocket. Every property change fanned out by
// the dispatcher is sent as an event message. Clients may narrow the
// stream with a subscribe message listing datagram targets:
//
//	{"type":"subscribe","id":"1","payload":{"targets":["bulb-2","*^hall"]}}
package api
