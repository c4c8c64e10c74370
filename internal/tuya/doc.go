// Package tuya implements the Tuya LAN protocol 3.3 as spoken by Wi-Fi
// colour bulbs, and exposes a device session as a bulb.Connection.
//
// Frames are exchanged over TCP port 6668. Every payload is AES-128-ECB
// encrypted with the device local key; CONTROL payloads are additionally
// prefixed with a "3.3" version header. Replies echo the request sequence
// number, which is how concurrent requests are matched to their answers.
// Unsolicited STATUS frames are delivered as data events.
//
// Data points used by colour bulbs:
//
//	20  power        bool
//	21  mode         "colour" | "white" | "scene" | "music"
//	22  brightness   10-1000
//	23  colour temp  0-1000
//	24  colour       hhhhssssvvvv hex (h degrees, s and v per-mille)
//
// Usage:
//
//	c, err := tuya.New(tuya.Config{DeviceID: id, Key: key, Address: "192.168.1.40"})
//	if err != nil {
//	    return err
//	}
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//	dps, err := c.Get(ctx)
package tuya
