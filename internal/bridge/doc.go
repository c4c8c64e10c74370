// Package bridge implements the datagram dispatcher that sits between UDP
// subscribers and the bound bulbs.
//
// One goroutine owns the dispatch loop. It consumes, one at a time:
//
//   - inbound datagrams, parsed by package wire
//   - property events forwarded from every binding in the registry
//   - completions posted back by background work (reload)
//
// Device round trips (wish, refresh, reload) never run on the loop. They
// are started as tracked goroutines and report back through binding events
// or completions, so a slow bulb cannot stall messages for other bulbs.
//
// Subscriber sets are only mutated on the loop. Fan-out reads them there
// too, so a tell is never sent to an address that unlooped earlier in the
// same stream.
//
// Usage:
//
//	d, err := bridge.New(bridge.Options{
//	    Registry: reg,
//	    Roster:   src,
//	    ID:       cfg.Bridge.ID,
//	    Name:     cfg.Bridge.Name,
//	})
//	d.SetLogger(log)
//	err = d.ListenAndServe(ctx, "127.0.0.1:8090")
package bridge
