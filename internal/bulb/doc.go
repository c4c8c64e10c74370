// Package bulb binds one colour bulb connection to a cached property
// snapshot and exposes timeout-bounded requests against it.
//
// A Binding never reports device failures as errors. Every request
// resolves to a Result whose Outcome is ok, timeout or error, so one
// misbehaving bulb cannot disturb callers working with other bulbs.
//
// Usage:
//
//	b := bulb.New(conn, bulb.Config{DeviceID: "bf01..."})
//	if err := b.Connect(ctx); err != nil {
//	    return err
//	}
//	r := b.Set(ctx, bulb.PowerValue(true))
//	if !r.OK() {
//	    log.Warn("set failed", "outcome", r.Outcome, "error", r.Err)
//	}
//
//	for ev := range b.Events() {
//	    fmt.Println(ev.Value.Property(), ev.Value)
//	}
package bulb
