package bridge

import (
	"context"
	"strings"

	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/command"
	"github.com/nerrad567/lightbridge/internal/registry"
	"github.com/nerrad567/lightbridge/internal/wire"
)

// Pseudo-properties answered from the declaration rather than the snapshot.
const (
	propertyName = "name"
	propertyID   = "id"
)

// handle dispatches one datagram. Nothing is ever sent back for a datagram
// that cannot be acted on.
func (d *Dispatcher) handle(dg datagram) {
	d.rx.Add(1)

	if strings.TrimSpace(string(dg.data)) == wire.Hello {
		d.send(dg.from, []byte(wire.HelloReply))
		return
	}

	msg, err := wire.Parse(dg.data)
	if err != nil {
		d.drop(dg.from, "unparseable datagram", err)
		return
	}

	switch msg.Verb {
	case wire.VerbWonder:
		d.wonder(dg.from, msg)
	case wire.VerbWish:
		d.wish(dg.from, msg)
	case wire.VerbEnloop:
		d.enloop(dg.from, msg)
	case wire.VerbHoller:
		d.holler(dg.from)
	case wire.VerbBridge:
		d.admin(dg.from, msg)
	case wire.VerbTell:
		// Subscribers have nothing to tell the bridge.
		d.drop(dg.from, "inbound tell ignored", nil)
	}
}

// drop counts and logs a datagram that produced no action.
func (d *Dispatcher) drop(from registry.ClientAddress, reason string, err error) {
	d.dropped.Add(1)
	if err != nil {
		d.logDebug(reason, "from", from.String(), "error", err)
		return
	}
	d.logDebug(reason, "from", from.String())
}

// resolve maps a target to resources, counting empty results as drops.
func (d *Dispatcher) resolve(from registry.ClientAddress, target string) []*registry.Resource {
	resources := d.registry.Resolve(target)
	if len(resources) == 0 {
		d.drop(from, "target resolved to nothing", nil)
	}
	return resources
}

// wonder answers from the cached snapshot. A property that has never been
// observed gets no reply; a background refresh is started instead.
func (d *Dispatcher) wonder(from registry.ClientAddress, msg wire.Message) {
	name := strings.ToLower(msg.Field(0))

	var prop bulb.Property
	if name != propertyName && name != propertyID {
		p, ok := bulb.ParseProperty(name)
		if !ok {
			d.drop(from, "unknown property", nil)
			return
		}
		prop = p
	}

	for _, res := range d.resolve(from, msg.Target) {
		switch name {
		case propertyName:
			d.send(from, wire.Tell(res.ID, propertyName, res.Name()))
		case propertyID:
			d.send(from, wire.Tell(res.ID, propertyID, res.Declaration.ID))
		default:
			if v, ok := res.Binding.Snapshot().Get(prop); ok {
				d.send(from, wire.Tell(res.ID, prop.String(), v.String()))
				continue
			}
			d.refresh(res)
		}
	}
}

// refresh queries a resource in the background, at most once at a time.
func (d *Dispatcher) refresh(res *registry.Resource) {
	if d.refreshing[res.ID] {
		return
	}
	started := d.spawn(func(ctx context.Context) {
		result := res.Binding.Refresh(ctx)
		if !result.OK() {
			d.logDebug("refresh failed", "resource", res.ID, "outcome", result.Outcome.String(), "error", result.Err)
		}
		d.post(func() { delete(d.refreshing, res.ID) })
	})
	if started {
		d.refreshing[res.ID] = true
	}
}

// wish runs the assignment list against every resolved resource. Each
// write runs in the background; confirmed values come back as events.
func (d *Dispatcher) wish(from registry.ClientAddress, msg wire.Message) {
	assignments := msg.Payload
	for _, res := range d.resolve(from, msg.Target) {
		d.spawn(func(ctx context.Context) {
			batch, result := command.Apply(ctx, res.Binding, assignments)
			for _, err := range batch.Dropped {
				d.logDebug("assignment dropped", "resource", res.ID, "error", err)
			}
			if !result.OK() {
				d.logWarn("wish failed",
					"resource", res.ID,
					"outcome", result.Outcome.String(),
					"elapsed", result.Elapsed,
					"error", result.Err)
			}
		})
	}
}

// enloop subscribes the sender and sends it every known value.
func (d *Dispatcher) enloop(from registry.ClientAddress, msg wire.Message) {
	for _, res := range d.resolve(from, msg.Target) {
		if res.Subscribers.Add(from) {
			d.logInfo("subscriber added", "resource", res.ID, "subscriber", from.String())
		}
		for _, v := range res.Binding.Snapshot().Values() {
			d.send(from, wire.Tell(res.ID, v.Property().String(), v.String()))
		}
	}
}

// holler registers the sender for every resource and acknowledges.
func (d *Dispatcher) holler(from registry.ClientAddress) {
	if d.atLarge.Add(from) {
		d.logInfo("subscriber at large added", "subscriber", from.String())
	}
	d.send(from, wire.Format(wire.VerbHoller, string(wire.VerbBridge), d.name, d.id))
}

// fanOut tells every subscriber of res, and every subscriber at large,
// about an observed value. Values equal to the cache are told again: a
// subscriber that lost the earlier datagram catches up on the next one.
func (d *Dispatcher) fanOut(res *registry.Resource, ev bulb.Event) {
	if ev.Value == nil {
		return
	}
	d.fanouts.Add(1)
	if ev.Changed {
		d.changes.Add(1)
	}

	prop := ev.Value.Property().String()
	value := ev.Value.String()
	payload := wire.Tell(res.ID, prop, value)

	sent := make(map[registry.ClientAddress]bool)
	for _, set := range []*registry.Subscribers{res.Subscribers, d.atLarge} {
		for _, addr := range set.List() {
			if sent[addr] {
				continue
			}
			sent[addr] = true
			d.send(addr, payload)
		}
	}

	d.notifyObservers(res.ID, prop, value)
}
