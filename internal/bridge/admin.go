package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/lightbridge/internal/registry"
	"github.com/nerrad567/lightbridge/internal/wire"
)

// Administrative commands carried in the target field of a bridge datagram.
const (
	adminReload = "reload"
	adminList   = "list"
	adminUnloop = "unloop"
)

// admin handles bridge:<command>[:args].
func (d *Dispatcher) admin(from registry.ClientAddress, msg wire.Message) {
	switch strings.ToLower(msg.Target) {
	case adminReload:
		started := d.spawn(func(ctx context.Context) {
			if _, err := d.Reload(ctx); err != nil {
				d.logWarn("reload failed", "requested_by", from.String(), "error", err)
			}
			d.post(func() { d.tellNames(from) })
		})
		if !started {
			d.drop(from, "reload refused after stop", nil)
		}
	case adminList:
		d.tellNames(from)
	case adminUnloop:
		d.unloop(from, msg.Field(0))
	default:
		d.drop(from, "unknown bridge command", nil)
	}
}

// Reload reads the roster and binds every declaration not bound yet. It
// returns the resources added by this call.
//
// Safe to call from any goroutine; concurrent reloads are serialised by
// the registry.
func (d *Dispatcher) Reload(ctx context.Context) ([]*registry.Resource, error) {
	if d.roster == nil {
		return nil, ErrNoRoster
	}

	decls, err := d.roster.Declarations(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}

	added := d.registry.LoadNew(ctx, decls)
	d.logInfo("reload complete", "declared", len(decls), "added", len(added), "total", d.registry.Len())
	return added, nil
}

// tellNames sends tell:<id>:name:<name> for every resource.
func (d *Dispatcher) tellNames(to registry.ClientAddress) {
	for _, res := range d.registry.All() {
		d.send(to, wire.Tell(res.ID, propertyName, res.Name()))
	}
}

// unloop removes the sender from the resolved resources. An empty pattern
// removes it everywhere, including the at-large set.
func (d *Dispatcher) unloop(from registry.ClientAddress, pattern string) {
	resources := d.registry.All()
	if pattern != "" {
		resources = d.resolve(from, pattern)
	} else if d.atLarge.Remove(from) {
		d.logInfo("subscriber at large removed", "subscriber", from.String())
	}

	for _, res := range resources {
		if res.Subscribers.Remove(from) {
			d.logInfo("subscriber removed", "resource", res.ID, "subscriber", from.String())
		}
	}
}
