// Package discovery advertises the bridge's datagram service over mDNS and
// browses for other bridges.
//
// The service type is _lightbridge._udp. The instance name is the bridge
// name; TXT records carry the bridge id and the software version so a
// client can tell two bridges with the same name apart.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the DNS-SD service type of the datagram protocol.
	ServiceType = "_lightbridge._udp"

	// Domain is the mDNS domain.
	Domain = "local."

	// maxInstanceNameLen is the DNS label limit for the instance name.
	maxInstanceNameLen = 63

	txtID      = "id"
	txtVersion = "version"
)

// ErrNoPort is returned when advertising without a port.
var ErrNoPort = errors.New("discovery: port is required")

// Info describes one bridge.
type Info struct {
	Instance string
	ID       string
	Version  string
	Port     int

	// Host and Addrs are filled in by Browse.
	Host  string
	Addrs []net.IP
}

// Address returns host:port of the first advertised address, or "" when
// none was seen.
func (i Info) Address() string {
	if len(i.Addrs) == 0 {
		return ""
	}
	return net.JoinHostPort(i.Addrs[0].String(), fmt.Sprint(i.Port))
}

// Advertiser registers one bridge on the local network.
//
// Thread Safety: All methods are safe for concurrent use.
type Advertiser struct {
	iface string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. An empty iface advertises on every
// multicast-capable interface.
func NewAdvertiser(iface string) *Advertiser {
	return &Advertiser{iface: iface}
}

// Advertise starts (or restarts) the advertisement for info.
func (a *Advertiser) Advertise(info Info) error {
	if info.Port <= 0 {
		return ErrNoPort
	}

	ifaces, err := interfaces(a.iface)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		instanceName(info.Instance),
		ServiceType,
		Domain,
		info.Port,
		EncodeTXT(info),
		ifaces,
	)
	if err != nil {
		return fmt.Errorf("registering %s: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Browse reports every bridge seen until ctx is done. The returned channel
// is closed when browsing stops. Entries seen on several interfaces are
// reported once.
func Browse(ctx context.Context, iface string) (<-chan Info, error) {
	var opts []zeroconf.ClientOption
	if iface != "" {
		ifaces, err := interfaces(iface)
		if err != nil {
			return nil, err
		}
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan Info)

	go func() {
		defer close(out)
		seen := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				info := FromEntry(entry)
				key := info.Instance + "/" + info.ID
				if seen[key] {
					continue
				}
				seen[key] = true
				select {
				case out <- info:
				case <-ctx.Done():
					return
				}
			case <-removed:
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...) //nolint:errcheck // Ends with ctx
	}()

	return out, nil
}

// EncodeTXT renders the TXT records of a bridge.
func EncodeTXT(info Info) []string {
	txt := []string{txtID + "=" + info.ID}
	if info.Version != "" {
		txt = append(txt, txtVersion+"="+info.Version)
	}
	return txt
}

// FromEntry converts a browse result. Unknown TXT keys are ignored.
func FromEntry(entry *zeroconf.ServiceEntry) Info {
	info := Info{
		Instance: entry.Instance,
		Port:     entry.Port,
		Host:     entry.HostName,
	}
	for _, rec := range entry.Text {
		key, value, ok := strings.Cut(rec, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case txtID:
			info.ID = value
		case txtVersion:
			info.Version = value
		}
	}
	info.Addrs = append(info.Addrs, entry.AddrIPv4...)
	info.Addrs = append(info.Addrs, entry.AddrIPv6...)
	return info
}

func instanceName(name string) string {
	if name == "" {
		name = "lightbridge"
	}
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	return name
}

// interfaces resolves an interface name. An empty name means all.
func interfaces(name string) ([]net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("discovery interface %q: %w", name, err)
	}
	return []net.Interface{*iface}, nil
}
