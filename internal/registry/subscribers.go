package registry

import (
	"net"
	"net/netip"
	"strconv"
	"sync"
)

// ClientAddress identifies a datagram subscriber. Equality is by value.
type ClientAddress struct {
	Host string
	Port int
}

// AddressOf converts a UDP address.
func AddressOf(addr *net.UDPAddr) ClientAddress {
	if addr == nil {
		return ClientAddress{}
	}
	host := addr.IP.String()
	if ip, ok := netip.AddrFromSlice(addr.IP); ok {
		host = ip.Unmap().String()
	}
	return ClientAddress{Host: host, Port: addr.Port}
}

// UDPAddr resolves the address for sending.
func (a ClientAddress) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(a.Host), Port: a.Port}
}

// String returns host:port.
func (a ClientAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Subscribers is an insertion-ordered set of client addresses.
//
// The dispatcher is the only writer. The mutex exists so the HTTP facade
// and tests can read the set while the dispatcher runs.
type Subscribers struct {
	mu    sync.RWMutex
	order []ClientAddress
	index map[ClientAddress]struct{}
}

// NewSubscribers returns an empty set.
func NewSubscribers() *Subscribers {
	return &Subscribers{index: make(map[ClientAddress]struct{})}
}

// Add inserts a and reports whether it was absent.
func (s *Subscribers) Add(a ClientAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[a]; ok {
		return false
	}
	s.index[a] = struct{}{}
	s.order = append(s.order, a)
	return true
}

// Remove deletes a and reports whether it was present.
func (s *Subscribers) Remove(a ClientAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[a]; !ok {
		return false
	}
	delete(s.index, a)
	for i, x := range s.order {
		if x == a {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports membership.
func (s *Subscribers) Contains(a ClientAddress) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[a]
	return ok
}

// List returns the members in insertion order.
func (s *Subscribers) List() []ClientAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ClientAddress, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of members.
func (s *Subscribers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
