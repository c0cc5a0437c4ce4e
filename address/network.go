// Package address implements the automatic address allocation engine: a
// lazy, single-pass iterator over the host addresses of an IPv4 or IPv6
// CIDR, with an optional reserved router slot.
//
// The allocator is process-local and exhausts on a single pass rather
// than persisting a reservation ledger: the topology a Manager scope
// builds never outlives the process, so there is nothing to recover
// across restarts.
package address

import (
	"bytes"
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/virtnet-go/virtnet/errs"
)

// Interface is an address plus prefix length, ready to be applied to a
// kernel link — the unit the allocator hands out, never a bare IP.
type Interface struct {
	IP        net.IP
	PrefixLen int
}

// String renders the interface address in CIDR notation (e.g. "10.0.0.2/24").
func (i *Interface) String() string {
	return fmt.Sprintf("%s/%d", i.IP, i.PrefixLen)
}

// IPNet returns the address together with its prefix-length mask (e.g.
// 10.0.0.2/24), which is what gets handed to netlink.AddrAdd.
func (i *Interface) IPNet() *net.IPNet {
	bits := 32
	if i.IP.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: i.IP, Mask: net.CIDRMask(i.PrefixLen, bits)}
}

// ContainingNetwork returns the network that i.IP belongs to at i.PrefixLen.
func (i *Interface) ContainingNetwork() *net.IPNet {
	bits := 32
	if i.IP.To4() == nil {
		bits = 128
	}
	mask := net.CIDRMask(i.PrefixLen, bits)
	return &net.IPNet{IP: i.IP.Mask(mask), Mask: mask}
}

// Network represents a CIDR to allocate host addresses from, with an
// optional reserved router slot (an integer offset from the network
// address, as in "192.168.0.0/24 router=1" -> 192.168.0.1).
type Network struct {
	cidr      *net.IPNet
	prefixLen int
	router    net.IP // nil if no router reserved

	cur  net.IP // next candidate address
	last net.IP // top of the address range returned by cidr.AddressRange
	// excludeLast reports whether last itself is reserved and must never
	// be handed out: true for IPv4, whose last address is the broadcast
	// address; false for IPv6, which has none.
	excludeLast bool
	done        bool
}

// New parses a CIDR string and, if routerOffset is non-nil, reserves the
// address at network_address+*routerOffset as the router slot.
func New(cidrStr string, routerOffset *int) (*Network, error) {
	_, ipNet, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return nil, fmt.Errorf("parse network %q: %w", cidrStr, err)
	}
	prefixLen, _ := ipNet.Mask.Size()

	// First usable host address is network_address+1.
	first, last := cidr.AddressRange(ipNet)
	start := cidr.Inc(first)

	n := &Network{
		cidr:        ipNet,
		prefixLen:   prefixLen,
		cur:         start,
		last:        last,
		excludeLast: ipNet.IP.To4() != nil,
	}

	if routerOffset != nil {
		n.router = offsetAddress(ipNet.IP, *routerOffset)
	}

	return n, nil
}

// Router returns the reserved router address, or nil if none was reserved.
func (n *Network) Router() net.IP {
	return n.router
}

// RouterInterface returns the reserved router slot as an Interface, or nil
// when no router index was reserved for this network.
func (n *Network) RouterInterface() *Interface {
	if n.router == nil {
		return nil
	}
	return &Interface{IP: n.router, PrefixLen: n.prefixLen}
}

// CIDR returns the underlying network.
func (n *Network) CIDR() *net.IPNet {
	return n.cidr
}

// Next returns the next unallocated host address in the network, skipping
// the reserved router slot if one was configured and, for IPv4, the
// broadcast address. It returns *errs.AddressExhausted once the range is
// exhausted.
func (n *Network) Next() (*Interface, error) {
	for {
		cmp := bytes.Compare(n.cur.To16(), n.last.To16())
		exhausted := cmp > 0 || (n.excludeLast && cmp == 0)
		if n.done || exhausted {
			n.done = true
			return nil, &errs.AddressExhausted{CIDR: n.cidr.String()}
		}
		addr := n.cur
		n.cur = cidr.Inc(n.cur)

		if n.router != nil && addr.Equal(n.router) {
			// Reserved for the router: never handed to a non-router caller.
			continue
		}
		return &Interface{IP: cloneIP(addr), PrefixLen: n.prefixLen}, nil
	}
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func offsetAddress(base net.IP, offset int) net.IP {
	out := cloneIP(base)
	for i := 0; i < offset; i++ {
		out = cidr.Inc(out)
	}
	return out
}
