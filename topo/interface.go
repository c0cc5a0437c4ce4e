//go:build linux

package topo

import (
	"github.com/vishvananda/netlink"

	"github.com/virtnet-go/virtnet/address"
	"github.com/virtnet-go/virtnet/errs"
	"github.com/virtnet-go/virtnet/netlinkgw"
)

// Interface is the abstract unit every device kind exposes: a name, a
// kernel link, the owning container's Gateway, assigned addresses, and
// an optional RouteDirection tag.
type Interface interface {
	Name() string
	Link() netlink.Link
	Gateway() *netlinkgw.Gateway
	Addresses() []*address.Interface
	Direction() RouteDirection

	AddIP(addr *address.Interface) error
	AddFromNetwork(n *address.Network) error
	DelIP(addr *address.Interface) error

	// Peer reports the container and Interface at the other end of a
	// veth pair, and whether this Interface has one at all — only
	// VirtualInterface does. Expressed as a capability rather than a
	// type assertion so route planning never needs to import concrete
	// topo types to traverse the graph.
	Peer() (InterfaceContainer, Interface, bool)

	Running() bool
	Stop() error
}

// baseInterface implements the address bookkeeping shared by every
// concrete Interface kind.
type baseInterface struct {
	name      string
	link      netlink.Link
	gw        *netlinkgw.Gateway
	direction RouteDirection
	addrs     []*address.Interface
}

func (b *baseInterface) Name() string                      { return b.name }
func (b *baseInterface) Link() netlink.Link                 { return b.link }
func (b *baseInterface) Gateway() *netlinkgw.Gateway        { return b.gw }
func (b *baseInterface) Direction() RouteDirection          { return b.direction }
func (b *baseInterface) Addresses() []*address.Interface    { return b.addrs }

// AddIP assigns addr to the interface's kernel link and records it.
func (b *baseInterface) AddIP(addr *address.Interface) error {
	if addr == nil {
		return nil
	}
	if err := b.gw.AddAddr(b.link, addr.IPNet()); err != nil {
		return err
	}
	b.addrs = append(b.addrs, addr)
	return nil
}

// AddFromNetwork draws the next address from n and assigns it.
func (b *baseInterface) AddFromNetwork(n *address.Network) error {
	addr, err := n.Next()
	if err != nil {
		return err
	}
	return b.AddIP(addr)
}

// DelIP removes a previously assigned address.
func (b *baseInterface) DelIP(addr *address.Interface) error {
	idx := -1
	for i, a := range b.addrs {
		if a.String() == addr.String() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if err := b.gw.DelAddr(b.link, addr.IPNet()); err != nil {
		return err
	}
	b.addrs = append(b.addrs[:idx], b.addrs[idx+1:]...)
	return nil
}

// PhysicalInterface adopts an already-existing kernel link into the
// model. Start/stop are no-ops and destruction never removes the device.
type PhysicalInterface struct {
	baseInterface
}

// AdoptPhysical wraps an existing link by name, looked up through gw.
func AdoptPhysical(gw *netlinkgw.Gateway, name string) (*PhysicalInterface, error) {
	link, err := gw.LinkByName(name)
	if err != nil {
		return nil, err
	}
	return &PhysicalInterface{baseInterface{name: name, link: link, gw: gw, direction: DirDefault}}, nil
}

func (p *PhysicalInterface) Running() bool { return p.link != nil }

// Peer always reports false: a PhysicalInterface is not one end of a
// veth pair and never participates in BFS traversal.
func (p *PhysicalInterface) Peer() (InterfaceContainer, Interface, bool) { return nil, nil, false }

// Stop is a no-op: a PhysicalInterface never removes the adopted device.
func (p *PhysicalInterface) Stop() error { return nil }

// VirtualInterface is one end of a veth pair.
type VirtualInterface struct {
	baseInterface
	parent *VirtualLink
}

func (v *VirtualInterface) Running() bool { return v.link != nil }

// Peer returns the container and interface at the other end of this
// interface's Link, used by the route planner's BFS traversal.
func (v *VirtualInterface) Peer() (InterfaceContainer, Interface, bool) {
	container, iface := v.parent.Partner(v)
	return container, iface, true
}

// Stop removes the veth endpoint; removing either end removes the whole
// pair at the kernel level.
func (v *VirtualInterface) Stop() error {
	if v.link == nil {
		return errs.EntityDown
	}
	err := v.gw.DeleteLink(v.link)
	v.link = nil
	return err
}
