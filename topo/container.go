//go:build linux

package topo

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/virtnet-go/virtnet/address"
	"github.com/virtnet-go/virtnet/netlinkgw"
)

// HostnameEntry is one (name, address, aliases) triple, the unit
// update_hosts collects from every registered Host and every address on
// every one of its interfaces.
type HostnameEntry struct {
	Name    string
	Address net.IP
	Aliases []string
}

// Container is the capability set shared by every device kind: naming,
// running state, and the hosts-file propagation hooks.
type Container interface {
	Name() string
	IsRouter() bool
	IsSwitch() bool
	Running() bool

	// GetHostnames returns this container's contribution to the
	// hosts-file propagation pass: one entry per address on every
	// interface. Non-Host containers (switches, the physical host)
	// return nil.
	GetHostnames() []HostnameEntry

	// SetHosts writes the given collected entries to this container's
	// hosts file. Containers without one (PhysicalHost, Switch) ignore
	// the call.
	SetHosts(entries []HostnameEntry) error
}

// InterfaceContainer is a Container that can own Interfaces and
// participate in Connect: hosts, routers, switches, and the physical
// host all implement it.
type InterfaceContainer interface {
	Container

	// Gateway returns the netlink handle bound to this container's
	// namespace.
	Gateway() *netlinkgw.Gateway

	// NetworkFor returns the Network to draw addresses from when this
	// container is the *remote* side of a Connect call (only Switch
	// returns non-nil; every other container returns nil).
	NetworkFor() *address.Network

	// Interfaces returns the ordered name->Interface registry.
	Interfaces() map[string]Interface

	// InterfaceOrder returns interface names in attachment order (Go
	// maps don't preserve insertion order, so callers that need
	// deterministic iteration — hosts-file writers, route planning —
	// use this instead of ranging over Interfaces() directly).
	InterfaceOrder() []string

	// AttachInterface registers an already-created Interface as
	// belonging to this container.
	AttachInterface(iface Interface)
}

// Connect builds a Link between local (main) and remote (peer), wires
// addresses from remote's Network if it has one, and installs a default
// route on local when appropriate. Implemented as a free function rather
// than a method overridden per concrete type, since every
// InterfaceContainer shares the exact same algorithm.
func Connect(root *netlinkgw.Gateway, local, remote InterfaceContainer, name, remoteName string, direction RouteDirection, registrar Registrar) (*VirtualLink, error) {
	if remoteName == "" {
		remoteName = fmt.Sprintf("%s%d", local.Name(), len(local.Interfaces()))
	}

	link, err := NewVirtualLink(root, local, remote, name, remoteName, direction, registrar)
	if err != nil {
		return nil, err
	}
	local.AttachInterface(link.Main())
	remote.AttachInterface(link.Peer())

	network := remote.NetworkFor()
	if network == nil {
		return link, nil
	}

	router := network.Router()
	main := link.Main()

	if local.IsRouter() {
		if direction == DirDefault && router != nil {
			if err := main.AddIP(network.RouterInterface()); err != nil {
				return nil, err
			}
		} else if err := main.AddFromNetwork(network); err != nil {
			return nil, err
		}
		return link, nil
	}

	if err := main.AddFromNetwork(network); err != nil {
		return nil, err
	}
	if direction == DirDefault && router != nil {
		has, err := local.Gateway().HasDefaultRoute(familyOf(router))
		if err != nil {
			return nil, err
		}
		if !has {
			dst := defaultRouteDst(router)
			if err := local.Gateway().AddRoute(main.Link(), dst, router); err != nil {
				return nil, err
			}
		}
	}
	return link, nil
}

func familyOf(ip net.IP) int {
	if ip.To4() != nil {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func defaultRouteDst(gw net.IP) *net.IPNet {
	if gw.To4() != nil {
		return &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}
	}
	return &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
}
