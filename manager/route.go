package manager

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/virtnet-go/virtnet/address"
	"github.com/virtnet-go/virtnet/topo"
)

// SimpleRoute runs the two-phase route planner: remove directly-connected
// routes forbidden by an interface's direction, then BFS out from every
// router to install routes toward every other router's
// directly-connected networks.
func (m *Manager) SimpleRoute() error {
	m.mu.Lock()
	order := make([]topo.Entity, len(m.order))
	copy(order, m.order)
	m.mu.Unlock()

	if err := removeProhibitedRoutes(order); err != nil {
		return err
	}

	for _, e := range order {
		c, ok := e.(topo.InterfaceContainer)
		if !ok || !c.IsRouter() {
			continue
		}
		if err := bfsInstallRoutes(c, true); err != nil {
			return err
		}
		if err := bfsInstallRoutes(c, false); err != nil {
			return err
		}
	}

	for _, e := range order {
		c, ok := e.(topo.InterfaceContainer)
		if !ok || c.IsRouter() || c.IsSwitch() {
			continue
		}
		if err := findDefaultRoutes(c, true); err != nil {
			return err
		}
		if err := findDefaultRoutes(c, false); err != nil {
			return err
		}
	}
	return nil
}

// removeProhibitedRoutes implements phase 1: for every Host (including
// Router), every interface whose direction forbids egress loses its
// directly-connected route.
func removeProhibitedRoutes(order []topo.Entity) error {
	for _, e := range order {
		c, ok := e.(topo.InterfaceContainer)
		if !ok || c.IsSwitch() {
			continue
		}
		for _, name := range c.InterfaceOrder() {
			iface := c.Interfaces()[name]
			if iface.Direction().AllowEgress() {
				continue
			}
			for _, addr := range iface.Addresses() {
				if err := c.Gateway().DelRoute(addr.ContainingNetwork()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type bfsFrame struct {
	node            topo.InterfaceContainer
	routerAddresses []*address.Interface
	firstHop        net.IP
}

// bfsInstallRoutes is phase 2 for a single router and address family.
func bfsInstallRoutes(router topo.InterfaceContainer, isV4 bool) error {
	deque := []bfsFrame{{node: router}}
	visited := map[topo.InterfaceContainer]bool{router: true}

	for len(deque) > 0 {
		frame := deque[0]
		deque = deque[1:]
		node, routerAddresses, firstHop := frame.node, frame.routerAddresses, frame.firstHop

		for _, name := range node.InterfaceOrder() {
			iface := node.Interfaces()[name]
			if !iface.Direction().AllowEgress() {
				continue
			}

			if node.IsRouter() {
				routerAddresses = filterFamily(iface.Addresses(), isV4)
				for _, addr := range routerAddresses {
					net := addr.ContainingNetwork()
					has, err := router.Gateway().HasRoute(net)
					if err != nil {
						return err
					}
					if !has && node != router {
						if err := router.Gateway().AddGatewayRoute(net, firstHop); err != nil {
							return err
						}
					}
				}
			}

			peer, peerIface, ok := iface.Peer()
			if !ok {
				continue
			}
			if visited[peer] || !(peer.IsRouter() || peer.IsSwitch()) {
				continue
			}

			if peer.IsSwitch() {
				deque = append(deque, bfsFrame{node: peer, routerAddresses: routerAddresses, firstHop: firstHop})
			} else {
				addr := compatibleAddress(routerAddresses, filterFamily(peerIface.Addresses(), isV4))
				if addr == nil {
					continue
				}
				newFirstHop := firstHop
				if newFirstHop == nil {
					newFirstHop = addr.IP
				}
				deque = append([]bfsFrame{{node: peer, routerAddresses: nil, firstHop: newFirstHop}}, deque...)
			}
			visited[peer] = true
		}
	}
	return nil
}

// findDefaultRoutes is the non-router fallback: if c still lacks a
// default route for the given family, BFS its local segment for the
// nearest router and install a default route through it.
func findDefaultRoutes(c topo.InterfaceContainer, isV4 bool) error {
	family := familyFor(isV4)
	has, err := c.Gateway().HasDefaultRoute(family)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	var starts []topo.Interface
	for _, name := range c.InterfaceOrder() {
		iface := c.Interfaces()[name]
		if _, _, ok := iface.Peer(); ok {
			starts = append(starts, iface)
		}
	}

	for _, start := range starts {
		addresses := filterFamily(start.Addresses(), isV4)
		frontier := []topo.Interface{start}
		localVisited := map[topo.Interface]bool{start: true}

		for len(frontier) > 0 {
			cur := frontier[0]
			frontier = frontier[1:]
			peer, peerIface, ok := cur.Peer()
			if !ok {
				continue
			}

			if peer.IsRouter() {
				gw := compatibleAddress(addresses, filterFamily(peerIface.Addresses(), isV4))
				if gw != nil {
					dst := defaultRouteDst(isV4)
					return c.Gateway().AddRoute(start.Link(), dst, gw.IP)
				}
				continue
			}
			if peer.IsSwitch() {
				for _, name := range peer.InterfaceOrder() {
					next := peer.Interfaces()[name]
					if _, _, ok := next.Peer(); !ok || localVisited[next] {
						continue
					}
					localVisited[next] = true
					frontier = append(frontier, next)
				}
			}
		}
	}
	return nil
}

func filterFamily(addrs []*address.Interface, isV4 bool) []*address.Interface {
	var out []*address.Interface
	for _, a := range addrs {
		if (a.IP.To4() != nil) == isV4 {
			out = append(out, a)
		}
	}
	return out
}

// compatibleAddress returns the first dst address whose IP lies within
// one of src's containing networks, or nil.
func compatibleAddress(src, dst []*address.Interface) *address.Interface {
	for _, d := range dst {
		for _, s := range src {
			if s.ContainingNetwork().Contains(d.IP) {
				return d
			}
		}
	}
	return nil
}

func familyFor(isV4 bool) int {
	if isV4 {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func defaultRouteDst(isV4 bool) *net.IPNet {
	if isV4 {
		return &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}
	}
	return &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
}
