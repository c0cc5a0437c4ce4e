//go:build linux

package topo

import (
	"fmt"

	"github.com/virtnet-go/virtnet/address"
	"github.com/virtnet-go/virtnet/errs"
	"github.com/virtnet-go/virtnet/netlinkgw"
	"github.com/virtnet-go/virtnet/nsutil"
)

// Host is a namespaced device: a named network namespace with its own
// netlink handle, a faked /etc/hosts, and a set of attached Interfaces.
type Host struct {
	interfaceRegistry

	name     string
	gw       *netlinkgw.Gateway
	running  bool
	hostsMnt nsutil.Mount
	aliases  []string
}

// NewHost runs the Host start protocol: create the named namespace,
// write its per-namespace /etc/hosts, open a netlink handle bound to it,
// and bring its loopback interface up.
func NewHost(name string) (*Host, error) {
	if nsutil.Exists(name) {
		return nil, errs.EntityUp
	}
	if err := nsutil.CreateNamed(name); err != nil {
		return nil, err
	}
	mnt, err := nsutil.CreateEtcHosts(name)
	if err != nil {
		_ = nsutil.DeleteNamed(name)
		return nil, err
	}
	gw, err := netlinkgw.OpenNamed(name)
	if err != nil {
		_ = nsutil.RemoveEtcDir(name)
		_ = nsutil.DeleteNamed(name)
		return nil, err
	}

	h := &Host{
		interfaceRegistry: newInterfaceRegistry(),
		name:              name,
		gw:                gw,
		running:           true,
		hostsMnt:          mnt,
	}

	lo, err := gw.LinkByName("lo")
	if err == nil {
		_ = gw.SetUp(lo)
	}
	return h, nil
}

func (h *Host) Name() string              { return h.name }
func (h *Host) IsRouter() bool             { return false }
func (h *Host) IsSwitch() bool             { return false }
func (h *Host) Running() bool              { return h.running }
func (h *Host) Gateway() *netlinkgw.Gateway { return h.gw }

// NetworkFor always returns nil: only Switch hands out addresses.
func (h *Host) NetworkFor() *address.Network { return nil }

// AddHostname records an extra DNS-style name that resolves to this host's
// addresses in every other host's /etc/hosts, in addition to its own name.
func (h *Host) AddHostname(name string) {
	h.aliases = append(h.aliases, name)
}

// GetHostnames collects one HostnameEntry per address on every attached
// interface, carrying this host's extra aliases on each entry — the
// per-Host contribution to update_hosts.
func (h *Host) GetHostnames() []HostnameEntry {
	var out []HostnameEntry
	for _, name := range h.InterfaceOrder() {
		iface := h.Interfaces()[name]
		for _, addr := range iface.Addresses() {
			out = append(out, HostnameEntry{Name: h.name, Address: addr.IP, Aliases: h.aliases})
		}
	}
	return out
}

// SetHosts overwrites this host's /etc/netns/<name>/hosts with the given
// collected entries.
func (h *Host) SetHosts(entries []HostnameEntry) error {
	lines := make([]nsutil.HostsLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, nsutil.HostsLine{Address: e.Address.String(), Name: e.Name, Aliases: e.Aliases})
	}
	return nsutil.WriteHosts(h.hostsMnt.Src, lines)
}

// Popen spawns argv inside this host's namespace, bind-mounting its
// faked /etc/hosts into the child.
func (h *Host) Popen(argv []string, env nsutil.EnvVars) (*nsutil.Process, error) {
	if !h.running {
		return nil, errs.EntityDown
	}
	return nsutil.Popen(nsutil.PopenOpts{
		Namespace: h.name,
		Hostname:  h.name,
		Mounts:    []nsutil.Mount{h.hostsMnt},
		Argv:      argv,
		Env:       env,
	})
}

// Stop releases the netlink handle, removes the namespace and its faked
// /etc directory.
func (h *Host) Stop() error {
	if !h.running {
		return errs.EntityDown
	}
	h.gw.Close()
	if err := nsutil.DeleteNamed(h.name); err != nil {
		return err
	}
	if err := nsutil.RemoveEtcDir(h.name); err != nil {
		return err
	}
	h.running = false
	return nil
}

// PhysicalHost is the process's own root namespace, adopted rather than
// created: start/stop are no-ops beyond bookkeeping.
type PhysicalHost struct {
	interfaceRegistry
	name string
	gw   *netlinkgw.Gateway
}

// NewPhysicalHost wraps the root namespace Gateway as a Container.
func NewPhysicalHost(name string, root *netlinkgw.Gateway) *PhysicalHost {
	return &PhysicalHost{interfaceRegistry: newInterfaceRegistry(), name: name, gw: root}
}

func (p *PhysicalHost) Name() string               { return p.name }
func (p *PhysicalHost) IsRouter() bool              { return false }
func (p *PhysicalHost) IsSwitch() bool              { return false }
func (p *PhysicalHost) Running() bool               { return true }
func (p *PhysicalHost) Gateway() *netlinkgw.Gateway { return p.gw }
func (p *PhysicalHost) NetworkFor() *address.Network { return nil }
func (p *PhysicalHost) GetHostnames() []HostnameEntry { return nil }
func (p *PhysicalHost) SetHosts(entries []HostnameEntry) error { return nil }

// Stop is a no-op: the root namespace is never torn down.
func (p *PhysicalHost) Stop() error { return nil }

// AdoptLink wraps an existing kernel device living in the root namespace
// as a PhysicalInterface attached to this PhysicalHost.
func (p *PhysicalHost) AdoptLink(name string) (*PhysicalInterface, error) {
	iface, err := AdoptPhysical(p.gw, name)
	if err != nil {
		return nil, fmt.Errorf("adopt %q: %w", name, err)
	}
	p.AttachInterface(iface)
	return iface, nil
}
