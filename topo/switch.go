//go:build linux

package topo

import (
	"fmt"
	"os"

	"github.com/coreos/go-iptables/iptables"
	"github.com/vishvananda/netlink"

	"github.com/virtnet-go/virtnet/address"
	"github.com/virtnet-go/virtnet/netlinkgw"
)

// Switch is a Container owning a bridge device, optionally carrying a
// default Network used by Connect. It implements InterfaceContainer
// directly so the bridge side can attach peers itself, rather than
// special-casing attachment outside the container hierarchy.
type Switch struct {
	interfaceRegistry

	name    string
	gw      *netlinkgw.Gateway
	link    netlink.Link
	network *address.Network
	running bool

	uplink *iptables.IPTables
	uplinkIface string
}

// NewSwitch creates a bridge named name in gw's namespace and brings it
// up. network is optional; nil means this switch never hands out
// addresses from Connect.
func NewSwitch(gw *netlinkgw.Gateway, name string, network *address.Network) (*Switch, error) {
	link, err := gw.CreateLink(netlinkgw.CreateLinkOpts{Kind: netlinkgw.KindBridge, Name: name})
	if err != nil {
		return nil, err
	}
	if err := gw.SetUp(link); err != nil {
		return nil, err
	}
	return &Switch{
		interfaceRegistry: newInterfaceRegistry(),
		name:              name,
		gw:                gw,
		link:              link,
		network:           network,
		running:           true,
	}, nil
}

func (s *Switch) Name() string                     { return s.name }
func (s *Switch) IsRouter() bool                    { return false }
func (s *Switch) IsSwitch() bool                    { return true }
func (s *Switch) Running() bool                     { return s.running }
func (s *Switch) Gateway() *netlinkgw.Gateway        { return s.gw }
func (s *Switch) NetworkFor() *address.Network       { return s.network }

// GetHostnames returns nil: a switch has no hosts-file contribution.
func (s *Switch) GetHostnames() []HostnameEntry { return nil }

// SetHosts is a no-op: a switch has no hosts file.
func (s *Switch) SetHosts(entries []HostnameEntry) error { return nil }

// AttachInterface enslaves iface's kernel link to the bridge in addition
// to registering it: whichever endpoint remains in the switch's own
// namespace is the one enslaved.
func (s *Switch) AttachInterface(iface Interface) {
	s.interfaceRegistry.AttachInterface(iface)
	if iface.Link() != nil {
		_ = s.gw.AddPort(s.link, iface.Link())
	}
}

// SetSTP toggles the spanning-tree-protocol state on the bridge via its
// sysfs knob.
func (s *Switch) SetSTP(enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	path := fmt.Sprintf("/sys/class/net/%s/bridge/stp_state", s.name)
	return os.WriteFile(path, []byte(val), 0644)
}

// EnableUplink adds a masquerade rule so traffic leaving this bridge
// toward uplinkIface is source-NATed, letting a switch's subnet reach the
// outside world without a dedicated Router entity.
func (s *Switch) EnableUplink(uplinkIface string) error {
	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("uplink: %w", err)
	}
	if s.network == nil {
		return fmt.Errorf("uplink: switch %q has no network", s.name)
	}
	cidr := s.network.CIDR().String()
	if err := ipt.AppendUnique("nat", "POSTROUTING", "-s", cidr, "-o", uplinkIface, "-j", "MASQUERADE"); err != nil {
		return fmt.Errorf("uplink: %w", err)
	}
	s.uplink = ipt
	s.uplinkIface = uplinkIface
	return nil
}

// Stop removes the uplink rule (if any), brings the bridge down, and
// deletes it.
func (s *Switch) Stop() error {
	if !s.running {
		return nil
	}
	if s.uplink != nil && s.network != nil {
		_ = s.uplink.Delete("nat", "POSTROUTING", "-s", s.network.CIDR().String(), "-o", s.uplinkIface, "-j", "MASQUERADE")
	}
	_ = s.gw.SetDown(s.link)
	err := s.gw.DeleteLink(s.link)
	s.running = false
	return err
}
