//go:build linux

package topo

import (
	"fmt"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/virtnet-go/virtnet/errs"
	"github.com/virtnet-go/virtnet/netlinkgw"
)

// transient veth names used while both ends still live in the root
// namespace, before each is moved and renamed into place.
const (
	transientMaster = "virt0Master"
	transientPeer   = "virt0Peer"
)

// Link is a bidirectional kernel connection between two InterfaceContainers.
// VirtualLink is its only implementation; PhysicalInterface has no Link,
// being a bare adopted device.
type Link interface {
	Main() Interface
	Peer() Interface
	Stop() error
}

// VirtualLink is a veth pair whose two ends live in (possibly different)
// network namespaces.
type VirtualLink struct {
	root *netlinkgw.Gateway

	localContainer  InterfaceContainer
	remoteContainer InterfaceContainer

	main *VirtualInterface
	peer *VirtualInterface

	registrar Registrar
}

// NewVirtualLink creates a veth pair, moves each endpoint into its target
// container's namespace, renames main to name and the remote end to
// remoteName, brings both up, and registers the link with registrar.
func NewVirtualLink(root *netlinkgw.Gateway, local, remote InterfaceContainer, name, remoteName string, direction RouteDirection, registrar Registrar) (*VirtualLink, error) {
	link, err := root.CreateLink(netlinkgw.CreateLinkOpts{
		Kind:     netlinkgw.KindVeth,
		Name:     transientMaster,
		PeerName: transientPeer,
	})
	if err != nil {
		return nil, err
	}
	peerLink, err := root.LinkByName(transientPeer)
	if err != nil {
		return nil, err
	}

	mainLink, err := settleInto(root, local.Gateway(), link, transientMaster, name)
	if err != nil {
		return nil, err
	}
	peerKernelLink, err := settleInto(root, remote.Gateway(), peerLink, transientPeer, remoteName)
	if err != nil {
		return nil, err
	}

	vl := &VirtualLink{
		root:            root,
		localContainer:  local,
		remoteContainer: remote,
		registrar:       registrar,
	}
	vl.main = &VirtualInterface{
		baseInterface: baseInterface{name: name, link: mainLink, gw: local.Gateway(), direction: direction},
		parent:        vl,
	}
	vl.peer = &VirtualInterface{
		baseInterface: baseInterface{name: remoteName, link: peerKernelLink, gw: remote.Gateway(), direction: direction.Reverse()},
		parent:        vl,
	}

	if err := local.Gateway().SetUp(mainLink); err != nil {
		return nil, err
	}
	if err := remote.Gateway().SetUp(peerKernelLink); err != nil {
		return nil, err
	}

	if registrar != nil {
		registrar.Register(vl)
	}
	return vl, nil
}

// settleInto moves link (identified by transientName, currently resolvable
// through root) into dst's namespace if dst isn't root itself, then renames
// it to finalName there and returns the re-resolved handle.
func settleInto(root, dst *netlinkgw.Gateway, link netlink.Link, transientName, finalName string) (netlink.Link, error) {
	if !dst.IsRoot() {
		if err := root.MoveToNamedNS(link, dst.Name()); err != nil {
			return nil, err
		}
		resolved, err := lookupWithRetry(dst, transientName)
		if err != nil {
			return nil, err
		}
		link = resolved
	}
	return dst.Rename(link, finalName)
}

// lookupWithRetry re-resolves a link by name in dst's namespace, retrying
// briefly: LinkSetNsFd is asynchronous with respect to a handle opened
// before the move completed.
func lookupWithRetry(dst *netlinkgw.Gateway, name string) (netlink.Link, error) {
	var lastErr error
	for i := 0; i < 20; i++ {
		link, err := dst.LinkByName(name)
		if err == nil {
			return link, nil
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	return nil, fmt.Errorf("link %q never appeared in namespace %q: %w", name, dst.Name(), lastErr)
}

func (vl *VirtualLink) Main() Interface { return vl.main }
func (vl *VirtualLink) Peer() Interface { return vl.peer }

// Partner resolves the container and Interface on the other side of v.
func (vl *VirtualLink) Partner(v *VirtualInterface) (InterfaceContainer, Interface) {
	if v == vl.main {
		return vl.remoteContainer, vl.peer
	}
	return vl.localContainer, vl.main
}

// Stop removes the pair (deleting either end removes both) and
// unregisters the link.
func (vl *VirtualLink) Stop() error {
	if vl.main.link == nil && vl.peer.link == nil {
		return errs.EntityDown
	}
	var err error
	if vl.main.link != nil {
		err = vl.localContainer.Gateway().DeleteLink(vl.main.link)
	} else if vl.peer.link != nil {
		err = vl.remoteContainer.Gateway().DeleteLink(vl.peer.link)
	}
	vl.main.link = nil
	vl.peer.link = nil
	if vl.registrar != nil {
		vl.registrar.Unregister(vl)
	}
	return err
}
