// Package netlinkgw wraps rtnetlink: link create/delete/move, address and
// route transactions, and bridge port attachment, one handle per
// namespace, so any container in the topology can acquire and release its
// own handle independently.
package netlinkgw

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/virtnet-go/virtnet/errs"
)

// Gateway owns exactly one netlink.Handle for a given network namespace.
// Every rtnetlink mutation made through it is synchronous and transactional
// at the level vishvananda/netlink provides (each call is its own netlink
// request/ack round-trip; there is no multi-op batch in this library, so
// "commit" below is a single such round-trip).
type Gateway struct {
	mu      sync.Mutex
	name    string // namespace name, "" for the root namespace
	handle  *netlink.Handle
	nsh     netns.NsHandle
	hasNsh  bool
	closed  bool
}

// OpenRoot returns a Gateway bound to the root (current) network namespace.
func OpenRoot() (*Gateway, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, &errs.NetlinkError{Op: "new-handle(root)", Err: err}
	}
	return &Gateway{handle: h}, nil
}

// OpenNamed returns a Gateway bound to the named network namespace (as
// created by nsutil.CreateNamed), without switching the calling goroutine's
// own namespace.
func OpenNamed(name string) (*Gateway, error) {
	nsh, err := netns.GetFromName(name)
	if err != nil {
		return nil, &errs.NamespaceGone{Name: name}
	}
	h, err := netlink.NewHandleAt(nsh)
	if err != nil {
		_ = nsh.Close()
		return nil, &errs.NetlinkError{Op: "new-handle(" + name + ")", Err: err}
	}
	return &Gateway{name: name, handle: h, nsh: nsh, hasNsh: true}, nil
}

// Name returns the namespace name this Gateway is bound to, "" for root.
func (g *Gateway) Name() string { return g.name }

// IsRoot reports whether this Gateway is bound to the root namespace.
func (g *Gateway) IsRoot() bool { return g.name == "" }

// Close releases the handle. It is safe to call more than once.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.handle != nil {
		g.handle.Close()
	}
	if g.hasNsh {
		_ = g.nsh.Close()
	}
}

func (g *Gateway) checkOpen() error {
	if g.closed {
		return &errs.NamespaceGone{Name: g.name}
	}
	return nil
}

// LinkKind enumerates the kernel link kinds this gateway can create.
type LinkKind int

const (
	KindVeth LinkKind = iota
	KindBridge
)

// CreateLinkOpts configures CreateLink.
type CreateLinkOpts struct {
	Kind LinkKind
	Name string
	// PeerName is required for KindVeth.
	PeerName string
	MTU      int
}

// CreateLink creates a new kernel link of the given kind. A name collision
// surfaces as *errs.NameCollision.
func (g *Gateway) CreateLink(opts CreateLinkOpts) (netlink.Link, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	attrs := netlink.NewLinkAttrs()
	attrs.Name = opts.Name
	if opts.MTU > 0 {
		attrs.MTU = opts.MTU
	}

	var link netlink.Link
	switch opts.Kind {
	case KindVeth:
		link = &netlink.Veth{LinkAttrs: attrs, PeerName: opts.PeerName}
	case KindBridge:
		link = &netlink.Bridge{LinkAttrs: attrs}
	default:
		return nil, fmt.Errorf("unknown link kind %d", opts.Kind)
	}

	if err := g.handle.LinkAdd(link); err != nil {
		if errors.Is(err, syscall.EEXIST) {
			return nil, &errs.NameCollision{Kind: "interface", Name: opts.Name}
		}
		return nil, &errs.NetlinkError{Op: "link-add(" + opts.Name + ")", Err: err}
	}
	return g.handle.LinkByName(opts.Name)
}

// DeleteLink removes a link.
func (g *Gateway) DeleteLink(link netlink.Link) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.handle.LinkDel(link); err != nil && !errors.Is(err, syscall.ENODEV) {
		return &errs.NetlinkError{Op: "link-del(" + link.Attrs().Name + ")", Err: err}
	}
	return nil
}

// LinkByName looks up a link by name in this gateway's namespace.
func (g *Gateway) LinkByName(name string) (netlink.Link, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	link, err := g.handle.LinkByName(name)
	if err != nil {
		return nil, &errs.NetlinkError{Op: "link-by-name(" + name + ")", Err: err}
	}
	return link, nil
}

// SetUp brings a link up.
func (g *Gateway) SetUp(link netlink.Link) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.handle.LinkSetUp(link); err != nil {
		return &errs.NetlinkError{Op: "link-up(" + link.Attrs().Name + ")", Err: err}
	}
	return nil
}

// SetDown brings a link down.
func (g *Gateway) SetDown(link netlink.Link) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.handle.LinkSetDown(link); err != nil {
		return &errs.NetlinkError{Op: "link-down(" + link.Attrs().Name + ")", Err: err}
	}
	return nil
}

// Rename renames a link and returns the re-resolved link handle.
func (g *Gateway) Rename(link netlink.Link, newName string) (netlink.Link, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.handle.LinkSetName(link, newName); err != nil {
		return nil, &errs.NetlinkError{Op: "link-rename(" + link.Attrs().Name + "->" + newName + ")", Err: err}
	}
	renamed, err := g.handle.LinkByName(newName)
	if err != nil {
		return nil, &errs.NetlinkError{Op: "link-by-name(" + newName + ")", Err: err}
	}
	return renamed, nil
}

// MoveToNamedNS moves link into the namespace named dst.
func (g *Gateway) MoveToNamedNS(link netlink.Link, dst string) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	nsh, err := netns.GetFromName(dst)
	if err != nil {
		return &errs.NamespaceGone{Name: dst}
	}
	defer nsh.Close()

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.handle.LinkSetNsFd(link, int(nsh)); err != nil {
		return &errs.NetlinkError{Op: "link-set-ns(" + link.Attrs().Name + ")", Err: err}
	}
	return nil
}

// MoveToRoot moves link back into the root namespace (of this process).
func (g *Gateway) MoveToRoot(link netlink.Link, pid int) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.handle.LinkSetNsPid(link, pid); err != nil {
		return &errs.NetlinkError{Op: "link-set-ns-pid(" + link.Attrs().Name + ")", Err: err}
	}
	return nil
}

// AddAddr assigns an address to a link, silently succeeding if it is
// already present.
func (g *Gateway) AddAddr(link netlink.Link, ipNet *net.IPNet) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	addr := &netlink.Addr{IPNet: ipNet}
	existing, _ := g.handle.AddrList(link, familyOf(ipNet.IP))
	for _, a := range existing {
		if a.IPNet.String() == addr.IPNet.String() {
			return nil
		}
	}
	if err := g.handle.AddrAdd(link, addr); err != nil && !errors.Is(err, syscall.EEXIST) {
		return &errs.NetlinkError{Op: "addr-add(" + addr.IPNet.String() + ")", Err: err}
	}
	return nil
}

// DelAddr removes an address from a link.
func (g *Gateway) DelAddr(link netlink.Link, ipNet *net.IPNet) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	addr := &netlink.Addr{IPNet: ipNet}
	if err := g.handle.AddrDel(link, addr); err != nil && !errors.Is(err, syscall.EADDRNOTAVAIL) {
		return &errs.NetlinkError{Op: "addr-del(" + addr.IPNet.String() + ")", Err: err}
	}
	return nil
}

// AddRoute installs (or replaces) a route on a link. dst is installed
// exactly as given; it is not normalized to its containing network.
func (g *Gateway) AddRoute(link netlink.Link, dst *net.IPNet, gw net.IP) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       dst,
		Gw:        gw,
		Scope:     netlink.SCOPE_UNIVERSE,
	}
	if err := g.handle.RouteReplace(route); err != nil {
		return &errs.NetlinkError{Op: "route-add(" + dst.String() + ")", Err: err}
	}
	return nil
}

// AddGatewayRoute installs a route to dst via gw, letting the kernel
// resolve the outgoing device from gw's directly-connected route, the
// way a bare `{dst, gateway}` route addition does without specifying a
// device (used by the BFS route planner, which reasons about next hops
// in terms of addresses rather than kernel link indices).
func (g *Gateway) AddGatewayRoute(dst *net.IPNet, gw net.IP) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	route := &netlink.Route{Dst: dst, Gw: gw, Scope: netlink.SCOPE_UNIVERSE}
	if err := g.handle.RouteReplace(route); err != nil {
		return &errs.NetlinkError{Op: "route-add-gw(" + dst.String() + ")", Err: err}
	}
	return nil
}

// DelRoute removes the route to dst, silently ignoring a not-found route:
// callers remove directly-connected routes speculatively and don't need
// to track whether one was ever installed.
func (g *Gateway) DelRoute(dst *net.IPNet) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	routes, err := g.handle.RouteList(nil, familyOf(dst.IP))
	if err != nil {
		return &errs.NetlinkError{Op: "route-list", Err: err}
	}
	for _, r := range routes {
		if r.Dst != nil && r.Dst.String() == dst.String() {
			if err := g.handle.RouteDel(&r); err != nil && !errors.Is(err, syscall.ESRCH) {
				return &errs.NetlinkError{Op: "route-del(" + dst.String() + ")", Err: err}
			}
			return nil
		}
	}
	// No such route: ignored, not propagated (resolved Open Question).
	return nil
}

// HasRoute reports whether a route to dst is already present, used to make
// route installation idempotent across repeated SimpleRoute() runs.
func (g *Gateway) HasRoute(dst *net.IPNet) (bool, error) {
	if err := g.checkOpen(); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	routes, err := g.handle.RouteList(nil, familyOf(dst.IP))
	if err != nil {
		return false, &errs.NetlinkError{Op: "route-list", Err: err}
	}
	for _, r := range routes {
		if r.Dst != nil && r.Dst.String() == dst.String() {
			return true, nil
		}
	}
	return false, nil
}

// HasDefaultRoute reports whether a default route exists for the given
// address family (unix.AF_INET or unix.AF_INET6).
func (g *Gateway) HasDefaultRoute(family int) (bool, error) {
	if err := g.checkOpen(); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	routes, err := g.handle.RouteList(nil, family)
	if err != nil {
		return false, &errs.NetlinkError{Op: "route-list", Err: err}
	}
	for _, r := range routes {
		if r.Dst == nil {
			return true, nil
		}
	}
	return false, nil
}

// AddPort enslaves link to bridge.
func (g *Gateway) AddPort(bridge, link netlink.Link) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.handle.LinkSetMaster(link, bridge); err != nil && !errors.Is(err, syscall.EEXIST) {
		return &errs.NetlinkError{Op: "add-port(" + link.Attrs().Name + ")", Err: err}
	}
	return nil
}

func familyOf(ip net.IP) int {
	if ip.To4() != nil {
		return netlink.FAMILY_V4
	}
	return netlink.FAMILY_V6
}
