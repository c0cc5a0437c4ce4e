// Package topo implements the network entity graph: hosts, routers,
// switches, the physical host, and veth-backed links and interfaces,
// plus the RouteDirection algebra that tags them.
//
// Every device kind is a fixed-capability interface (Container,
// InterfaceContainer, Interface, Link) rather than a class hierarchy,
// with kernel access threaded through explicit *netlinkgw.Gateway
// handles instead of a shared global handle.
package topo

// Entity is anything the Manager ledger can register and later stop, in
// reverse insertion order, on scope exit.
type Entity interface {
	Stop() error
}

// Registrar is implemented by the Manager scope. VirtualLink registers
// itself on successful creation and unregisters itself on Stop; hosts,
// routers and switches are registered by the Manager's factory methods,
// and their Stop does not unregister them.
type Registrar interface {
	Register(Entity)
	Unregister(Entity)
}
