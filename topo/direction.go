package topo

// RouteDirection tags an interface with the routing policy SimpleRoute
// applies to it: which directly-connected routes may be removed and which
// way traffic is allowed to flow across it.
type RouteDirection int

const (
	// DirDefault allows both ingress and egress; directly-connected
	// routes are left in place and this side participates normally in
	// route planning.
	DirDefault RouteDirection = iota
	// DirNone allows neither; the directly-connected route is removed.
	DirNone
	// DirInward allows ingress only (egress, and its directly-connected
	// route, are removed).
	DirInward
	// DirOutward allows egress only.
	DirOutward
)

// String renders the direction the way log lines and topology files name it.
func (d RouteDirection) String() string {
	switch d {
	case DirDefault:
		return "default"
	case DirNone:
		return "none"
	case DirInward:
		return "inward"
	case DirOutward:
		return "outward"
	default:
		return "unknown"
	}
}

// AllowIngress reports whether traffic may enter through an interface
// tagged with this direction.
func (d RouteDirection) AllowIngress() bool {
	return d == DirInward || d == DirDefault
}

// AllowEgress reports whether traffic may leave through an interface
// tagged with this direction.
func (d RouteDirection) AllowEgress() bool {
	return d == DirOutward || d == DirDefault
}

// Reverse returns the direction the other end of a link should carry:
// inward becomes outward and vice versa; default and none are symmetric.
func (d RouteDirection) Reverse() RouteDirection {
	switch d {
	case DirInward:
		return DirOutward
	case DirOutward:
		return DirInward
	default:
		return d
	}
}
