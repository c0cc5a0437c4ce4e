//go:build linux

package topo

// Router wraps a Host, enabling IPv4/IPv6 forwarding once its namespace
// exists. It otherwise shares every Host behaviour — hostnames, Popen,
// interface attachment.
type Router struct {
	*Host
}

// NewRouter creates the underlying namespace exactly as NewHost does,
// then enables forwarding via sysctl run inside the new namespace.
func NewRouter(name string) (*Router, error) {
	h, err := NewHost(name)
	if err != nil {
		return nil, err
	}
	r := &Router{Host: h}
	if err := r.enableForwarding(); err != nil {
		_ = h.Stop()
		return nil, err
	}
	return r, nil
}

func (r *Router) IsRouter() bool { return true }

// enableForwarding runs sysctl inside the router's namespace to turn on
// IPv4/IPv6 forwarding and disable the reverse-path filter, which would
// otherwise drop packets arriving from a different interface than the
// one a route would use to reply.
func (r *Router) enableForwarding() error {
	proc, err := r.Popen([]string{
		"/sbin/sysctl", "-w",
		"net.ipv4.ip_forward=1",
		"net.ipv6.conf.all.forwarding=1",
		"net.ipv4.conf.default.rp_filter=0",
	}, nil)
	if err != nil {
		return err
	}
	_, err = proc.Wait()
	return err
}
