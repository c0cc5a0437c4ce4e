//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/virtnet-go/virtnet/address"
	"github.com/virtnet-go/virtnet/manager"
	"github.com/virtnet-go/virtnet/nsutil"
	"github.com/virtnet-go/virtnet/topo"
)

// topologyDoc is the small JSON graph description the CLI drives the
// orchestrator from: networks, switches, hosts and routers by name, the
// links between them, and an optional command to run once the topology
// is up.
type topologyDoc struct {
	Networks map[string]networkDoc `json:"networks"`
	Switches map[string]switchDoc  `json:"switches"`
	Hosts    map[string]struct{}   `json:"hosts"`
	Routers  map[string]struct{}   `json:"routers"`
	Links    []linkDoc             `json:"links"`
	Run      *runDoc               `json:"run"`
}

type networkDoc struct {
	CIDR         string `json:"cidr"`
	RouterOffset *int   `json:"router_offset"`
}

type switchDoc struct {
	Network string `json:"network"`
	Uplink  string `json:"uplink"`
}

type linkDoc struct {
	Local      string `json:"local"`
	Remote     string `json:"remote"`
	Name       string `json:"name"`
	RemoteName string `json:"remote_name"`
	Direction  string `json:"direction"`
}

type runDoc struct {
	Host string   `json:"host"`
	Argv []string `json:"argv"`
}

func loadTopologyDoc(path string) (*topologyDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %q: %w", path, err)
	}
	var doc topologyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse topology %q: %w", path, err)
	}
	return &doc, nil
}

func parseDirection(s string) (topo.RouteDirection, error) {
	switch s {
	case "", "default":
		return topo.DirDefault, nil
	case "none":
		return topo.DirNone, nil
	case "inward":
		return topo.DirInward, nil
	case "outward":
		return topo.DirOutward, nil
	default:
		return topo.DirDefault, fmt.Errorf("unknown route direction %q", s)
	}
}

// build materializes doc's graph against m, returning the named
// InterfaceContainers for later lookup (e.g. by the "run" clause).
func build(m *manager.Manager, doc *topologyDoc) (map[string]topo.InterfaceContainer, error) {
	nets := make(map[string]*address.Network)
	for name, n := range doc.Networks {
		net, err := m.NewNetwork(n.CIDR, n.RouterOffset)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", name, err)
		}
		nets[name] = net
	}

	containers := make(map[string]topo.InterfaceContainer)

	for name, sw := range doc.Switches {
		var net *address.Network
		if sw.Network != "" {
			var ok bool
			net, ok = nets[sw.Network]
			if !ok {
				return nil, fmt.Errorf("switch %q: unknown network %q", name, sw.Network)
			}
		}
		s, err := m.NewSwitch(name, net)
		if err != nil {
			return nil, fmt.Errorf("switch %q: %w", name, err)
		}
		if sw.Uplink != "" {
			if err := s.EnableUplink(sw.Uplink); err != nil {
				return nil, fmt.Errorf("switch %q uplink: %w", name, err)
			}
		}
		containers[name] = s
	}

	for name := range doc.Hosts {
		h, err := m.NewHost(name)
		if err != nil {
			return nil, fmt.Errorf("host %q: %w", name, err)
		}
		containers[name] = h
	}

	for name := range doc.Routers {
		r, err := m.NewRouter(name)
		if err != nil {
			return nil, fmt.Errorf("router %q: %w", name, err)
		}
		containers[name] = r
	}

	for i, l := range doc.Links {
		local, ok := containers[l.Local]
		if !ok {
			return nil, fmt.Errorf("link %d: unknown local container %q", i, l.Local)
		}
		remote, ok := containers[l.Remote]
		if !ok {
			return nil, fmt.Errorf("link %d: unknown remote container %q", i, l.Remote)
		}
		dir, err := parseDirection(l.Direction)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		if _, err := m.Connect(local, remote, l.Name, l.RemoteName, dir); err != nil {
			return nil, fmt.Errorf("link %d (%s->%s): %w", i, l.Local, l.Remote, err)
		}
	}

	return containers, nil
}

// popener is implemented by *topo.Host and *topo.Router.
type popener interface {
	Popen(argv []string, env nsutil.EnvVars) (*nsutil.Process, error)
}

func runCommand(containers map[string]topo.InterfaceContainer, run *runDoc) error {
	if run == nil {
		return nil
	}
	c, ok := containers[run.Host]
	if !ok {
		return fmt.Errorf("run: unknown host %q", run.Host)
	}
	runner, ok := c.(popener)
	if !ok {
		return fmt.Errorf("run: container %q cannot Popen", run.Host)
	}
	proc, err := runner.Popen(run.Argv, nil)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	code, err := proc.Wait()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("run: %q exited with status %d", run.Argv, code)
	}
	return nil
}
