package manager

import "github.com/virtnet-go/virtnet/topo"

// UpdateHosts collects every registered entity's hostname contribution
// and rewrites every entity's hosts file with the full collected set.
func (m *Manager) UpdateHosts() error {
	m.mu.Lock()
	order := make([]topo.Entity, len(m.order))
	copy(order, m.order)
	m.mu.Unlock()

	var all []topo.HostnameEntry
	var containers []topo.Container
	for _, e := range order {
		c, ok := e.(topo.Container)
		if !ok {
			continue
		}
		containers = append(containers, c)
		all = append(all, c.GetHostnames()...)
	}

	for _, c := range containers {
		if err := c.SetHosts(all); err != nil {
			return err
		}
	}
	return nil
}
