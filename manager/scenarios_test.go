//go:build linux

package manager

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/virtnet-go/virtnet/errs"
	"github.com/virtnet-go/virtnet/topo"
)

// requireRoot skips kernel-touching scenario tests when not running as
// root: namespace/bridge/veth creation needs CAP_NET_ADMIN, matching how
// namespace-heavy suites in the pack skip themselves in CI sandboxes.
func requireRoot(t *testing.T) {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("requires root to create namespaces/bridges/veth pairs")
	}
}

// TestSingleSubnetScenario builds a switch with three hosts drawing
// addresses from the same network in creation order, with full teardown
// on scope exit.
func TestSingleSubnetScenario(t *testing.T) {
	requireRoot(t)

	m, err := New()
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Close()) }()

	network, err := m.NewNetwork("192.168.100.0/24", nil)
	require.NoError(t, err)

	sw, err := m.NewSwitch("virttest-sw", network)
	require.NoError(t, err)

	var hosts []*topo.Host
	for i := 0; i < 3; i++ {
		h, err := m.NewHost(fmt.Sprintf("virttest-host%d", i))
		require.NoError(t, err)
		hosts = append(hosts, h)

		_, err = m.Connect(h, sw, "eth0", "", topo.DirDefault)
		require.NoError(t, err)
	}

	require.NoError(t, m.UpdateHosts())
}

// TestAddressExhaustionScenario checks that a /30 network, which has
// only two host addresses, makes a third Connect fail with
// AddressExhausted while the first two hosts remain intact for cleanup.
func TestAddressExhaustionScenario(t *testing.T) {
	requireRoot(t)

	m, err := New()
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Close()) }()

	network, err := m.NewNetwork("192.168.200.0/30", nil)
	require.NoError(t, err)
	sw, err := m.NewSwitch("virttest-sw2", network)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		h, err := m.NewHost(fmt.Sprintf("virttest-ex%d", i))
		require.NoError(t, err)
		_, err = m.Connect(h, sw, "eth0", "", topo.DirDefault)
		require.NoError(t, err)
	}

	h, err := m.NewHost("virttest-ex2")
	require.NoError(t, err)
	_, err = m.Connect(h, sw, "eth0", "", topo.DirDefault)
	require.Error(t, err)
	var exhausted *errs.AddressExhausted
	require.ErrorAs(t, err, &exhausted)
}
