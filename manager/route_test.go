package manager

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtnet-go/virtnet/address"
)

func mustNetwork(t *testing.T, cidr string) *address.Network {
	t.Helper()
	n, err := address.New(cidr, nil)
	require.NoError(t, err)
	return n
}

func TestFilterFamilySeparatesV4FromV6(t *testing.T) {
	v4 := &address.Interface{IP: net.ParseIP("10.0.0.1"), PrefixLen: 24}
	v6 := &address.Interface{IP: net.ParseIP("fd00::1"), PrefixLen: 64}

	onlyV4 := filterFamily([]*address.Interface{v4, v6}, true)
	assert.Equal(t, []*address.Interface{v4}, onlyV4)

	onlyV6 := filterFamily([]*address.Interface{v4, v6}, false)
	assert.Equal(t, []*address.Interface{v6}, onlyV6)
}

func TestCompatibleAddressFindsSharedSubnet(t *testing.T) {
	n := mustNetwork(t, "192.168.0.0/24")
	routerAddr, err := n.Next()
	require.NoError(t, err)

	other := &address.Interface{IP: net.ParseIP("10.0.0.5"), PrefixLen: 24}
	match := &address.Interface{IP: net.ParseIP("192.168.0.99"), PrefixLen: 24}

	got := compatibleAddress([]*address.Interface{routerAddr}, []*address.Interface{other, match})
	require.NotNil(t, got)
	assert.Equal(t, match.IP.String(), got.IP.String())
}

func TestCompatibleAddressNoMatch(t *testing.T) {
	src := &address.Interface{IP: net.ParseIP("192.168.0.1"), PrefixLen: 24}
	dst := &address.Interface{IP: net.ParseIP("10.0.0.1"), PrefixLen: 24}
	assert.Nil(t, compatibleAddress([]*address.Interface{src}, []*address.Interface{dst}))
}

func TestDefaultRouteDst(t *testing.T) {
	v4 := defaultRouteDst(true)
	assert.Equal(t, "0.0.0.0/0", v4.String())

	v6 := defaultRouteDst(false)
	assert.Equal(t, "::/0", v6.String())
}
