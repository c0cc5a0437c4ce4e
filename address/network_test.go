package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtnet-go/virtnet/errs"
)

func TestNetworkNextYieldsSequentialHostAddresses(t *testing.T) {
	n, err := New("192.168.0.0/24", nil)
	require.NoError(t, err)

	first, err := n.Next()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.1/24", first.String())

	second, err := n.Next()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.2/24", second.String())
}

func TestNetworkReservesRouterSlot(t *testing.T) {
	offset := 1
	n, err := New("192.168.0.0/24", &offset)
	require.NoError(t, err)

	router := n.Router()
	require.NotNil(t, router)
	assert.Equal(t, "192.168.0.1", router.String())

	first, err := n.Next()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.2/24", first.String(), "the reserved router slot is never handed out")
}

func TestNetworkExhaustion(t *testing.T) {
	n, err := New("192.168.0.0/30", nil)
	require.NoError(t, err)

	_, err = n.Next()
	require.NoError(t, err)
	_, err = n.Next()
	require.NoError(t, err)

	_, err = n.Next()
	require.Error(t, err)
	var exhausted *errs.AddressExhausted
	assert.ErrorAs(t, err, &exhausted)
}

func TestInterfaceContainingNetwork(t *testing.T) {
	n, err := New("10.0.0.0/24", nil)
	require.NoError(t, err)
	addr, err := n.Next()
	require.NoError(t, err)

	net := addr.ContainingNetwork()
	assert.Equal(t, "10.0.0.0/24", net.String())
}
