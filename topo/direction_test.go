package topo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteDirectionAllowances(t *testing.T) {
	cases := []struct {
		dir     RouteDirection
		ingress bool
		egress  bool
	}{
		{DirDefault, true, true},
		{DirNone, false, false},
		{DirInward, true, false},
		{DirOutward, false, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.ingress, c.dir.AllowIngress(), c.dir.String())
		assert.Equal(t, c.egress, c.dir.AllowEgress(), c.dir.String())
	}
}

func TestRouteDirectionReverse(t *testing.T) {
	assert.Equal(t, DirOutward, DirInward.Reverse())
	assert.Equal(t, DirInward, DirOutward.Reverse())
	assert.Equal(t, DirDefault, DirDefault.Reverse())
	assert.Equal(t, DirNone, DirNone.Reverse())
}
