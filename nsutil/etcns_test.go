//go:build linux

package nsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostsLineRender(t *testing.T) {
	l := HostsLine{Address: "10.0.0.2", Name: "host0", Aliases: []string{"alias1", "alias2"}}
	assert.Equal(t, "10.0.0.2\thost0\talias1 alias2\n", l.Render())
}

func TestHostsLineRenderNoAliases(t *testing.T) {
	l := HostsLine{Address: "10.0.0.2", Name: "host0"}
	assert.Equal(t, "10.0.0.2\thost0\t\n", l.Render())
}

func TestWriteHostsIncludesPreambleAndLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")

	err := WriteHosts(path, []HostsLine{
		{Address: "10.0.0.2", Name: "host0"},
		{Address: "10.0.0.3", Name: "host1"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, DefaultHosts)
	assert.Contains(t, content, "10.0.0.2\thost0\t\n")
	assert.Contains(t, content, "10.0.0.3\thost1\t\n")
}
